package render

// Sink receives every rendered quantum as interleaved stereo 16 bit PCM.
// It is called on the render goroutine and must not block. pcm is shared
// between sinks: it may be retained but not modified. Sinks are compared by identity, so use
// pointer types.
type Sink interface {
	WriteAudio(pcm []int16) error
}

// Attach adds s to the fan-out list. Attaching the same sink twice is a
// no-op.
func (e *Engine) Attach(s Sink) {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	for _, existing := range e.sinks {
		if existing == s {
			return
		}
	}
	e.sinks = append(e.sinks, s)
}

// Detach removes s. Once Detach returns, s receives no further quanta.
// It must not be called from inside a sink.
func (e *Engine) Detach(s Sink) {
	e.sinkMu.Lock()
	for i, existing := range e.sinks {
		if existing == s {
			e.sinks = append(e.sinks[:i:i], e.sinks[i+1:]...)
			break
		}
	}
	e.sinkMu.Unlock()

	// wait out a quantum that may still hold the old list
	e.renderMu.Lock()
	e.renderMu.Unlock()
}

func (e *Engine) sinkList() []Sink {
	e.sinkMu.RLock()
	defer e.sinkMu.RUnlock()
	if len(e.sinks) == 0 {
		return nil
	}
	out := make([]Sink, len(e.sinks))
	copy(out, e.sinks)
	return out
}

// ToPCM converts float frames to interleaved 16 bit samples, clipping to
// [-1, 1].
func ToPCM(frames [][2]float64) []int16 {
	pcm := make([]int16, len(frames)*2)
	for i, f := range frames {
		pcm[2*i] = toInt16(f[0])
		pcm[2*i+1] = toInt16(f[1])
	}
	return pcm
}

func toInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}
