package render

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/audiolibrelab/rmxr/internal/chain"
	"github.com/audiolibrelab/rmxr/internal/deck"
	"github.com/audiolibrelab/rmxr/internal/mix"
	"github.com/gopxl/beep/v2"
)

const (
	DefaultQuantum   = 20 * time.Millisecond
	DefaultMeterSize = 2048

	// DriftTolerance is how far the render cursor may wander from the
	// deck's clock position before it is snapped back.
	DriftTolerance = 0.25
)

// Options configures an Engine.
type Options struct {
	SampleRate int
	Quantum    time.Duration
	MeterSize  int
}

// voice is the render-side state of one deck.
type voice struct {
	id     deck.ID
	proc   *chain.Processor
	epoch  uint64
	cursor float64 // in asset frames
	primed bool
}

// Engine renders the mixer's output in fixed quanta. It serves both the
// pull model (beep.Streamer, for the speaker) and the push model (Pump,
// for headless and offline rendering).
type Engine struct {
	mixer      *mix.Mixer
	sampleRate int
	quantum    int
	quantumDur time.Duration
	clock      deck.Clock

	renderMu sync.Mutex
	voices   []*voice
	mixBuf   [][2]float64
	deckBuf  [][2]float64
	pending  [][2]float64
	rendered uint64

	meter *Meter

	sinkMu sync.RWMutex
	sinks  []Sink
}

var _ beep.Streamer = (*Engine)(nil)

// advancer is implemented by clocks that only move when told to.
type advancer interface {
	Advance(d time.Duration)
}

func New(m *mix.Mixer, opts Options) *Engine {
	if opts.Quantum <= 0 {
		opts.Quantum = DefaultQuantum
	}
	if opts.MeterSize <= 0 {
		opts.MeterSize = DefaultMeterSize
	}
	quantum := int(int64(opts.SampleRate) * int64(opts.Quantum) / int64(time.Second))
	if quantum < 1 {
		quantum = 1
	}

	e := &Engine{
		mixer:      m,
		sampleRate: opts.SampleRate,
		quantum:    quantum,
		quantumDur: time.Duration(int64(quantum) * int64(time.Second) / int64(opts.SampleRate)),
		clock:      m.A().Clock(),
		mixBuf:     make([][2]float64, quantum),
		deckBuf:    make([][2]float64, quantum),
		meter:      NewMeter(opts.MeterSize, opts.SampleRate),
	}
	for _, d := range m.Decks() {
		e.voices = append(e.voices, &voice{id: d.ID(), proc: chain.NewProcessor(opts.SampleRate)})
	}
	return e
}

func (e *Engine) SampleRate() int                { return e.sampleRate }
func (e *Engine) Channels() int                  { return 2 }
func (e *Engine) QuantumFrames() int             { return e.quantum }
func (e *Engine) QuantumDuration() time.Duration { return e.quantumDur }
func (e *Engine) Meter() *Meter                  { return e.meter }
func (e *Engine) Mixer() *mix.Mixer              { return e.mixer }

// Rendered returns the number of frames produced so far.
func (e *Engine) Rendered() uint64 {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	return e.rendered
}

// Stream implements beep.Streamer. It never drains.
func (e *Engine) Stream(samples [][2]float64) (int, bool) {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	filled := 0
	for filled < len(samples) {
		if len(e.pending) == 0 {
			e.pending = e.renderLocked()
		}
		n := copy(samples[filled:], e.pending)
		e.pending = e.pending[n:]
		filled += n
	}
	return len(samples), true
}

func (e *Engine) Err() error {
	return nil
}

// Pump renders one quantum and returns a copy of it.
func (e *Engine) Pump() [][2]float64 {
	e.renderMu.Lock()
	defer e.renderMu.Unlock()
	e.pending = nil
	out := e.renderLocked()
	cp := make([][2]float64, len(out))
	copy(cp, out)
	return cp
}

// renderLocked produces the next quantum into mixBuf.
func (e *Engine) renderLocked() [][2]float64 {
	levels := e.mixer.Levels()
	for i := range e.mixBuf {
		e.mixBuf[i] = [2]float64{}
	}

	for _, v := range e.voices {
		snap := e.mixer.Deck(v.id).Snapshot()
		if snap.State != deck.StatePlaying || snap.Asset == nil {
			v.primed = false
			continue
		}
		e.renderVoice(v, snap, levels.Gain(v.id))
	}

	for i := range e.mixBuf {
		for ch := 0; ch < 2; ch++ {
			s := e.mixBuf[i][ch] * levels.Master
			e.mixBuf[i][ch] = math.Max(-1, math.Min(1, s))
		}
	}

	e.rendered += uint64(e.quantum)
	e.meter.Write(e.mixBuf)
	e.fanOut(e.mixBuf)

	if a, ok := e.clock.(advancer); ok {
		a.Advance(e.quantumDur)
	}
	return e.mixBuf
}

func (e *Engine) renderVoice(v *voice, snap deck.Snapshot, gain float64) {
	a := snap.Asset
	assetRate := float64(a.SampleRate())
	target := snap.Position * assetRate

	switch {
	case !v.primed || snap.Epoch != v.epoch:
		v.cursor = target
	case math.Abs(v.cursor-target) > DriftTolerance*assetRate:
		slog.Debug("Render cursor resync", "deck", v.id, "cursor", v.cursor/assetRate, "position", snap.Position)
		v.cursor = target
	}
	v.primed = true
	v.epoch = snap.Epoch

	step := snap.Params.Rate * assetRate / float64(e.sampleRate)
	for i := range e.deckBuf {
		e.deckBuf[i] = a.At(v.cursor)
		v.cursor += step
	}

	v.proc.Update(snap.Params, snap.Epoch)
	v.proc.Process(e.deckBuf)

	if gain == 0 {
		return
	}
	for i := range e.mixBuf {
		e.mixBuf[i][0] += e.deckBuf[i][0] * gain
		e.mixBuf[i][1] += e.deckBuf[i][1] * gain
	}
}

func (e *Engine) fanOut(frames [][2]float64) {
	sinks := e.sinkList()
	if len(sinks) == 0 {
		return
	}
	pcm := ToPCM(frames)
	for _, s := range sinks {
		if err := s.WriteAudio(pcm); err != nil {
			slog.Warn("Sink write failed", "error", err)
		}
	}
}
