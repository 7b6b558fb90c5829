package render

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Band edges of the meter's spectrum summary
const (
	LowBandHz  = 250.0
	HighBandHz = 4000.0
)

// Reading summarises the most recent meter window.
type Reading struct {
	RMS  float64 `json:"rms"`
	Peak float64 `json:"peak"`
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// Meter keeps a ring buffer of the mono master mix for level and
// spectrum readouts.
type Meter struct {
	mu         sync.Mutex
	buf        []float64
	pos        int
	size       int
	sampleRate int
}

// NewMeter allocates a window of size samples.
func NewMeter(size, sampleRate int) *Meter {
	if size <= 0 {
		size = 2048
	}
	return &Meter{
		buf:        make([]float64, size),
		size:       size,
		sampleRate: sampleRate,
	}
}

// Write folds frames to mono and appends them.
func (m *Meter) Write(frames [][2]float64) {
	m.mu.Lock()
	for _, f := range frames {
		m.buf[m.pos] = (f[0] + f[1]) / 2
		m.pos = (m.pos + 1) % m.size
	}
	m.mu.Unlock()
}

// Samples returns the last n samples in chronological order.
func (m *Meter) Samples(n int) []float64 {
	if n > m.size {
		n = m.size
	}
	out := make([]float64, n)
	m.mu.Lock()
	start := (m.pos - n + m.size) % m.size
	for i := range n {
		out[i] = m.buf[(start+i)%m.size]
	}
	m.mu.Unlock()
	return out
}

// Read computes levels over the full window.
func (m *Meter) Read() Reading {
	samples := m.Samples(m.size)

	var r Reading
	var sum float64
	for _, s := range samples {
		sum += s * s
		if a := math.Abs(s); a > r.Peak {
			r.Peak = a
		}
	}
	r.RMS = math.Sqrt(sum / float64(len(samples)))
	if r.Peak == 0 {
		return r
	}

	n := len(samples)
	windowed := append([]float64(nil), samples...)
	window.Apply(windowed, window.Hann)
	spectrum := fft.FFTReal(windowed)

	var low, mid, high float64
	binHz := float64(m.sampleRate) / float64(n)
	for k := 1; k < n/2; k++ {
		mag := cmplx.Abs(spectrum[k])
		energy := mag * mag
		switch f := float64(k) * binHz; {
		case f < LowBandHz:
			low += energy
		case f < HighBandHz:
			mid += energy
		default:
			high += energy
		}
	}
	norm := 2 / float64(n)
	r.Low = math.Sqrt(low) * norm
	r.Mid = math.Sqrt(mid) * norm
	r.High = math.Sqrt(high) * norm
	return r
}
