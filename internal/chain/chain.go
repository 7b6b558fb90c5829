package chain

import "math"

// Parameter bounds for a deck's signal chain
const (
	MinLowDB  = -24.0
	MaxLowDB  = 24.0
	MinMidDB  = -18.0
	MaxMidDB  = 18.0
	MinHighDB = -24.0
	MaxHighDB = 24.0

	MinCutoffHz = 20.0

	MinRate = 0.92
	MaxRate = 1.08

	MinGain = 0.0
	MaxGain = 2.0
)

// Params is a snapshot of the per-deck signal chain settings.
type Params struct {
	LowDB    float64 `json:"low_db" yaml:"low_db"`
	MidDB    float64 `json:"mid_db" yaml:"mid_db"`
	HighDB   float64 `json:"high_db" yaml:"high_db"`
	CutoffHz float64 `json:"cutoff_hz" yaml:"cutoff_hz"`
	Rate     float64 `json:"rate" yaml:"rate"`
	Gain     float64 `json:"gain" yaml:"gain"`
}

// Chain holds the mutable settings of one deck's signal chain.
// It is not safe for concurrent use; the owning deck serializes access.
type Chain struct {
	sampleRate int
	params     Params
}

// New returns a neutral chain for the given output sample rate.
func New(sampleRate int) *Chain {
	c := &Chain{sampleRate: sampleRate}
	c.params = Neutral(sampleRate)
	return c
}

// Neutral returns flat EQ, a fully open filter, unity rate and unity gain.
func Neutral(sampleRate int) Params {
	return Params{
		CutoffHz: Nyquist(sampleRate),
		Rate:     1,
		Gain:     1,
	}
}

// Nyquist returns half the sample rate.
func Nyquist(sampleRate int) float64 {
	return float64(sampleRate) / 2
}

func (c *Chain) Params() Params {
	return c.params
}

func (c *Chain) SampleRate() int {
	return c.sampleRate
}

// SetEQ stores new band gains in dB, clamping each band to its bounds.
func (c *Chain) SetEQ(lowDB, midDB, highDB float64) {
	c.params.LowDB = clamp(lowDB, MinLowDB, MaxLowDB)
	c.params.MidDB = clamp(midDB, MinMidDB, MaxMidDB)
	c.params.HighDB = clamp(highDB, MinHighDB, MaxHighDB)
}

// SetCutoff moves the low-pass corner, clamped to [20 Hz, Nyquist].
func (c *Chain) SetCutoff(hz float64) {
	c.params.CutoffHz = clamp(hz, MinCutoffHz, Nyquist(c.sampleRate))
}

// SetRate applies a pitch fader deflection: the playback rate becomes
// 1+deflection, limited to ±8 % of unity.
func (c *Chain) SetRate(deflection float64) {
	c.SetRateMultiplier(1 + deflection)
}

// SetRateMultiplier sets the playback rate directly, limited to ±8 % of unity.
func (c *Chain) SetRateMultiplier(rate float64) {
	c.params.Rate = clamp(rate, MinRate, MaxRate)
}

func (c *Chain) ResetRate() {
	c.params.Rate = 1
}

// SetGain sets the final gain stage feeding the mixer bus.
func (c *Chain) SetGain(gain float64) {
	c.params.Gain = clamp(gain, MinGain, MaxGain)
}

// Reset restores flat EQ, an open filter and unity gain. Rate is untouched.
func (c *Chain) Reset() {
	rate := c.params.Rate
	c.params = Neutral(c.sampleRate)
	c.params.Rate = rate
}

// FilterOpen reports whether the low-pass stage is effectively bypassed.
func (p Params) FilterOpen(sampleRate int) bool {
	return p.CutoffHz >= 0.99*Nyquist(sampleRate)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
