package chain

import "math"

// Fixed corner frequencies of the tone stages
const (
	LowShelfHz  = 200.0
	PeakingHz   = 1000.0
	HighShelfHz = 5000.0

	peakingQ = 0.7
	shelfQ   = math.Sqrt2 / 2
	lowpassQ = math.Sqrt2 / 2
)

type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	bypass     bool

	// direct form I memory, per channel
	x1, x2 [2]float64
	y1, y2 [2]float64
}

func (f *biquad) set(b, a []float64) {
	f.b0, f.b1, f.b2 = b[0], b[1], b[2]
	f.a1, f.a2 = a[0], a[1]
	f.bypass = false
}

func (f *biquad) clear() {
	f.x1, f.x2 = [2]float64{}, [2]float64{}
	f.y1, f.y2 = [2]float64{}, [2]float64{}
}

func (f *biquad) process(ch int, x float64) float64 {
	if f.bypass {
		return x
	}
	y := f.b0*x + f.b1*f.x1[ch] + f.b2*f.x2[ch] - f.a1*f.y1[ch] - f.a2*f.y2[ch]
	f.x2[ch] = f.x1[ch]
	f.x1[ch] = x
	f.y2[ch] = f.y1[ch]
	f.y1[ch] = y
	return y
}

// Processor runs a deck's audio through low-shelf, peaking, high-shelf,
// low-pass and gain, in that order. It belongs to the render path and is
// not safe for concurrent use.
type Processor struct {
	sampleRate int
	params     Params
	configured bool
	epoch      uint64

	low, mid, high, lowpass biquad
}

func NewProcessor(sampleRate int) *Processor {
	return &Processor{sampleRate: sampleRate}
}

// Update installs the parameters for the next block. Coefficients are only
// recomputed when params differ from the previous call. A change of epoch
// marks a transport discontinuity and clears the filter memory.
func (p *Processor) Update(params Params, epoch uint64) {
	if epoch != p.epoch {
		p.epoch = epoch
		p.Clear()
	}
	if p.configured && params == p.params {
		return
	}
	p.params = params
	p.configured = true

	fs := float64(p.sampleRate)
	setShelf(&p.low, params.LowDB, func() ([]float64, []float64) {
		return makeBiquadLowShelfH(LowShelfHz/fs, shelfQ, params.LowDB)
	})
	setShelf(&p.mid, params.MidDB, func() ([]float64, []float64) {
		return makeBiquadPeakingEQH(PeakingHz/fs, peakingQ, params.MidDB)
	})
	setShelf(&p.high, params.HighDB, func() ([]float64, []float64) {
		return makeBiquadHighShelfH(HighShelfHz/fs, shelfQ, params.HighDB)
	})
	if params.FilterOpen(p.sampleRate) {
		p.lowpass.bypass = true
		p.lowpass.clear()
	} else {
		p.lowpass.set(makeBiquadLowpassH(params.CutoffHz/fs, lowpassQ))
	}
}

func setShelf(f *biquad, db float64, design func() ([]float64, []float64)) {
	if db == 0 {
		f.bypass = true
		f.clear()
		return
	}
	f.set(design())
}

// Clear drops the filter memory of every stage.
func (p *Processor) Clear() {
	p.low.clear()
	p.mid.clear()
	p.high.clear()
	p.lowpass.clear()
}

// Process filters the stereo block in place.
func (p *Processor) Process(samples [][2]float64) {
	gain := p.params.Gain
	if !p.configured {
		gain = 1
	}
	for i := range samples {
		for ch := 0; ch < 2; ch++ {
			x := samples[i][ch]
			x = p.low.process(ch, x)
			x = p.mid.process(ch, x)
			x = p.high.process(ch, x)
			x = p.lowpass.process(ch, x)
			samples[i][ch] = x * gain
		}
	}
}

// RBJ cookbook designs; fc is normalised to the sample rate.

func makeBiquadLowpassH(fc, q float64) ([]float64, []float64) {
	w0 := 2 * math.Pi * fc
	alpha := math.Sin(w0) / (2 * q)
	cw := math.Cos(w0)
	b0 := (1 - cw) / 2
	b1 := 1 - cw
	b2 := (1 - cw) / 2
	a0 := 1 + alpha
	a1 := -2 * cw
	a2 := 1 - alpha
	return []float64{b0 / a0, b1 / a0, b2 / a0}, []float64{a1 / a0, a2 / a0}
}

func makeBiquadPeakingEQH(fc, q, dBgain float64) ([]float64, []float64) {
	w0 := 2 * math.Pi * fc
	alpha := math.Sin(w0) / (2 * q)
	A := math.Pow(10, dBgain/40)
	cw := math.Cos(w0)
	b0 := 1 + alpha*A
	b1 := -2 * cw
	b2 := 1 - alpha*A
	a0 := 1 + alpha/A
	a1 := -2 * cw
	a2 := 1 - alpha/A
	return []float64{b0 / a0, b1 / a0, b2 / a0}, []float64{a1 / a0, a2 / a0}
}

func makeBiquadLowShelfH(fc, q, dBgain float64) ([]float64, []float64) {
	w0 := 2 * math.Pi * fc
	alpha := math.Sin(w0) / (2 * q)
	A := math.Pow(10, dBgain/40)
	cw := math.Cos(w0)
	sa := 2 * math.Sqrt(A) * alpha
	b0 := A * ((A + 1) - (A-1)*cw + sa)
	b1 := 2 * A * ((A - 1) - (A+1)*cw)
	b2 := A * ((A + 1) - (A-1)*cw - sa)
	a0 := (A + 1) + (A-1)*cw + sa
	a1 := -2 * ((A - 1) + (A+1)*cw)
	a2 := (A + 1) + (A-1)*cw - sa
	return []float64{b0 / a0, b1 / a0, b2 / a0}, []float64{a1 / a0, a2 / a0}
}

func makeBiquadHighShelfH(fc, q, dBgain float64) ([]float64, []float64) {
	w0 := 2 * math.Pi * fc
	alpha := math.Sin(w0) / (2 * q)
	A := math.Pow(10, dBgain/40)
	cw := math.Cos(w0)
	sa := 2 * math.Sqrt(A) * alpha
	b0 := A * ((A + 1) + (A-1)*cw + sa)
	b1 := -2 * A * ((A - 1) + (A+1)*cw)
	b2 := A * ((A + 1) + (A-1)*cw - sa)
	a0 := (A + 1) - (A-1)*cw + sa
	a1 := 2 * ((A - 1) - (A+1)*cw)
	a2 := (A + 1) - (A-1)*cw - sa
	return []float64{b0 / a0, b1 / a0, b2 / a0}, []float64{a1 / a0, a2 / a0}
}
