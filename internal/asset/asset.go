package asset

import (
	"fmt"
	"math"
	"time"
)

// Asset is an immutable decoded stereo buffer. Mono sources are stored
// with the channel duplicated. Frames are at SampleRate(); SourceRate()
// keeps the rate the bytes were encoded at.
type Asset struct {
	source     string
	frames     [][2]float64
	sampleRate int
	sourceRate int
	channels   int
}

// New wraps frames in an Asset. The slice is owned by the asset afterwards.
func New(source string, frames [][2]float64, sampleRate, channels int) *Asset {
	return &Asset{
		source:     source,
		frames:     frames,
		sampleRate: sampleRate,
		sourceRate: sampleRate,
		channels:   channels,
	}
}

func (a *Asset) Source() string  { return a.source }
func (a *Asset) SampleRate() int { return a.sampleRate }
func (a *Asset) SourceRate() int { return a.sourceRate }
func (a *Asset) Channels() int   { return a.channels }
func (a *Asset) Len() int        { return len(a.frames) }

// Seconds returns the length of the asset in seconds.
func (a *Asset) Seconds() float64 {
	if a.sampleRate <= 0 {
		return 0
	}
	return float64(len(a.frames)) / float64(a.sampleRate)
}

func (a *Asset) Duration() time.Duration {
	return time.Duration(a.Seconds() * float64(time.Second))
}

// Frame returns frame i, or silence outside the buffer.
func (a *Asset) Frame(i int) [2]float64 {
	if i < 0 || i >= len(a.frames) {
		return [2]float64{}
	}
	return a.frames[i]
}

// At reads the buffer at a fractional frame position with linear
// interpolation.
func (a *Asset) At(pos float64) [2]float64 {
	i := int(math.Floor(pos))
	frac := pos - float64(i)
	f0 := a.Frame(i)
	if frac == 0 {
		return f0
	}
	f1 := a.Frame(i + 1)
	return [2]float64{
		f0[0] + (f1[0]-f0[0])*frac,
		f0[1] + (f1[1]-f0[1])*frac,
	}
}

// Info is the metadata preview of an asset.
type Info struct {
	Source     string  `json:"source" yaml:"source"`
	Seconds    float64 `json:"duration_seconds" yaml:"duration_seconds"`
	SampleRate int     `json:"sample_rate" yaml:"sample_rate"`
	SourceRate int     `json:"source_rate" yaml:"source_rate"`
	Channels   int     `json:"channels" yaml:"channels"`
	Frames     int     `json:"frames" yaml:"frames"`
}

func (a *Asset) Info() Info {
	return Info{
		Source:     a.source,
		Seconds:    a.Seconds(),
		SampleRate: a.sampleRate,
		SourceRate: a.sourceRate,
		Channels:   a.channels,
		Frames:     len(a.frames),
	}
}

// DecodeError reports source bytes that could not become playable audio.
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to load audio %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
