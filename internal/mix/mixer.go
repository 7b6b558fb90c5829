package mix

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/audiolibrelab/rmxr/internal/deck"
)

const DefaultMasterGain = 0.8

// EqualPower is the crossfade law: cos(t·π/2)².
func EqualPower(t float64) float64 {
	c := math.Cos(t * math.Pi / 2)
	return c * c
}

// Levels is the immutable gain set the render path reads once per quantum.
type Levels struct {
	Crossfade float64 `json:"crossfade"`
	A         float64 `json:"gain_a"`
	B         float64 `json:"gain_b"`
	Master    float64 `json:"master_gain"`
}

// Gain returns the crossfade gain for deck id.
func (l Levels) Gain(id deck.ID) float64 {
	if id == deck.B {
		return l.B
	}
	return l.A
}

func levelsFor(x, master float64) *Levels {
	return &Levels{
		Crossfade: x,
		A:         EqualPower(x),
		B:         EqualPower(1 - x),
		Master:    master,
	}
}

// Mixer owns decks A and B and the stage downstream of them: crossfade and
// master gain. It does not mediate deck transport or chain edits.
type Mixer struct {
	a, b *deck.Deck

	mu     sync.Mutex // serializes writers of levels
	levels atomic.Pointer[Levels]

	defaultMaster    float64
	defaultCrossfade float64
}

// Options seeds a new mixer.
type Options struct {
	SampleRate int
	Clock      deck.Clock
	Crossfade  float64
	MasterGain float64
	BPMA       float64
	BPMB       float64
}

// DefaultOptions returns the stock mixer setup at sampleRate.
func DefaultOptions(sampleRate int) Options {
	return Options{
		SampleRate: sampleRate,
		MasterGain: DefaultMasterGain,
		BPMA:       deck.DefaultBPM,
		BPMB:       deck.DefaultBPM,
	}
}

func New(opts Options) *Mixer {
	m := &Mixer{
		a:                deck.New(deck.A, opts.SampleRate, opts.Clock),
		b:                deck.New(deck.B, opts.SampleRate, opts.Clock),
		defaultMaster:    clamp01(opts.MasterGain),
		defaultCrossfade: clamp01(opts.Crossfade),
	}
	if opts.BPMA > 0 {
		m.a.SetBPM(opts.BPMA)
	}
	if opts.BPMB > 0 {
		m.b.SetBPM(opts.BPMB)
	}
	m.levels.Store(levelsFor(m.defaultCrossfade, m.defaultMaster))
	return m
}

func (m *Mixer) A() *deck.Deck { return m.a }
func (m *Mixer) B() *deck.Deck { return m.b }

// Deck returns the deck with the given id, or nil.
func (m *Mixer) Deck(id deck.ID) *deck.Deck {
	switch id {
	case deck.A:
		return m.a
	case deck.B:
		return m.b
	}
	return nil
}

func (m *Mixer) Decks() []*deck.Deck {
	return []*deck.Deck{m.a, m.b}
}

// Levels returns the gain set currently in effect.
func (m *Mixer) Levels() Levels {
	return *m.levels.Load()
}

// SetCrossfade moves the crossfader, clamped to [0,1]. Both deck gains are
// published together.
func (m *Mixer) SetCrossfade(x float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	x = clamp01(x)
	cur := m.levels.Load()
	next := levelsFor(x, cur.Master)
	m.levels.Store(next)
	slog.Debug("Crossfade", "position", x, "gain_a", next.A, "gain_b", next.B)
}

// SetMasterGain scales the summed output, clamped to [0,1].
func (m *Mixer) SetMasterGain(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.levels.Load()
	next := *cur
	next.Master = clamp01(v)
	m.levels.Store(&next)
	slog.Debug("Master gain", "gain", next.Master)
}

// SyncBToA sets deck B's rate to bpmA/bpmB. It does nothing unless both
// decks are loaded and deck B is playing.
func (m *Mixer) SyncBToA() bool {
	if !m.a.Loaded() || !m.b.Loaded() || m.b.State() != deck.StatePlaying {
		return false
	}
	ratio := m.a.BPM() / m.b.BPM()
	m.b.SetRateMultiplier(ratio)
	slog.Info("Synced deck B to A", "bpm_a", m.a.BPM(), "bpm_b", m.b.BPM(), "rate", m.b.Params().Rate)
	return true
}

// AverageBPM is the rounded mean of both decks' tempos.
func (m *Mixer) AverageBPM() int {
	return int(math.Round((m.a.BPM() + m.b.BPM()) / 2))
}

// Reset fully stops both decks with neutral chains and restores the
// configured crossfade and master gain.
func (m *Mixer) Reset() {
	m.a.Stop(false)
	m.b.Stop(false)
	m.mu.Lock()
	m.levels.Store(levelsFor(m.defaultCrossfade, m.defaultMaster))
	m.mu.Unlock()
	slog.Info("Mixer reset")
}

// Tick applies end-of-asset transitions on both decks.
func (m *Mixer) Tick() {
	m.a.Tick()
	m.b.Tick()
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
