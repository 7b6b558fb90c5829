package deck

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/audiolibrelab/rmxr/internal/asset"
	"github.com/audiolibrelab/rmxr/internal/chain"
)

// ID names one of the two decks
type ID string

const (
	A ID = "a"
	B ID = "b"
)

// ParseID accepts "a"/"b" in either case.
func ParseID(s string) (ID, bool) {
	switch s {
	case "a", "A":
		return A, true
	case "b", "B":
		return B, true
	}
	return "", false
}

// State represents the transport state of a deck
type State string

const (
	StateStopped State = "STOPPED"
	StatePlaying State = "PLAYING"
	StatePaused  State = "PAUSED"
)

// Tempo bounds and default
const (
	DefaultBPM = 124.0
	MinBPM     = 40.0
	MaxBPM     = 300.0
)

// Deck owns one asset, its signal chain and its transport. Position is
// anchored to the wall clock while playing instead of being counted per
// tick.
type Deck struct {
	id    ID
	clock Clock

	mu         sync.RWMutex
	asset      *asset.Asset
	chain      *chain.Chain
	state      State
	position   float64
	startedAt  time.Time
	generation uint64
	epoch      uint64
	bpm        float64
}

// New creates an empty, stopped deck rendering at sampleRate.
func New(id ID, sampleRate int, clock Clock) *Deck {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Deck{
		id:    id,
		clock: clock,
		chain: chain.New(sampleRate),
		state: StateStopped,
		bpm:   DefaultBPM,
	}
}

func (d *Deck) ID() ID { return d.id }

func (d *Deck) Clock() Clock { return d.clock }

// Ticket identifies one asynchronous load.
type Ticket struct {
	generation uint64
}

// Load installs a, stops the transport and rewinds to 0. EQ, filter and
// gain are kept, rate goes back to unity. Any load still in flight becomes
// stale.
func (d *Deck) Load(a *asset.Asset) {
	if a == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	d.installLocked(a)
}

// Begin starts an asynchronous load and supersedes all earlier ones.
func (d *Deck) Begin() Ticket {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	return Ticket{generation: d.generation}
}

// Install completes the load started by t. It returns false, leaving the
// deck untouched, when a newer load has begun since.
func (d *Deck) Install(t Ticket, a *asset.Asset) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a == nil || t.generation != d.generation {
		slog.Debug("Discarding stale load", "deck", d.id, "ticket", t.generation, "current", d.generation)
		return false
	}
	d.installLocked(a)
	return true
}

// LoadFrom runs decode and installs its result unless a newer load began
// in the meantime. A decode failure leaves the deck unchanged.
func (d *Deck) LoadFrom(ctx context.Context, decode func(context.Context) (*asset.Asset, error)) (bool, error) {
	t := d.Begin()
	a, err := decode(ctx)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.Install(t, a), nil
}

func (d *Deck) installLocked(a *asset.Asset) {
	d.asset = a
	d.state = StateStopped
	d.position = 0
	d.epoch++
	d.chain.ResetRate()
	slog.Info("Deck loaded", "deck", d.id, "source", a.Source(), "seconds", a.Seconds())
}

// Play starts or resumes playback. Empty or already playing decks ignore it.
func (d *Deck) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	d.settleLocked(now)
	if d.state == StatePlaying || d.asset == nil {
		return
	}
	d.state = StatePlaying
	d.startedAt = now
	d.epoch++
	slog.Info("Deck playing", "deck", d.id, "position", d.position)
}

// Pause freezes the position at the exact elapsed point.
func (d *Deck) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	d.settleLocked(now)
	if d.state != StatePlaying {
		return
	}
	d.position = d.clampLocked(d.effectiveLocked(now))
	d.state = StatePaused
	d.epoch++
	slog.Info("Deck paused", "deck", d.id, "position", d.position)
}

// Seek moves the cursor, clamped to [0, duration]. While playing the
// deck is re-anchored at the new position in one step.
func (d *Deck) Seek(seconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	d.settleLocked(now)
	if d.asset == nil {
		return
	}
	d.position = d.clampLocked(seconds)
	if d.state == StatePlaying {
		d.startedAt = now
	}
	d.epoch++
	slog.Debug("Deck seek", "deck", d.id, "position", d.position, "state", d.state)
	d.settleLocked(now)
}

// Stop rewinds to 0. Unless keepChainSettings is set, EQ, filter and gain
// are reset to neutral too.
func (d *Deck) Stop(keepChainSettings bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	if !keepChainSettings {
		d.chain.Reset()
	}
	slog.Info("Deck stopped", "deck", d.id, "keep_chain", keepChainSettings)
}

func (d *Deck) stopLocked() {
	d.state = StateStopped
	d.position = 0
	d.epoch++
}

// Tick applies the end-of-asset transition and reports the current state.
func (d *Deck) Tick() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settleLocked(d.clock.Now())
	return d.state
}

// settleLocked performs the one-shot auto stop once the effective position
// has reached the end of the asset. Chain settings survive.
func (d *Deck) settleLocked(now time.Time) {
	if d.state != StatePlaying || d.asset == nil {
		return
	}
	if d.effectiveLocked(now) >= d.asset.Seconds() {
		d.stopLocked()
		slog.Info("Deck reached end", "deck", d.id, "source", d.asset.Source())
	}
}

func (d *Deck) effectiveLocked(now time.Time) float64 {
	if d.state != StatePlaying {
		return d.position
	}
	elapsed := now.Sub(d.startedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return d.position + elapsed*d.chain.Params().Rate
}

func (d *Deck) clampLocked(seconds float64) float64 {
	if math.IsNaN(seconds) || seconds < 0 {
		return 0
	}
	if d.asset == nil {
		return 0
	}
	if dur := d.asset.Seconds(); seconds > dur {
		return dur
	}
	return seconds
}

// reanchorLocked folds the elapsed time into position so a rate change
// only affects time from now on.
func (d *Deck) reanchorLocked(now time.Time) {
	if d.state != StatePlaying {
		return
	}
	d.position = d.effectiveLocked(now)
	d.startedAt = now
}

// SetRate sets the pitch fader deflection; rate becomes 1+deflection,
// within ±8 %. Only a playing deck takes the change.
func (d *Deck) SetRate(deflection float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	d.settleLocked(now)
	if d.state != StatePlaying {
		slog.Debug("Deck rate ignored", "deck", d.id, "state", d.state)
		return
	}
	d.reanchorLocked(now)
	d.chain.SetRate(deflection)
	slog.Debug("Deck rate", "deck", d.id, "rate", d.chain.Params().Rate)
}

// SetRateMultiplier sets the rate directly, within ±8 %. Ignored unless
// the deck is playing.
func (d *Deck) SetRateMultiplier(rate float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	d.settleLocked(now)
	if d.state != StatePlaying {
		slog.Debug("Deck rate ignored", "deck", d.id, "state", d.state)
		return
	}
	d.reanchorLocked(now)
	d.chain.SetRateMultiplier(rate)
	slog.Debug("Deck rate", "deck", d.id, "rate", d.chain.Params().Rate)
}

func (d *Deck) SetEQ(lowDB, midDB, highDB float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain.SetEQ(lowDB, midDB, highDB)
	p := d.chain.Params()
	slog.Debug("Deck EQ", "deck", d.id, "low", p.LowDB, "mid", p.MidDB, "high", p.HighDB)
}

func (d *Deck) SetCutoff(hz float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain.SetCutoff(hz)
	slog.Debug("Deck filter", "deck", d.id, "cutoff_hz", d.chain.Params().CutoffHz)
}

func (d *Deck) SetGain(gain float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain.SetGain(gain)
	slog.Debug("Deck gain", "deck", d.id, "gain", d.chain.Params().Gain)
}

// SetBPM records the nominal tempo of the loaded track.
func (d *Deck) SetBPM(bpm float64) {
	if math.IsNaN(bpm) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bpm = math.Max(MinBPM, math.Min(MaxBPM, bpm))
}

func (d *Deck) BPM() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bpm
}

func (d *Deck) Params() chain.Params {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.chain.Params()
}

func (d *Deck) Asset() *asset.Asset {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.asset
}

func (d *Deck) Loaded() bool {
	return d.Asset() != nil
}

func (d *Deck) State() State {
	return d.Tick()
}

// Position returns the effective position in seconds.
func (d *Deck) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	d.settleLocked(now)
	return d.clampLocked(d.effectiveLocked(now))
}

// Duration returns the asset length in seconds, 0 when empty.
func (d *Deck) Duration() float64 {
	a := d.Asset()
	if a == nil {
		return 0
	}
	return a.Seconds()
}

// Progress is position / duration, 0 for an empty deck.
func (d *Deck) Progress() float64 {
	snap := d.Snapshot()
	if snap.Duration <= 0 {
		return 0
	}
	return snap.Position / snap.Duration
}

// Snapshot is a consistent view of a deck for one render quantum.
type Snapshot struct {
	ID       ID           `json:"id"`
	State    State        `json:"state"`
	Asset    *asset.Asset `json:"-"`
	Source   string       `json:"source,omitempty"`
	Position float64      `json:"position_seconds"`
	Duration float64      `json:"duration_seconds"`
	Params   chain.Params `json:"params"`
	BPM      float64      `json:"bpm"`
	Epoch    uint64       `json:"-"`
}

func (d *Deck) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	d.settleLocked(now)

	s := Snapshot{
		ID:       d.id,
		State:    d.state,
		Asset:    d.asset,
		Position: d.clampLocked(d.effectiveLocked(now)),
		Params:   d.chain.Params(),
		BPM:      d.bpm,
		Epoch:    d.epoch,
	}
	if d.asset != nil {
		s.Source = d.asset.Source()
		s.Duration = d.asset.Seconds()
	}
	return s
}
