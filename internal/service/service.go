package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/rmxr/internal/asset"
	"github.com/audiolibrelab/rmxr/internal/audio"
	"github.com/audiolibrelab/rmxr/internal/config"
	"github.com/audiolibrelab/rmxr/internal/deck"
	"github.com/audiolibrelab/rmxr/internal/mix"
	"github.com/audiolibrelab/rmxr/internal/publish"
	"github.com/audiolibrelab/rmxr/internal/render"
	"github.com/audiolibrelab/rmxr/internal/stream"
)

var (
	ErrUnknownDeck      = errors.New("unknown deck")
	ErrNothingToPublish = errors.New("no recording to publish")
	ErrSuperseded       = errors.New("load superseded by a newer load")
)

// Service represents the studio: two decks, the mixer, the recorder and
// the publish step, as driven by the HTTP server and the console.
type Service interface {
	// Deck operations
	LoadDeck(ctx context.Context, id deck.ID, src string) (*asset.Info, error)
	LoadDeckBytes(ctx context.Context, id deck.ID, name string, data []byte) (*asset.Info, error)
	Play(id deck.ID) error
	Pause(id deck.ID) error
	Seek(id deck.ID, seconds float64) error
	Stop(id deck.ID, keepSettings bool) error
	SetEQ(id deck.ID, lowDB, midDB, highDB float64) error
	SetFilter(id deck.ID, hz float64) error
	SetRate(id deck.ID, deflection float64) error
	SetGain(id deck.ID, gain float64) error
	SetBPM(id deck.ID, bpm float64) error

	// Mixer operations
	SyncDecks() bool
	SetCrossfade(x float64)
	SetMasterGain(v float64)
	ResetMixer()

	// Recording operations
	StartRecording() error
	StopRecording() (*audio.CapturedAsset, error)
	DiscardRecording()
	RecordedAsset() *audio.CapturedAsset
	Publish(ctx context.Context, caption string) (*publish.Post, error)

	// Information operations
	Status() Status
	GetConfig() *config.Config
	GetLastError() string
}

// DeckStatus is a deck snapshot plus derived UI values.
type DeckStatus struct {
	deck.Snapshot
	Loaded   bool    `json:"loaded"`
	Progress float64 `json:"progress"`
}

type RecorderStatus struct {
	State   audio.Status         `json:"state"`
	Session *audio.SessionInfo   `json:"session,omitempty"`
	Asset   *audio.CapturedAsset `json:"asset,omitempty"`
}

// Status is the full studio snapshot.
type Status struct {
	Decks     []DeckStatus   `json:"decks"`
	Mixer     mix.Levels     `json:"mixer"`
	Recorder  RecorderStatus `json:"recorder"`
	Meter     render.Reading `json:"meter"`
	Listeners int            `json:"listeners"`
	LastError string         `json:"last_error,omitempty"`
}

// Options overrides collaborators, mainly for tests and offline rendering.
type Options struct {
	Clock     deck.Clock
	Loader    *asset.Loader
	Publisher publish.Publisher
}

// StudioService is the main service implementation
type StudioService struct {
	cfg         *config.Config
	mixer       *mix.Mixer
	engine      *render.Engine
	loader      *asset.Loader
	recorder    audio.Recorder
	publisher   publish.Publisher
	broadcaster *stream.Broadcaster

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

var _ Service = (*StudioService)(nil)

// New creates a studio from a resolved configuration.
func New(cfg *config.Config, opts Options) (*StudioService, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	rate := cfg.Audio.SampleRate

	mopts := mix.DefaultOptions(rate)
	mopts.Clock = opts.Clock
	mopts.MasterGain = cfg.Mixer.MasterGainOrDefault()
	mopts.Crossfade = cfg.Mixer.CrossfadeOrDefault()
	mixer := mix.New(mopts)

	engine := render.New(mixer, render.Options{
		SampleRate: rate,
		Quantum:    time.Duration(cfg.Audio.QuantumMS) * time.Millisecond,
	})

	loader := opts.Loader
	if loader == nil {
		loader = asset.NewLoader(rate)
	}

	publisher := opts.Publisher
	if publisher == nil {
		p, err := publish.New(cfg.Publish)
		if err != nil {
			return nil, err
		}
		publisher = p
	}

	s := &StudioService{
		cfg:         cfg,
		mixer:       mixer,
		engine:      engine,
		loader:      loader,
		recorder:    audio.NewCaptureRecorder(engine, rate, audio.Format(cfg.Recorder.Format)),
		publisher:   publisher,
		broadcaster: stream.NewBroadcaster(),
	}
	engine.Attach(s.broadcaster)

	for _, d := range mixer.Decks() {
		if dc, ok := cfg.Decks[string(d.ID())]; ok {
			applyDeckConfig(d, dc)
		}
	}

	return s, nil
}

func applyDeckConfig(d *deck.Deck, dc config.DeckConfig) {
	d.SetEQ(dc.LowDB, dc.MidDB, dc.HighDB)
	if dc.CutoffHz > 0 {
		d.SetCutoff(dc.CutoffHz)
	}
	if dc.Gain > 0 {
		d.SetGain(dc.Gain)
	}
	if dc.BPM > 0 {
		d.SetBPM(dc.BPM)
	}
	slog.Debug("Deck configured", "deck", d.ID(), "preset", dc.Preset)
}

// LoadConfiguredSources loads every deck that has a source in the
// configuration.
func (s *StudioService) LoadConfiguredSources(ctx context.Context) error {
	for _, d := range s.mixer.Decks() {
		dc, ok := s.cfg.Decks[string(d.ID())]
		if !ok || dc.Source == "" {
			continue
		}
		if _, err := s.LoadDeck(ctx, d.ID(), dc.Source); err != nil {
			return err
		}
	}
	return nil
}

func (s *StudioService) Engine() *render.Engine              { return s.engine }
func (s *StudioService) Mixer() *mix.Mixer                   { return s.mixer }
func (s *StudioService) Broadcaster() *stream.Broadcaster    { return s.broadcaster }
func (s *StudioService) Recorder() audio.Recorder            { return s.recorder }
func (s *StudioService) GetConfig() *config.Config           { return s.cfg }
func (s *StudioService) RecordedAsset() *audio.CapturedAsset { return s.recorder.Asset() }

func (s *StudioService) deck(id deck.ID) (*deck.Deck, error) {
	d := s.mixer.Deck(id)
	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeck, id)
	}
	return d, nil
}

// withDeck runs fn on deck id. Parameter edits never fail once the deck
// exists.
func (s *StudioService) withDeck(id deck.ID, fn func(d *deck.Deck)) error {
	d, err := s.deck(id)
	if err != nil {
		s.setLastError(err.Error())
		return err
	}
	fn(d)
	return nil
}

// LoadDeck fetches and decodes src, then installs it unless another load
// on the same deck started in the meantime.
func (s *StudioService) LoadDeck(ctx context.Context, id deck.ID, src string) (*asset.Info, error) {
	return s.load(ctx, id, src, func(ctx context.Context) (*asset.Asset, error) {
		return s.loader.Load(ctx, src)
	})
}

// LoadDeckBytes decodes uploaded bytes into deck id.
func (s *StudioService) LoadDeckBytes(ctx context.Context, id deck.ID, name string, data []byte) (*asset.Info, error) {
	return s.load(ctx, id, name, func(ctx context.Context) (*asset.Asset, error) {
		return s.loader.LoadBytes(ctx, name, data)
	})
}

func (s *StudioService) load(ctx context.Context, id deck.ID, src string, decode func(context.Context) (*asset.Asset, error)) (*asset.Info, error) {
	slog.Debug("Service.LoadDeck called", "deck", id, "source", src)
	d, err := s.deck(id)
	if err != nil {
		s.setLastError(err.Error())
		return nil, err
	}

	var loaded *asset.Asset
	installed, err := d.LoadFrom(ctx, func(ctx context.Context) (*asset.Asset, error) {
		a, err := decode(ctx)
		loaded = a
		return a, err
	})
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to load deck %s: %v", id, err))
		return nil, err
	}
	if !installed {
		return nil, ErrSuperseded
	}

	s.clearLastError()
	info := loaded.Info()
	return &info, nil
}

func (s *StudioService) Play(id deck.ID) error {
	return s.withDeck(id, func(d *deck.Deck) { d.Play() })
}

func (s *StudioService) Pause(id deck.ID) error {
	return s.withDeck(id, func(d *deck.Deck) { d.Pause() })
}

func (s *StudioService) Seek(id deck.ID, seconds float64) error {
	return s.withDeck(id, func(d *deck.Deck) { d.Seek(seconds) })
}

func (s *StudioService) Stop(id deck.ID, keepSettings bool) error {
	return s.withDeck(id, func(d *deck.Deck) { d.Stop(keepSettings) })
}

func (s *StudioService) SetEQ(id deck.ID, lowDB, midDB, highDB float64) error {
	return s.withDeck(id, func(d *deck.Deck) { d.SetEQ(lowDB, midDB, highDB) })
}

func (s *StudioService) SetFilter(id deck.ID, hz float64) error {
	return s.withDeck(id, func(d *deck.Deck) { d.SetCutoff(hz) })
}

func (s *StudioService) SetRate(id deck.ID, deflection float64) error {
	return s.withDeck(id, func(d *deck.Deck) { d.SetRate(deflection) })
}

func (s *StudioService) SetGain(id deck.ID, gain float64) error {
	return s.withDeck(id, func(d *deck.Deck) { d.SetGain(gain) })
}

func (s *StudioService) SetBPM(id deck.ID, bpm float64) error {
	return s.withDeck(id, func(d *deck.Deck) { d.SetBPM(bpm) })
}

// SyncDecks matches deck B's tempo to deck A. It reports false when either
// deck is empty or deck B is not playing.
func (s *StudioService) SyncDecks() bool {
	return s.mixer.SyncBToA()
}

func (s *StudioService) SetCrossfade(x float64) {
	s.mixer.SetCrossfade(x)
}

func (s *StudioService) SetMasterGain(v float64) {
	s.mixer.SetMasterGain(v)
}

// ResetMixer stops both decks with neutral chains and recenters the mixer.
func (s *StudioService) ResetMixer() {
	s.mixer.Reset()
}

// StartRecording begins capturing the master bus
func (s *StudioService) StartRecording() error {
	err := s.recorder.Start()
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
	} else {
		s.clearLastError()
	}
	return err
}

// StopRecording stops the current recording session
func (s *StudioService) StopRecording() (*audio.CapturedAsset, error) {
	captured, err := s.recorder.Stop()
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
	} else {
		s.clearLastError()
	}
	return captured, err
}

func (s *StudioService) DiscardRecording() {
	s.recorder.Discard()
}

// Publish sends the kept recording with the given caption. The recording
// is dropped once published; on failure it stays available for a retry.
func (s *StudioService) Publish(ctx context.Context, caption string) (*publish.Post, error) {
	captured := s.recorder.Asset()
	if captured == nil {
		s.setLastError(ErrNothingToPublish.Error())
		return nil, ErrNothingToPublish
	}

	meta := publish.Meta{
		Style: caption,
		BPM:   s.mixer.AverageBPM(),
	}
	post, err := s.publisher.Publish(ctx, captured, meta)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to publish: %v", err))
		return nil, err
	}

	if s.recorder.Asset() == captured {
		s.recorder.Discard()
	}
	s.clearLastError()
	return post, nil
}

// Status returns a snapshot of the whole studio.
func (s *StudioService) Status() Status {
	st := Status{
		Mixer:     s.mixer.Levels(),
		Meter:     s.engine.Meter().Read(),
		Listeners: s.broadcaster.ListenerCount(),
		LastError: s.GetLastError(),
	}

	for _, d := range s.mixer.Decks() {
		snap := d.Snapshot()
		ds := DeckStatus{Snapshot: snap, Loaded: snap.Asset != nil}
		if snap.Duration > 0 {
			ds.Progress = snap.Position / snap.Duration
		}
		st.Decks = append(st.Decks, ds)
	}

	state, session := s.recorder.GetStatus()
	st.Recorder = RecorderStatus{
		State:   state,
		Session: session,
		Asset:   s.recorder.Asset(),
	}
	return st
}

// GetLastError returns the last error message (thread-safe)
func (s *StudioService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *StudioService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *StudioService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
