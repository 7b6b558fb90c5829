package service

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/rmxr/internal/asset"
	"github.com/audiolibrelab/rmxr/internal/audio"
	"github.com/audiolibrelab/rmxr/internal/config"
	"github.com/audiolibrelab/rmxr/internal/deck"
	"github.com/audiolibrelab/rmxr/internal/publish"
)

const testRate = 8000

func newTestService(t *testing.T) (*StudioService, *deck.ManualClock, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.SampleRate = testRate
	cfg.Decks["b"] = config.DeckConfig{Gain: 1.5, BPM: 128, LowDB: -6, CutoffHz: 2000}

	dir := t.TempDir()
	clock := deck.NewManualClock(time.Unix(0, 0))
	s, err := New(cfg, Options{
		Clock:     clock,
		Publisher: publish.NewDirPublisher(dir, "tester"),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, clock, dir
}

func toneWAV(t *testing.T, seconds float64) []byte {
	t.Helper()
	n := int(seconds * testRate)
	pcm := make([]int16, n*2)
	for i := 0; i < n; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*220*float64(i)/testRate))
		pcm[2*i], pcm[2*i+1] = v, v
	}
	data, err := asset.EncodeWAV(pcm, testRate, 2)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestNew_AppliesDeckConfig(t *testing.T) {
	s, _, _ := newTestService(t)

	b := s.Mixer().B()
	p := b.Params()
	if p.Gain != 1.5 || p.LowDB != -6 || p.CutoffHz != 2000 {
		t.Errorf("Expected configured chain on deck B, got %+v", p)
	}
	if b.BPM() != 128 {
		t.Errorf("Expected BPM 128, got %v", b.BPM())
	}
	if l := s.Mixer().Levels(); l.Master != 0.8 || l.A != 1 {
		t.Errorf("Expected default levels, got %+v", l)
	}
}

func TestLoadDeckBytesAndTransport(t *testing.T) {
	s, clock, _ := newTestService(t)
	ctx := context.Background()

	info, err := s.LoadDeckBytes(ctx, deck.A, "tone.wav", toneWAV(t, 2))
	if err != nil {
		t.Fatalf("LoadDeckBytes failed: %v", err)
	}
	if math.Abs(info.Seconds-2) > 1e-9 || info.Channels != 2 {
		t.Errorf("Unexpected info: %+v", info)
	}

	s.Play(deck.A)
	clock.Advance(500 * time.Millisecond)
	s.Pause(deck.A)

	st := s.Status()
	a := st.Decks[0]
	if a.State != deck.StatePaused || math.Abs(a.Position-0.5) > 1e-9 {
		t.Errorf("Expected paused at 0.5s, got %s at %f", a.State, a.Position)
	}
	if math.Abs(a.Progress-0.25) > 1e-9 || !a.Loaded {
		t.Errorf("Expected progress 0.25, got %+v", a)
	}
	if st.Decks[1].Loaded {
		t.Error("Expected deck B empty")
	}
}

func TestLoadDeck_DecodeErrorKeepsDeck(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := s.LoadDeckBytes(ctx, deck.A, "tone.wav", toneWAV(t, 1)); err != nil {
		t.Fatal(err)
	}

	_, err := s.LoadDeckBytes(ctx, deck.A, "junk.bin", []byte("not audio"))
	var decodeErr *asset.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Expected DecodeError, got %v", err)
	}
	if s.Mixer().A().Asset().Source() != "tone.wav" {
		t.Error("Expected previous asset to stay loaded")
	}
	if s.GetLastError() == "" {
		t.Error("Expected last error to be recorded")
	}

	if _, err := s.LoadDeckBytes(ctx, deck.A, "tone.wav", toneWAV(t, 1)); err != nil {
		t.Fatal(err)
	}
	if s.GetLastError() != "" {
		t.Errorf("Expected last error cleared, got %q", s.GetLastError())
	}
}

func TestLoadDeck_FromFile(t *testing.T) {
	s, _, _ := newTestService(t)
	path := t.TempDir() + "/track.wav"
	if err := os.WriteFile(path, toneWAV(t, 1), 0644); err != nil {
		t.Fatal(err)
	}

	info, err := s.LoadDeck(context.Background(), deck.B, path)
	if err != nil {
		t.Fatalf("LoadDeck failed: %v", err)
	}
	if info.Source != path {
		t.Errorf("Expected source %s, got %s", path, info.Source)
	}
}

func TestUnknownDeck(t *testing.T) {
	s, _, _ := newTestService(t)

	if err := s.Play(deck.ID("c")); !errors.Is(err, ErrUnknownDeck) {
		t.Errorf("Expected ErrUnknownDeck, got %v", err)
	}
	if _, err := s.LoadDeckBytes(context.Background(), deck.ID("z"), "x", nil); !errors.Is(err, ErrUnknownDeck) {
		t.Errorf("Expected ErrUnknownDeck, got %v", err)
	}
}

func TestSyncAndReset(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	if s.SyncDecks() {
		t.Error("Expected sync to fail with empty decks")
	}

	s.LoadDeckBytes(ctx, deck.A, "a.wav", toneWAV(t, 1))
	s.LoadDeckBytes(ctx, deck.B, "b.wav", toneWAV(t, 1))
	if s.SyncDecks() {
		t.Error("Expected sync to fail while deck B is stopped")
	}
	s.Play(deck.B)
	if !s.SyncDecks() {
		t.Fatal("Expected sync to succeed")
	}
	if r := s.Mixer().B().Params().Rate; math.Abs(r-124.0/128.0) > 1e-9 {
		t.Errorf("Expected rate 124/128, got %f", r)
	}

	s.SetCrossfade(0.75)
	s.SetMasterGain(0.3)
	s.ResetMixer()
	l := s.Mixer().Levels()
	if l.Crossfade != 0 || l.Master != 0.8 {
		t.Errorf("Expected defaults after reset, got %+v", l)
	}
	if p := s.Mixer().B().Params(); p.Gain != 1 || p.LowDB != 0 {
		t.Errorf("Expected neutral chain after reset, got %+v", p)
	}
}

func TestRecordAndPublish(t *testing.T) {
	s, _, dir := newTestService(t)
	ctx := context.Background()

	if _, err := s.Publish(ctx, ""); !errors.Is(err, ErrNothingToPublish) {
		t.Errorf("Expected ErrNothingToPublish, got %v", err)
	}

	if err := s.StartRecording(); err != nil {
		t.Fatal(err)
	}
	var stateErr *audio.InvalidStateError
	if err := s.StartRecording(); !errors.As(err, &stateErr) {
		t.Errorf("Expected InvalidStateError on double start, got %v", err)
	}

	for i := 0; i < 10; i++ {
		s.Engine().Pump()
	}
	if st := s.Status(); st.Recorder.State != audio.StatusCapturing || st.Recorder.Session == nil {
		t.Errorf("Expected capturing status, got %+v", st.Recorder)
	}

	captured, err := s.StopRecording()
	if err != nil {
		t.Fatal(err)
	}
	if captured.Duration != 200*time.Millisecond {
		t.Errorf("Expected 200ms recording, got %v", captured.Duration)
	}
	if s.RecordedAsset() != captured {
		t.Error("Expected recording to be kept")
	}

	post, err := s.Publish(ctx, "")
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if post.BPM != 126 || post.Style != "DJ Mix" || post.Key != "Mixed" {
		t.Errorf("Unexpected post: %+v", post)
	}
	if _, err := os.Stat(post.AudioURL); err != nil {
		t.Errorf("Expected published file: %v", err)
	}
	if !strings.HasPrefix(post.AudioURL, dir) {
		t.Errorf("Expected file under %s, got %s", dir, post.AudioURL)
	}
	if s.RecordedAsset() != nil {
		t.Error("Expected recording cleared after publish")
	}
}

func TestPublishFailureKeepsRecording(t *testing.T) {
	s, _, _ := newTestService(t)
	s.publisher = publish.NewDirPublisher(t.TempDir(), "")

	s.StartRecording()
	s.Engine().Pump()
	if _, err := s.StopRecording(); err != nil {
		t.Fatal(err)
	}

	_, err := s.Publish(context.Background(), "late night")
	if !errors.Is(err, publish.ErrUnauthenticated) {
		t.Fatalf("Expected ErrUnauthenticated, got %v", err)
	}
	if s.RecordedAsset() == nil {
		t.Error("Expected recording kept after failed publish")
	}

	s.DiscardRecording()
	if s.RecordedAsset() != nil {
		t.Error("Expected recording discarded")
	}
}
