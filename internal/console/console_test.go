package console

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/rmxr/internal/asset"
	"github.com/audiolibrelab/rmxr/internal/config"
	"github.com/audiolibrelab/rmxr/internal/deck"
	"github.com/audiolibrelab/rmxr/internal/publish"
	"github.com/audiolibrelab/rmxr/internal/service"
)

func newTestConsole(t *testing.T) (*Console, *service.StudioService, *deck.ManualClock, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.SampleRate = 8000

	clock := deck.NewManualClock(time.Unix(0, 0))
	svc, err := service.New(cfg, service.Options{
		Clock:     clock,
		Publisher: publish.NewDirPublisher(t.TempDir(), "tester"),
	})
	if err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	return New(svc, out), svc, clock, out
}

func writeTrack(t *testing.T, seconds float64) string {
	t.Helper()
	pcm := make([]int16, int(seconds*8000)*2)
	for i := range pcm {
		pcm[i] = int16(3000 * math.Sin(float64(i)/7))
	}
	data, err := asset.EncodeWAV(pcm, 8000, 2)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "track.wav")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, c *Console, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if _, err := c.Execute(context.Background(), line); err != nil {
			t.Fatalf("%q failed: %v", line, err)
		}
	}
}

func TestExecute_DeckCommands(t *testing.T) {
	c, svc, clock, out := newTestConsole(t)
	path := writeTrack(t, 3)

	run(t, c, "load a "+path, "play a")
	if !strings.Contains(out.String(), "deck A: "+path) {
		t.Errorf("Expected load confirmation, got %q", out.String())
	}

	clock.Advance(time.Second)
	run(t, c, "rate a +4%", "pause A")

	a := svc.Mixer().A()
	if a.State() != deck.StatePaused || math.Abs(a.Position()-1) > 1e-9 {
		t.Errorf("Expected paused at 1s, got %s at %f", a.State(), a.Position())
	}
	if math.Abs(a.Params().Rate-1.04) > 1e-9 {
		t.Errorf("Expected rate 1.04, got %f", a.Params().Rate)
	}

	run(t, c, "seek a 2.5", "eq a -6 0 3", "filter a 900", "gain a 1.2", "bpm a 126")
	p := a.Params()
	if p.LowDB != -6 || p.HighDB != 3 || p.CutoffHz != 900 || p.Gain != 1.2 || a.BPM() != 126 {
		t.Errorf("Unexpected params: %+v bpm %f", p, a.BPM())
	}
	if math.Abs(a.Position()-2.5) > 1e-9 {
		t.Errorf("Expected position 2.5, got %f", a.Position())
	}

	run(t, c, "stop a")
	if a.Params().Gain != 1.2 {
		t.Error("Expected plain stop to keep chain settings")
	}
	run(t, c, "stop a reset")
	if a.Params().Gain != 1 || a.Params().LowDB != 0 {
		t.Errorf("Expected neutral chain after stop reset, got %+v", a.Params())
	}
}

func TestExecute_MixerCommands(t *testing.T) {
	c, svc, _, _ := newTestConsole(t)

	if _, err := c.Execute(context.Background(), "sync"); err == nil {
		t.Error("Expected sync to fail with empty decks")
	}

	path := writeTrack(t, 1)
	run(t, c, "load a "+path, "load b "+path, "bpm b 128")
	if _, err := c.Execute(context.Background(), "sync"); err == nil {
		t.Error("Expected sync to fail while deck B is stopped")
	}
	run(t, c, "play b", "sync", "xfade 1", "master 0.5")

	if r := svc.Mixer().B().Params().Rate; math.Abs(r-124.0/128.0) > 1e-9 {
		t.Errorf("Expected synced rate, got %f", r)
	}
	l := svc.Mixer().Levels()
	if l.Crossfade != 1 || l.Master != 0.5 || l.A > 1e-12 || math.Abs(l.B-1) > 1e-12 {
		t.Errorf("Unexpected levels: %+v", l)
	}

	run(t, c, "reset")
	if l := svc.Mixer().Levels(); l.Crossfade != 0 || l.Master != 0.8 {
		t.Errorf("Expected default levels, got %+v", l)
	}
}

func TestExecute_RecordAndPublish(t *testing.T) {
	c, svc, _, out := newTestConsole(t)

	run(t, c, "rec start")
	for i := 0; i < 3; i++ {
		svc.Engine().Pump()
	}
	run(t, c, "rec stop")
	if !strings.Contains(out.String(), "recorded 60ms") {
		t.Errorf("Expected recording summary, got %q", out.String())
	}

	run(t, c, "status")
	if !strings.Contains(out.String(), "kept 60ms") {
		t.Errorf("Expected kept recording in status, got %q", out.String())
	}

	run(t, c, "publish Late night warmup")
	if !strings.Contains(out.String(), "published ") {
		t.Errorf("Expected publish confirmation, got %q", out.String())
	}
	if svc.RecordedAsset() != nil {
		t.Error("Expected recording cleared after publish")
	}

	if _, err := c.Execute(context.Background(), "publish"); !errors.Is(err, service.ErrNothingToPublish) {
		t.Errorf("Expected ErrNothingToPublish, got %v", err)
	}
}

func TestExecute_Errors(t *testing.T) {
	c, _, _, _ := newTestConsole(t)
	ctx := context.Background()

	if _, err := c.Execute(ctx, "scratch a"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
	if _, err := c.Execute(ctx, "play c"); !errors.Is(err, service.ErrUnknownDeck) {
		t.Errorf("Expected ErrUnknownDeck, got %v", err)
	}

	bad := []string{"seek a", "eq a 1 2", "gain a loud", "xfade", "rec", "rec pause", "stop a now", "load a"}
	for _, line := range bad {
		if _, err := c.Execute(ctx, line); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}

	if quit, err := c.Execute(ctx, "   "); quit || err != nil {
		t.Errorf("Expected blank line to be a no-op, got quit=%v err=%v", quit, err)
	}
}

func TestExecute_HelpAndQuit(t *testing.T) {
	c, _, _, out := newTestConsole(t)

	run(t, c, "help")
	for _, name := range order {
		if !strings.Contains(out.String(), commands[name].usage) {
			t.Errorf("Expected help to list %s", name)
		}
	}

	for _, line := range []string{"quit", "EXIT"} {
		quit, err := c.Execute(context.Background(), line)
		if err != nil || !quit {
			t.Errorf("%q: expected quit, got quit=%v err=%v", line, quit, err)
		}
	}
}
