package mix

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/rmxr/internal/asset"
	"github.com/audiolibrelab/rmxr/internal/deck"
)

const eps = 1e-9

func newTestMixer() *Mixer {
	opts := DefaultOptions(1000)
	opts.Clock = deck.NewManualClock(time.Unix(0, 0))
	return New(opts)
}

func TestEqualPower_Endpoints(t *testing.T) {
	tests := []struct {
		x, wantA, wantB float64
	}{
		{0, 1, 0},
		{1, 0, 1},
		{0.5, 0.5, 0.5},
	}
	for _, tt := range tests {
		a, b := EqualPower(tt.x), EqualPower(1-tt.x)
		if math.Abs(a-tt.wantA) > eps || math.Abs(b-tt.wantB) > eps {
			t.Errorf("x=%v: gains (%v, %v), want (%v, %v)", tt.x, a, b, tt.wantA, tt.wantB)
		}
	}
}

func TestEqualPower_SumAcrossSweep(t *testing.T) {
	// cos² law: the two gains are complementary at every position
	for i := 0; i <= 100; i++ {
		x := float64(i) / 100
		if sum := EqualPower(x) + EqualPower(1-x); math.Abs(sum-1) > eps {
			t.Errorf("x=%v: gainA+gainB = %v", x, sum)
		}
	}
}

func TestSetCrossfade_Clamps(t *testing.T) {
	m := newTestMixer()

	m.SetCrossfade(-1)
	if l := m.Levels(); l.Crossfade != 0 || l.A != 1 || math.Abs(l.B) > eps {
		t.Errorf("Expected A only at -1, got %+v", l)
	}
	m.SetCrossfade(2)
	if l := m.Levels(); l.Crossfade != 1 || math.Abs(l.A) > eps || l.B != 1 {
		t.Errorf("Expected B only at 2, got %+v", l)
	}
}

func TestSetCrossfade_LastWriteOnly(t *testing.T) {
	m := newTestMixer()
	m.SetCrossfade(0.25)
	m.SetCrossfade(0.75)

	l := m.Levels()
	if l.Crossfade != 0.75 {
		t.Errorf("Expected crossfade 0.75, got %v", l.Crossfade)
	}
	if math.Abs(l.A-EqualPower(0.75)) > eps || math.Abs(l.B-EqualPower(0.25)) > eps {
		t.Errorf("Expected gains for 0.75, got %+v", l)
	}
}

func TestSetCrossfade_ConcurrentReadersSeeConsistentPairs(t *testing.T) {
	m := newTestMixer()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			m.SetCrossfade(float64(i%100) / 100)
		}
	}()

	for i := 0; i < 10000; i++ {
		l := m.Levels()
		if math.Abs(l.A-EqualPower(l.Crossfade)) > eps || math.Abs(l.B-EqualPower(1-l.Crossfade)) > eps {
			t.Fatalf("Observed torn levels: %+v", l)
		}
	}
	close(stop)
	wg.Wait()
}

func TestSetMasterGain(t *testing.T) {
	m := newTestMixer()
	if m.Levels().Master != DefaultMasterGain {
		t.Errorf("Expected default master %v, got %v", DefaultMasterGain, m.Levels().Master)
	}
	m.SetCrossfade(0.3)
	m.SetMasterGain(1.5)
	l := m.Levels()
	if l.Master != 1 {
		t.Errorf("Expected master clamped to 1, got %v", l.Master)
	}
	if l.Crossfade != 0.3 {
		t.Errorf("Expected master change to keep crossfade, got %v", l.Crossfade)
	}
}

func TestDeckAccess(t *testing.T) {
	m := newTestMixer()
	if m.Deck(deck.A) != m.A() || m.Deck(deck.B) != m.B() {
		t.Error("Deck lookup does not match accessors")
	}
	if m.Deck("c") != nil {
		t.Error("Expected nil for unknown deck")
	}
	if m.A() == m.B() {
		t.Error("Expected two distinct decks")
	}
}

func TestSyncBToA(t *testing.T) {
	m := newTestMixer()
	m.A().SetBPM(128)
	m.B().SetBPM(124)

	if m.SyncBToA() {
		t.Error("Expected sync to fail with empty decks")
	}

	m.A().Load(asset.New("a", make([][2]float64, 1000), 1000, 2))
	m.B().Load(asset.New("b", make([][2]float64, 1000), 1000, 2))
	if m.SyncBToA() {
		t.Error("Expected sync to fail while deck B is stopped")
	}
	if m.B().Params().Rate != 1 {
		t.Errorf("Expected stopped deck B at unity rate, got %v", m.B().Params().Rate)
	}

	m.B().Play()
	if !m.SyncBToA() {
		t.Fatal("Expected sync to succeed")
	}
	if got, want := m.B().Params().Rate, 128.0/124.0; math.Abs(got-want) > eps {
		t.Errorf("Expected rate %v, got %v", want, got)
	}
	if m.A().Params().Rate != 1 {
		t.Errorf("Expected deck A untouched, got %v", m.A().Params().Rate)
	}

	m.A().SetBPM(170)
	m.SyncBToA()
	if m.B().Params().Rate != 1.08 {
		t.Errorf("Expected clamped rate 1.08, got %v", m.B().Params().Rate)
	}
}

func TestAverageBPM(t *testing.T) {
	m := newTestMixer()
	m.A().SetBPM(125)
	m.B().SetBPM(128)
	if got := m.AverageBPM(); got != 127 {
		t.Errorf("Expected 127, got %d", got)
	}
}

func TestReset(t *testing.T) {
	m := newTestMixer()
	m.A().SetEQ(5, 5, 5)
	m.B().SetGain(0.2)
	m.SetCrossfade(0.9)
	m.SetMasterGain(0.1)

	m.Reset()

	if l := m.Levels(); l.Crossfade != 0 || l.Master != DefaultMasterGain {
		t.Errorf("Expected default levels, got %+v", l)
	}
	if m.A().Params().LowDB != 0 || m.B().Params().Gain != 1 {
		t.Errorf("Expected neutral chains, got A=%+v B=%+v", m.A().Params(), m.B().Params())
	}
}
