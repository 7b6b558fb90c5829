package play

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/audiolibrelab/rmxr/internal/asset"
	"github.com/audiolibrelab/rmxr/internal/audio"
	"github.com/audiolibrelab/rmxr/internal/config"
	"github.com/audiolibrelab/rmxr/internal/deck"
	"github.com/audiolibrelab/rmxr/internal/mix"
	"github.com/audiolibrelab/rmxr/internal/render"
)

// Player previews a single file through one deck of a private mixer, so
// the preview sounds exactly like the deck would in a set.
type Player struct {
	cfg   *config.Config
	clock deck.Clock
	out   io.Writer
}

func New(cfg *config.Config) *Player {
	return &Player{cfg: cfg, out: os.Stdout}
}

// WithClock swaps the playback clock, e.g. for a manual clock in tests.
func (p *Player) WithClock(c deck.Clock) *Player {
	p.clock = c
	return p
}

func (p *Player) WithOutput(w io.Writer) *Player {
	p.out = w
	return p
}

// Play decodes src and plays it from the start until it ends or ctx is done.
func (p *Player) Play(ctx context.Context, src string) error {
	rate := p.cfg.Audio.SampleRate

	a, err := asset.NewLoader(rate).Load(ctx, src)
	if err != nil {
		return err
	}

	opts := mix.DefaultOptions(rate)
	opts.Clock = p.clock
	opts.MasterGain = 1
	m := mix.New(opts)
	m.A().Load(a)

	engine := render.New(m, render.Options{
		SampleRate: rate,
		Quantum:    time.Duration(p.cfg.Audio.QuantumMS) * time.Millisecond,
	})
	output := audio.NewOutput(p.cfg, engine)

	fmt.Fprintf(p.out, "Playing: %s (%s)\n", src, a.Duration().Round(time.Millisecond))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.A().Play()
	go func() {
		ticker := time.NewTicker(engine.QuantumDuration())
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if m.A().Tick() == deck.StateStopped {
					cancel()
					return
				}
			}
		}
	}()

	if err := output.Run(runCtx); err != nil {
		return fmt.Errorf("playback failed with %s: %w", output.GetType(), err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	fmt.Fprintln(p.out, "Playback completed")
	return nil
}
