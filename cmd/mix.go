package cmd

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/audiolibrelab/rmxr/internal/audio"
	"github.com/audiolibrelab/rmxr/internal/deck"
	"github.com/audiolibrelab/rmxr/internal/service"
	"github.com/spf13/cobra"
)

var mixCmd = &cobra.Command{
	Use:   "mix [track-a] [track-b]",
	Short: "Render a crossfade mix of two tracks offline",
	Long: `Load track A and track B, play both from the start and sweep the crossfader
from A to B while recording the master bus. Rendering runs on a simulated
clock, so it is as fast as the machine allows and independent of any audio
device.

The finished mix is published with the configured publisher, or written to
a file with -o.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		output, _ := cmd.Flags().GetString("output")
		caption, _ := cmd.Flags().GetString("caption")
		length, _ := cmd.Flags().GetDuration("duration")
		sync, _ := cmd.Flags().GetBool("sync")

		clock := deck.NewManualClock(time.Now())
		svc, err := service.New(cfg, service.Options{Clock: clock})
		if err != nil {
			return fmt.Errorf("failed to create studio: %w", err)
		}

		fmt.Printf("Mixing: %s -> %s\n", args[0], args[1])
		infoA, err := svc.LoadDeck(ctx, deck.A, args[0])
		if err != nil {
			return err
		}
		infoB, err := svc.LoadDeck(ctx, deck.B, args[1])
		if err != nil {
			return err
		}
		if length <= 0 {
			length = time.Duration(math.Max(infoA.Seconds, infoB.Seconds) * float64(time.Second))
		}

		captured, err := renderCrossfade(svc, length, sync)
		if err != nil {
			return fmt.Errorf("mixing failed: %w", err)
		}
		fmt.Printf("Rendered %s (%d bytes, %s)\n", captured.Duration, captured.Size(), captured.MIMEType)

		if output != "" {
			if err := os.WriteFile(output, captured.Data, 0644); err != nil {
				return fmt.Errorf("failed to write mix: %w", err)
			}
			fmt.Printf("Written: %s\n", output)
			return nil
		}

		post, err := svc.Publish(ctx, caption)
		if err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		fmt.Printf("Published: %s\n", post.AudioURL)
		return nil
	},
}

func init() {
	mixCmd.Flags().StringP("output", "o", "", "write the mix to this file instead of publishing")
	mixCmd.Flags().StringP("caption", "c", "", "caption for the published mix")
	mixCmd.Flags().DurationP("duration", "d", 0, "mix length (default: the longer track)")
	mixCmd.Flags().BoolP("sync", "s", false, "match deck B's tempo to deck A before mixing")
}

// renderCrossfade records length of master output while the crossfader
// moves linearly from deck A to deck B. With sync, deck B is tempo matched
// to deck A once both are playing.
func renderCrossfade(svc *service.StudioService, length time.Duration, sync bool) (*audio.CapturedAsset, error) {
	engine := svc.Engine()
	quanta := int(math.Ceil(float64(length) / float64(engine.QuantumDuration())))
	if quanta < 1 {
		quanta = 1
	}

	svc.SetCrossfade(0)
	if err := svc.StartRecording(); err != nil {
		return nil, err
	}
	svc.Play(deck.A)
	svc.Play(deck.B)
	if sync && !svc.SyncDecks() {
		svc.Stop(deck.A, true)
		svc.Stop(deck.B, true)
		svc.StopRecording()
		return nil, fmt.Errorf("failed to sync decks")
	}

	for i := 0; i < quanta; i++ {
		if quanta > 1 {
			svc.SetCrossfade(float64(i) / float64(quanta-1))
		}
		engine.Pump()
	}

	svc.Stop(deck.A, true)
	svc.Stop(deck.B, true)
	return svc.StopRecording()
}
