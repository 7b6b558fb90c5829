package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/rmxr/internal/play"
	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [file-or-url]",
	Short: "Preview a track through deck A",
	Long: `Decode a track and play it through a deck with a neutral signal chain on
the configured output backend until it ends or Ctrl+C is pressed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err := play.New(cfg).Play(ctx, args[0])
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}
