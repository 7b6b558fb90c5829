package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/rmxr/internal/audio"
	"github.com/audiolibrelab/rmxr/internal/console"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Mix interactively from the terminal",
	Long: `Start the mixing engine on the configured output backend and read commands
from an interactive prompt. Type 'help' at the prompt for the command list.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		applyBackendFlag(cmd)

		svc, err := newStudio(ctx)
		if err != nil {
			return err
		}
		output := audio.NewOutput(cfg, svc.Engine())

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return output.Run(gctx)
		})
		g.Go(func() error {
			defer stop()
			return console.New(svc, os.Stdout).Run(gctx)
		})
		return g.Wait()
	},
}
