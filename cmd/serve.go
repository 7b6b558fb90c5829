package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/audiolibrelab/rmxr/internal/audio"
	"github.com/audiolibrelab/rmxr/internal/server"
	"github.com/audiolibrelab/rmxr/internal/service"
	"github.com/audiolibrelab/rmxr/internal/stream"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mixer with the HTTP control API",
	Long: `Start the mixing engine on the configured output backend and expose the
JSON control API. A browser can listen to the master bus through the WebRTC
monitor at /monitor/webrtc.

The server will display the local network URL for easy access from other devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Server.Port = port
		}
		applyBackendFlag(cmd)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newStudio(ctx)
		if err != nil {
			return err
		}

		monitor := stream.NewWebRTCHandler(svc.Broadcaster(), cfg.Audio.SampleRate)
		defer monitor.Close()
		if !monitor.Supported() {
			slog.Warn("WebRTC monitor disabled at this sample rate", "sample_rate", cfg.Audio.SampleRate)
		}

		srv := server.New(svc, monitor, cfg.Server.Host, cfg.Server.Port)
		output := audio.NewOutput(cfg, svc.Engine())

		slog.Info("rmxr starting", "backend", output.GetType(), "port", cfg.Server.Port, "config", cfgFile)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return output.Run(ctx)
		})
		g.Go(func() error {
			return srv.Start(ctx)
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the control server (overrides config)")
	addBackendFlag(serveCmd)
	addBackendFlag(consoleCmd)
}

func addBackendFlag(cmd *cobra.Command) {
	var names []string
	for _, b := range audio.GetAvailableBackends() {
		names = append(names, string(b))
	}
	cmd.Flags().String("backend", "", fmt.Sprintf("output backend: %s (overrides config)", strings.Join(names, ", ")))
}

func applyBackendFlag(cmd *cobra.Command) {
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Audio.Backend = backend
	}
}

// newStudio builds the studio from the loaded configuration and loads any
// configured deck sources.
func newStudio(ctx context.Context) (*service.StudioService, error) {
	svc, err := service.New(cfg, service.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to create studio: %w", err)
	}
	if err := svc.LoadConfiguredSources(ctx); err != nil {
		return nil, fmt.Errorf("failed to load configured sources: %w", err)
	}
	return svc, nil
}
