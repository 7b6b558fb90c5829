package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/rmxr/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "rmxr",
	Short: "Dual-deck mixing engine with recording and publishing",
	Long: `rmxr is a two-deck audio mixer. Each deck plays a track through its own
signal chain (3-band EQ, low-pass filter, pitch fader, gain), an equal-power
crossfader blends both decks into the master bus, and the master bus can be
recorded and published as a mix.

Control it over HTTP ('rmxr serve'), interactively ('rmxr console') or render
a mix offline ('rmxr mix').`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		if cfgFile == "" {
			defaultPath := os.ExpandEnv("$HOME/.config/rmxr.yaml")
			if _, err := os.Stat(defaultPath); err != nil {
				slog.Debug("No config file, using built-in defaults", "path", defaultPath)
				cfg = config.Default()
				return nil
			}
			cfgFile = defaultPath
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/rmxr.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(mixCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(configCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))
}
