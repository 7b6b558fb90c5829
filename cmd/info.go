package cmd

import (
	"fmt"

	"github.com/audiolibrelab/rmxr/internal/asset"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var infoCmd = &cobra.Command{
	Use:   "info [file-or-url]",
	Short: "Show duration, sample rate and channels of a track",
	Long:  `Decode a track the way a deck would and print its metadata. source_rate is the rate of the file itself; sample_rate is the engine rate it was converted to.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := asset.NewLoader(cfg.Audio.SampleRate).Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		info := a.Info()
		out, err := yaml.Marshal(info)
		if err != nil {
			return fmt.Errorf("error marshaling info: %w", err)
		}
		fmt.Print(string(out))
		fmt.Printf("duration: %s\n", a.Duration())
		return nil
	},
}
