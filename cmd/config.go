package cmd

import (
	"fmt"
	"sort"

	"github.com/audiolibrelab/rmxr/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage rmxr configuration profiles.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(out))

		if inherit, _ := cmd.Flags().GetBool("inheritance"); inherit {
			printInheritance(cfg)
		}
		return nil
	},
}

var configProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the profiles in the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			return fmt.Errorf("no config file in use, pass --config")
		}
		root, err := config.ValidateConfigurationFormat(cfgFile)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(root.Configs))
		for name := range root.Configs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			marker := " "
			if name == root.ActiveConfig {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use [profile]",
	Short: "Set the active profile in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			return fmt.Errorf("no config file in use, pass --config")
		}
		root, err := config.ValidateConfigurationFormat(cfgFile)
		if err != nil {
			return err
		}
		if _, ok := root.Configs[args[0]]; !ok {
			return fmt.Errorf("profile '%s' not found in %s", args[0], cfgFile)
		}
		if err := config.UpdateActiveConfig(cfgFile, args[0]); err != nil {
			return err
		}
		fmt.Printf("Active profile: %s\n", args[0])
		return nil
	},
}

func init() {
	configShowCmd.Flags().BoolP("inheritance", "i", false, "show which values come from the selected profile")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configProfilesCmd)
	configCmd.AddCommand(configUseCmd)
}

func printInheritance(c *config.Config) {
	if c.Inheritance == nil {
		fmt.Println("\n# built-in defaults, no profile loaded")
		return
	}
	in := c.Inheritance

	fmt.Printf("\n=== INHERITANCE ===\n")
	fmt.Printf("audio.sample_rate: %s\n", getInheritanceIndicator(in.Audio.SampleRate))
	fmt.Printf("audio.backend: %s\n", getInheritanceIndicator(in.Audio.Backend))
	fmt.Printf("mixer.master_gain: %s\n", getInheritanceIndicator(in.Mixer.MasterGain))
	fmt.Printf("mixer.crossfade: %s\n", getInheritanceIndicator(in.Mixer.Crossfade))

	ids := make([]string, 0, len(in.Decks))
	for id := range in.Decks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("decks.%s: %s\n", id, getInheritanceIndicator(in.Decks[id]))
	}

	fmt.Printf("publish.backend: %s\n", getInheritanceIndicator(in.Publish.Backend))
	fmt.Printf("publish.directory: %s\n", getInheritanceIndicator(in.Publish.Directory))
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}
