package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// DefinitionsConfig holds reusable deck chain presets
type DefinitionsConfig struct {
	Presets []PresetDefinition `mapstructure:"presets" yaml:"presets"`
}

// PresetDefinition is a named set of signal chain settings
type PresetDefinition struct {
	ID       string  `mapstructure:"id" yaml:"id"`
	LowDB    float64 `mapstructure:"low_db" yaml:"low_db"`
	MidDB    float64 `mapstructure:"mid_db" yaml:"mid_db"`
	HighDB   float64 `mapstructure:"high_db" yaml:"high_db"`
	CutoffHz float64 `mapstructure:"cutoff_hz" yaml:"cutoff_hz"`
	Gain     float64 `mapstructure:"gain" yaml:"gain"`
}

// DeckReference selects a preset for a deck inside a profile
type DeckReference struct {
	Ref    string   `mapstructure:"ref" yaml:"ref"`
	Gain   *float64 `mapstructure:"gain,omitempty" yaml:"gain,omitempty"`
	BPM    *float64 `mapstructure:"bpm,omitempty" yaml:"bpm,omitempty"`
	Source string   `mapstructure:"source" yaml:"source,omitempty"`
}

type GlobalsConfig struct {
	Publish GlobalPublishConfig `mapstructure:"publish" yaml:"publish"`
}

type GlobalPublishConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	User      string `mapstructure:"user" yaml:"user"`
}

type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals      *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Audio        *AudioConfig              `mapstructure:"audio,omitempty" yaml:"audio,omitempty"`
	Definitions  *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs      map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Audio    AudioConfig           `mapstructure:"audio" yaml:"audio"`
	Mixer    MixerConfig           `mapstructure:"mixer" yaml:"mixer"`
	Decks    map[string]DeckConfig `mapstructure:"decks" yaml:"decks"`
	Recorder RecorderConfig        `mapstructure:"recorder" yaml:"recorder"`
	Publish  PublishConfig         `mapstructure:"publish" yaml:"publish"`
	Server   ServerConfig          `mapstructure:"server" yaml:"server"`

	// Internal field to track inheritance information for config show
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type ConfigProfile struct {
	Audio    AudioConfig              `mapstructure:"audio" yaml:"audio"`
	Mixer    MixerConfig              `mapstructure:"mixer" yaml:"mixer"`
	Decks    map[string]DeckReference `mapstructure:"decks" yaml:"decks"`
	Recorder RecorderConfig           `mapstructure:"recorder" yaml:"recorder"`
	Publish  PublishConfig            `mapstructure:"publish" yaml:"publish"`
	Server   ServerConfig             `mapstructure:"server" yaml:"server"`
}

type InheritanceInfo struct {
	Audio struct {
		SampleRate string // "inherited" or "profile-specific"
		Backend    string
	}
	Mixer struct {
		MasterGain string
		Crossfade  string
	}
	Decks   map[string]string
	Publish struct {
		Backend   string
		Directory string
	}
}

type AudioConfig struct {
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	QuantumMS  int    `mapstructure:"quantum_ms" yaml:"quantum_ms"`
	BufferMS   int    `mapstructure:"buffer_ms" yaml:"buffer_ms"`
	Backend    string `mapstructure:"backend" yaml:"backend"` // "speaker", "headless", "auto"
}

type MixerConfig struct {
	MasterGain *float64 `mapstructure:"master_gain,omitempty" yaml:"master_gain,omitempty"`
	Crossfade  *float64 `mapstructure:"crossfade,omitempty" yaml:"crossfade,omitempty"`
}

// DeckConfig is the resolved startup state of one deck
type DeckConfig struct {
	Preset   string  `mapstructure:"preset" yaml:"preset,omitempty"`
	LowDB    float64 `mapstructure:"low_db" yaml:"low_db"`
	MidDB    float64 `mapstructure:"mid_db" yaml:"mid_db"`
	HighDB   float64 `mapstructure:"high_db" yaml:"high_db"`
	CutoffHz float64 `mapstructure:"cutoff_hz" yaml:"cutoff_hz,omitempty"` // 0 means fully open
	Gain     float64 `mapstructure:"gain" yaml:"gain"`
	BPM      float64 `mapstructure:"bpm" yaml:"bpm"`
	Source   string  `mapstructure:"source" yaml:"source,omitempty"`
}

type RecorderConfig struct {
	Format string `mapstructure:"format" yaml:"format"` // "wav", "pcm"
}

type PublishConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"` // "directory", "http"
	Directory string `mapstructure:"directory" yaml:"directory"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Token     string `mapstructure:"token" yaml:"-"`
	User      string `mapstructure:"user" yaml:"user,omitempty"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// Deck ids accepted in profiles
var deckIDs = []string{"a", "b"}

var defaultConfig = Config{
	Audio: AudioConfig{
		SampleRate: 48000,
		QuantumMS:  20,
		BufferMS:   100,
		Backend:    "auto",
	},
	Mixer: MixerConfig{
		MasterGain: floatPtr(0.8),
		Crossfade:  floatPtr(0),
	},
	Decks: map[string]DeckConfig{
		"a": {Gain: 1, BPM: 124},
		"b": {Gain: 1, BPM: 124},
	},
	Recorder: RecorderConfig{
		Format: "wav",
	},
	Publish: PublishConfig{
		Backend:   "directory",
		Directory: filepath.Join(os.Getenv("HOME"), "Audio", "rmxr"),
	},
	Server: ServerConfig{
		Port: "8080",
	},
}

func floatPtr(v float64) *float64 {
	return &v
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	c.Mixer = MixerConfig{
		MasterGain: floatPtr(*defaultConfig.Mixer.MasterGain),
		Crossfade:  floatPtr(*defaultConfig.Mixer.Crossfade),
	}
	c.Decks = make(map[string]DeckConfig, len(defaultConfig.Decks))
	for id, d := range defaultConfig.Decks {
		c.Decks[id] = d
	}
	return &c
}

// MasterGainOrDefault returns the configured master gain or the built-in default.
func (m MixerConfig) MasterGainOrDefault() float64 {
	if m.MasterGain == nil {
		return *defaultConfig.Mixer.MasterGain
	}
	return *m.MasterGain
}

func (m MixerConfig) CrossfadeOrDefault() float64 {
	if m.Crossfade == nil {
		return 0
	}
	return *m.Crossfade
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	selectedConfig, err := convertProfileToConfig(selectedProfile, rootConfig.Definitions)
	if err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
	}

	// Apply global audio settings as base if they exist
	if rootConfig.Audio != nil {
		if selectedConfig.Audio.Backend == "" {
			selectedConfig.Audio.Backend = rootConfig.Audio.Backend
		}
		if selectedConfig.Audio.SampleRate == 0 {
			selectedConfig.Audio.SampleRate = rootConfig.Audio.SampleRate
		}
		if selectedConfig.Audio.QuantumMS == 0 {
			selectedConfig.Audio.QuantumMS = rootConfig.Audio.QuantumMS
		}
		if selectedConfig.Audio.BufferMS == 0 {
			selectedConfig.Audio.BufferMS = rootConfig.Audio.BufferMS
		}
	}

	// Merge with default config if it exists and we're not already using default
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists {
			base, err := convertProfileToConfig(defaultProfile, rootConfig.Definitions)
			if err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
			selectedConfig = mergeConfigs(base, selectedConfig)
		}
	}

	// Built-in defaults fill whatever the file left empty
	applyDefaults(selectedConfig)

	// Global publish settings take priority over profiles
	if rootConfig.Globals != nil {
		if rootConfig.Globals.Publish.Directory != "" {
			selectedConfig.Publish.Directory = rootConfig.Globals.Publish.Directory
		}
		if rootConfig.Globals.Publish.User != "" {
			selectedConfig.Publish.User = rootConfig.Globals.Publish.User
		}
	}

	applyEnvOverrides(selectedConfig)

	selectedConfig.Publish.Directory = expandPath(selectedConfig.Publish.Directory)
	for id, d := range selectedConfig.Decks {
		if d.Source != "" {
			d.Source = expandPath(d.Source)
			selectedConfig.Decks[id] = d
		}
	}

	if err := Validate(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

func applyDefaults(c *Config) {
	def := Default()
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.QuantumMS == 0 {
		c.Audio.QuantumMS = def.Audio.QuantumMS
	}
	if c.Audio.BufferMS == 0 {
		c.Audio.BufferMS = def.Audio.BufferMS
	}
	if c.Audio.Backend == "" {
		c.Audio.Backend = def.Audio.Backend
	}
	if c.Mixer.MasterGain == nil {
		c.Mixer.MasterGain = def.Mixer.MasterGain
	}
	if c.Mixer.Crossfade == nil {
		c.Mixer.Crossfade = def.Mixer.Crossfade
	}
	if c.Decks == nil {
		c.Decks = make(map[string]DeckConfig)
	}
	for id, d := range def.Decks {
		cur, ok := c.Decks[id]
		if !ok {
			c.Decks[id] = d
			continue
		}
		if cur.Gain == 0 && cur.Preset == "" {
			cur.Gain = d.Gain
		}
		if cur.BPM == 0 {
			cur.BPM = d.BPM
		}
		c.Decks[id] = cur
	}
	if c.Recorder.Format == "" {
		c.Recorder.Format = def.Recorder.Format
	}
	if c.Publish.Backend == "" {
		c.Publish.Backend = def.Publish.Backend
	}
	if c.Publish.Directory == "" {
		c.Publish.Directory = def.Publish.Directory
	}
	if c.Server.Port == "" {
		c.Server.Port = def.Server.Port
	}
}

// applyEnvOverrides lets secrets and deployment details come from the
// environment (RMXR_PUBLISH_TOKEN, RMXR_PUBLISH_USER, RMXR_SERVER_PORT).
func applyEnvOverrides(c *Config) {
	v := viper.New()
	v.SetEnvPrefix("RMXR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if token := v.GetString("publish.token"); token != "" {
		c.Publish.Token = token
	}
	if user := v.GetString("publish.user"); user != "" {
		c.Publish.User = user
	}
	if port := v.GetString("server.port"); port != "" {
		c.Server.Port = port
	}
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Create a new viper instance to avoid interfering with the global one
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// convertProfileToConfig converts a ConfigProfile to Config by resolving preset references
func convertProfileToConfig(profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	config := &Config{
		Audio:    profile.Audio,
		Mixer:    profile.Mixer,
		Recorder: profile.Recorder,
		Publish:  profile.Publish,
		Server:   profile.Server,
		Decks:    make(map[string]DeckConfig),
	}

	for id, ref := range profile.Decks {
		deck := DeckConfig{Source: ref.Source}

		if ref.Ref != "" {
			definition := findPreset(definitions, ref.Ref)
			if definition == nil {
				return nil, fmt.Errorf("decks.%s: preset '%s' not found in definitions", id, ref.Ref)
			}
			deck.Preset = definition.ID
			deck.LowDB = definition.LowDB
			deck.MidDB = definition.MidDB
			deck.HighDB = definition.HighDB
			deck.CutoffHz = definition.CutoffHz
			deck.Gain = definition.Gain
		}

		// Apply overrides
		if ref.Gain != nil {
			deck.Gain = *ref.Gain
		}
		if ref.BPM != nil {
			deck.BPM = *ref.BPM
		}

		config.Decks[strings.ToLower(id)] = deck
	}

	return config, nil
}

func findPreset(definitions *DefinitionsConfig, id string) *PresetDefinition {
	if definitions == nil {
		return nil
	}
	for i := range definitions.Presets {
		if definitions.Presets[i].ID == id {
			return &definitions.Presets[i]
		}
	}
	return nil
}

// mergeConfigs implements the "Selection & Fallback" inheritance model:
// every profile value that is set wins, everything else falls back to base.
// Decks missing from the profile are inherited whole; listed decks inherit
// the fields they leave empty.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{
		Decks: make(map[string]DeckConfig),
		Inheritance: &InheritanceInfo{
			Decks: make(map[string]string),
		},
	}

	if base != nil {
		result.Audio = base.Audio
		result.Mixer = base.Mixer
		result.Recorder = base.Recorder
		result.Publish = base.Publish
		result.Server = base.Server
		for id, d := range base.Decks {
			result.Decks[id] = d
			result.Inheritance.Decks[id] = "inherited"
		}

		result.Inheritance.Audio.SampleRate = "inherited"
		result.Inheritance.Audio.Backend = "inherited"
		result.Inheritance.Mixer.MasterGain = "inherited"
		result.Inheritance.Mixer.Crossfade = "inherited"
		result.Inheritance.Publish.Backend = "inherited"
		result.Inheritance.Publish.Directory = "inherited"
	}

	if profile == nil {
		return result
	}

	if profile.Audio.SampleRate != 0 {
		result.Audio.SampleRate = profile.Audio.SampleRate
		result.Inheritance.Audio.SampleRate = "profile-specific"
	}
	if profile.Audio.Backend != "" {
		result.Audio.Backend = profile.Audio.Backend
		result.Inheritance.Audio.Backend = "profile-specific"
	}
	if profile.Audio.QuantumMS != 0 {
		result.Audio.QuantumMS = profile.Audio.QuantumMS
	}
	if profile.Audio.BufferMS != 0 {
		result.Audio.BufferMS = profile.Audio.BufferMS
	}

	if profile.Mixer.MasterGain != nil {
		result.Mixer.MasterGain = profile.Mixer.MasterGain
		result.Inheritance.Mixer.MasterGain = "profile-specific"
	}
	if profile.Mixer.Crossfade != nil {
		result.Mixer.Crossfade = profile.Mixer.Crossfade
		result.Inheritance.Mixer.Crossfade = "profile-specific"
	}

	if profile.Recorder.Format != "" {
		result.Recorder.Format = profile.Recorder.Format
	}

	if profile.Publish.Backend != "" {
		result.Publish.Backend = profile.Publish.Backend
		result.Inheritance.Publish.Backend = "profile-specific"
	}
	if profile.Publish.Directory != "" {
		result.Publish.Directory = profile.Publish.Directory
		result.Inheritance.Publish.Directory = "profile-specific"
	}
	if profile.Publish.Endpoint != "" {
		result.Publish.Endpoint = profile.Publish.Endpoint
	}
	if profile.Publish.Token != "" {
		result.Publish.Token = profile.Publish.Token
	}
	if profile.Publish.User != "" {
		result.Publish.User = profile.Publish.User
	}

	if profile.Server.Host != "" {
		result.Server.Host = profile.Server.Host
	}
	if profile.Server.Port != "" {
		result.Server.Port = profile.Server.Port
	}

	for id, d := range profile.Decks {
		resolved := d
		if baseDeck, ok := result.Decks[id]; ok {
			if resolved.Gain == 0 && resolved.Preset == "" {
				resolved.Gain = baseDeck.Gain
			}
			if resolved.BPM == 0 {
				resolved.BPM = baseDeck.BPM
			}
			if resolved.Source == "" {
				resolved.Source = baseDeck.Source
			}
		}
		result.Decks[id] = resolved
		result.Inheritance.Decks[id] = "profile-specific"
	}

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Validate checks a resolved configuration. Errors name the offending field.
func Validate(c *Config) error {
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sample_rate must be between 8000 and 192000, got: %d", c.Audio.SampleRate)
	}
	if c.Audio.QuantumMS < 1 || c.Audio.QuantumMS > 1000 {
		return fmt.Errorf("audio.quantum_ms must be between 1 and 1000, got: %d", c.Audio.QuantumMS)
	}
	if c.Audio.BufferMS < 0 {
		return fmt.Errorf("audio.buffer_ms must be >= 0, got: %d", c.Audio.BufferMS)
	}
	switch c.Audio.Backend {
	case "speaker", "headless", "auto":
	default:
		return fmt.Errorf("audio.backend must be 'speaker', 'headless' or 'auto', got: %s", c.Audio.Backend)
	}

	if g := c.Mixer.MasterGain; g != nil && (*g < 0 || *g > 1 || math.IsNaN(*g)) {
		return fmt.Errorf("mixer.master_gain must be within [0, 1], got: %.2f", *g)
	}
	if x := c.Mixer.Crossfade; x != nil && (*x < 0 || *x > 1 || math.IsNaN(*x)) {
		return fmt.Errorf("mixer.crossfade must be within [0, 1], got: %.2f", *x)
	}

	ids := make([]string, 0, len(c.Decks))
	for id := range c.Decks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if !isDeckID(id) {
			return fmt.Errorf("decks.%s: unknown deck, expected one of %s", id, strings.Join(deckIDs, ", "))
		}
		d := c.Decks[id]
		if d.Gain < 0 || d.Gain > 2 {
			return fmt.Errorf("decks.%s.gain must be within [0, 2], got: %.2f", id, d.Gain)
		}
		if d.BPM < 0 {
			return fmt.Errorf("decks.%s.bpm must be > 0, got: %.2f", id, d.BPM)
		}
		if d.CutoffHz < 0 {
			return fmt.Errorf("decks.%s.cutoff_hz must be >= 0, got: %.2f", id, d.CutoffHz)
		}
	}

	switch c.Recorder.Format {
	case "wav", "pcm":
	default:
		return fmt.Errorf("recorder.format must be 'wav' or 'pcm', got: %s", c.Recorder.Format)
	}

	switch c.Publish.Backend {
	case "directory":
		if c.Publish.Directory == "" {
			return fmt.Errorf("publish.directory is required for the directory backend")
		}
	case "http":
		if !strings.HasPrefix(c.Publish.Endpoint, "http://") && !strings.HasPrefix(c.Publish.Endpoint, "https://") {
			return fmt.Errorf("publish.endpoint must be an http(s) URL, got: %s", c.Publish.Endpoint)
		}
	default:
		return fmt.Errorf("publish.backend must be 'directory' or 'http', got: %s", c.Publish.Backend)
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	return nil
}

func isDeckID(id string) bool {
	for _, d := range deckIDs {
		if d == id {
			return true
		}
	}
	return false
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required")
	}

	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			continue
		}
		if err := validateDeckReferences(configProfile.Decks, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateDefinitions validates the optional definitions section
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return nil
	}

	seenIDs := make(map[string]bool)
	for i, def := range definitions.Presets {
		prefix := fmt.Sprintf("definitions.presets[%d]", i)
		if def.ID == "" {
			return fmt.Errorf("%s: 'id' is required", prefix)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("%s: duplicate ID '%s'", prefix, def.ID)
		}
		seenIDs[def.ID] = true

		if err := validatePresetDefinition(def, prefix); err != nil {
			return err
		}
	}

	return nil
}

// validatePresetDefinition validates a single preset. EQ values outside the
// chain bounds are rejected here even though the engine would clamp them.
func validatePresetDefinition(def PresetDefinition, prefix string) error {
	if math.Abs(def.LowDB) > 24 {
		return fmt.Errorf("%s: 'low_db' must be within ±24, got: %.2f", prefix, def.LowDB)
	}
	if math.Abs(def.MidDB) > 18 {
		return fmt.Errorf("%s: 'mid_db' must be within ±18, got: %.2f", prefix, def.MidDB)
	}
	if math.Abs(def.HighDB) > 24 {
		return fmt.Errorf("%s: 'high_db' must be within ±24, got: %.2f", prefix, def.HighDB)
	}
	if def.CutoffHz != 0 && def.CutoffHz < 20 {
		return fmt.Errorf("%s: 'cutoff_hz' must be >= 20 (or 0 for open), got: %.2f", prefix, def.CutoffHz)
	}
	if def.Gain <= 0 || def.Gain > 2 {
		return fmt.Errorf("%s: 'gain' must be within (0, 2], got: %.2f", prefix, def.Gain)
	}
	return nil
}

// validateDeckReferences validates deck references in a config profile
func validateDeckReferences(decks map[string]DeckReference, definitions *DefinitionsConfig) error {
	ids := make([]string, 0, len(decks))
	for id := range decks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ref := decks[id]
		prefix := fmt.Sprintf("decks.%s", id)

		if !isDeckID(strings.ToLower(id)) {
			return fmt.Errorf("%s: unknown deck, expected one of %s", prefix, strings.Join(deckIDs, ", "))
		}

		if ref.Ref != "" && findPreset(definitions, ref.Ref) == nil {
			return fmt.Errorf("%s: references undefined preset '%s'", prefix, ref.Ref)
		}

		if ref.Gain != nil && (*ref.Gain < 0 || *ref.Gain > 2) {
			return fmt.Errorf("%s: gain override must be within [0, 2], got %.2f", prefix, *ref.Gain)
		}

		if ref.BPM != nil && *ref.BPM <= 0 {
			return fmt.Errorf("%s: bpm override must be > 0, got %.2f", prefix, *ref.BPM)
		}
	}

	return nil
}
