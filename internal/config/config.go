// Package config holds the planner configuration. Values come from viper,
// so they can be set in a config file, through environment variables, or
// by command-line flags bound by the CLI layer.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/maplan-dev/maplan/internal/heuristic"
	"github.com/maplan-dev/maplan/internal/search"
)

// Config represents the complete maplan configuration
type Config struct {
	Search    SearchConfig    `mapstructure:"search"`
	Heuristic HeuristicConfig `mapstructure:"heuristic"`
	Comms     CommsConfig     `mapstructure:"comms"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SearchConfig controls the plan-search driver
type SearchConfig struct {
	// Workers is the evaluation pool size. Multi-agent runs force a single
	// worker because the ring protocol is single-threaded per agent.
	Workers int `mapstructure:"workers"`

	// MaxPlans bounds the number of plans kept in the arena; zero means
	// unbounded.
	MaxPlans int `mapstructure:"max_plans"`
}

// HeuristicConfig selects and tunes the plan evaluator
type HeuristicConfig struct {
	// Name selects the evaluator: "dtg", "landmarks", or
	// "incremental_dtg".
	Name string `mapstructure:"name"`

	// Penalty is the cost charged for unreachable transitions.
	Penalty float64 `mapstructure:"penalty"`
}

// CommsConfig selects the inter-agent transport
type CommsConfig struct {
	// Transport is "channel" for in-process agents or "file" for mailbox
	// directories shared between processes.
	Transport string `mapstructure:"transport"`

	// Dir is the mailbox directory root; required by the file transport.
	Dir string `mapstructure:"dir"`
}

// LoggingConfig controls the run log
type LoggingConfig struct {
	// Level is the minimum level written to the log: debug, info, warn,
	// or error.
	Level string `mapstructure:"level"`

	// RunDir is where debug.log is written; empty logs to stderr.
	RunDir string `mapstructure:"run_dir"`
}

// Evaluator names accepted by heuristic.name.
const (
	HeuristicDTG            = "dtg"
	HeuristicLandmarks      = "landmarks"
	HeuristicIncrementalDTG = "incremental_dtg"
)

// Transport names accepted by comms.transport.
const (
	TransportChannel = "channel"
	TransportFile    = "file"
)

// Default returns a Config populated with the default values
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			Workers:  search.DefaultWorkers,
			MaxPlans: 0,
		},
		Heuristic: HeuristicConfig{
			Name:    HeuristicDTG,
			Penalty: heuristic.DefaultPenalty,
		},
		Comms: CommsConfig{
			Transport: TransportChannel,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers every default value with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("search.workers", defaults.Search.Workers)
	viper.SetDefault("search.max_plans", defaults.Search.MaxPlans)

	viper.SetDefault("heuristic.name", defaults.Heuristic.Name)
	viper.SetDefault("heuristic.penalty", defaults.Heuristic.Penalty)

	viper.SetDefault("comms.transport", defaults.Comms.Transport)
	viper.SetDefault("comms.dir", defaults.Comms.Dir)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.run_dir", defaults.Logging.RunDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "maplan")
	}
	// Fall back to ~/.config/maplan
	home, err := os.UserHomeDir()
	if err != nil {
		return ".maplan"
	}
	return filepath.Join(home, ".config", "maplan")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
