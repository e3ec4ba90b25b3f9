package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Search.Workers < 1 {
		t.Errorf("Search.Workers = %d, want at least 1", cfg.Search.Workers)
	}
	if cfg.Heuristic.Name != HeuristicDTG {
		t.Errorf("Heuristic.Name = %q, want %q", cfg.Heuristic.Name, HeuristicDTG)
	}
	if cfg.Heuristic.Penalty <= 0 {
		t.Errorf("Heuristic.Penalty = %v, want positive", cfg.Heuristic.Penalty)
	}
	if cfg.Comms.Transport != TransportChannel {
		t.Errorf("Comms.Transport = %q, want %q", cfg.Comms.Transport, TransportChannel)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default().Validate() = %v, want no errors", errs)
	}
}

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoad_Overrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("search.workers", 8)
	viper.Set("heuristic.name", HeuristicLandmarks)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.Workers != 8 {
		t.Errorf("Search.Workers = %d, want 8", cfg.Search.Workers)
	}
	if cfg.Heuristic.Name != HeuristicLandmarks {
		t.Errorf("Heuristic.Name = %q, want %q", cfg.Heuristic.Name, HeuristicLandmarks)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("heuristic.name", "astar")

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want validation failure")
	}
}
