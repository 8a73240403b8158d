// Package config provides configuration loading for neurofault.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"neurofault/internal/fault"
)

// Config contains all neurofault settings.
type Config struct {
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Campaign   CampaignConfig   `json:"campaign" yaml:"campaign"`
}

type LoggingConfig struct {
	// Level sets the log verbosity: "warn", "info" (default), "debug" or "trace".
	Level string `json:"level" yaml:"level"`
}

type StoreConfig struct {
	// Kind selects the result backend: "memory" or "sqlite".
	Kind string `json:"kind" yaml:"kind"`
	// Path is the sqlite database file.
	Path string `json:"path" yaml:"path"`
}

// SimulationConfig describes the network under test and where its
// parameters live. Relative paths are resolved against Dir.
type SimulationConfig struct {
	Dir         string `json:"dir" yaml:"dir"`
	InputSpikes string `json:"input_spikes" yaml:"input_spikes"`
	InputZip    string `json:"input_zip,omitempty" yaml:"input_zip,omitempty"`
	Weights     string `json:"weights" yaml:"weights"`
	Thresholds  string `json:"thresholds" yaml:"thresholds"`

	Inputs   int `json:"inputs" yaml:"inputs"`
	Neurons  int `json:"neurons" yaml:"neurons"`
	Instants int `json:"instants" yaml:"instants"`

	VRest       float64 `json:"v_rest" yaml:"v_rest"`
	VReset      float64 `json:"v_reset" yaml:"v_reset"`
	Tau         float64 `json:"tau" yaml:"tau"`
	Dt          float64 `json:"dt" yaml:"dt"`
	IntraWeight float64 `json:"intra_weight" yaml:"intra_weight"`
}

type CampaignConfig struct {
	// Components lists the fault targets; empty means every component.
	Components []string `json:"components" yaml:"components"`
	// Failures lists the failure kinds tried on each component.
	Failures []string `json:"failures" yaml:"failures"`
	// BitRange bounds the random bit position to [0, BitRange).
	BitRange int `json:"bit_range" yaml:"bit_range"`
	// Cycles is the number of input matrices run per fault.
	Cycles int `json:"cycles" yaml:"cycles"`
	Seed   int64 `json:"seed" yaml:"seed"`
	// Workers bounds the number of fault runs simulated in parallel.
	Workers int `json:"workers" yaml:"workers"`
	// TransientMode is "once_per_run" (default) or "every_instant".
	TransientMode string `json:"transient_mode" yaml:"transient_mode"`
	// Baseline adds a fault-free reference run.
	Baseline bool `json:"baseline" yaml:"baseline"`
	// OutputDir receives one counter file per run when set.
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
}

// Default returns a Config describing the 784x400 MNIST network the
// simulator was built around.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Store:   StoreConfig{Kind: "memory", Path: "neurofault.db"},
		Simulation: SimulationConfig{
			Dir:         "simulation",
			InputSpikes: "inputSpikes.txt",
			InputZip:    "inputSpikes.zip",
			Weights:     filepath.Join("networkParameters", "weightsOut.txt"),
			Thresholds:  filepath.Join("networkParameters", "thresholdsOut.txt"),
			Inputs:      784,
			Neurons:     400,
			Instants:    3500,
			VRest:       -65.0,
			VReset:      -60.0,
			Tau:         100.0,
			Dt:          0.1,
			IntraWeight: -15.0,
		},
		Campaign: CampaignConfig{
			Failures:      []string{"StuckAt1", "StuckAt0", "TransientBitFlip"},
			BitRange:      12,
			Cycles:        51,
			Workers:       3,
			TransientMode: fault.TransientOncePerRun.String(),
			Baseline:      true,
		},
	}
}

// Load returns the defaults overlaid with path (when non-empty) and the
// environment. Order: defaults -> file -> environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("invalid store kind: %s (valid: memory, sqlite)", c.Store.Kind)
	}
	if c.Store.Kind == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store.path is required for sqlite")
	}

	s := c.Simulation
	if s.Inputs <= 0 || s.Neurons <= 0 || s.Instants <= 0 {
		return fmt.Errorf("simulation dimensions must be > 0: inputs=%d neurons=%d instants=%d", s.Inputs, s.Neurons, s.Instants)
	}
	if s.IntraWeight > 0 {
		return fmt.Errorf("intra_weight must be <= 0, got %g", s.IntraWeight)
	}

	cp := c.Campaign
	if cp.BitRange <= 0 || cp.BitRange > 64 {
		return fmt.Errorf("bit_range must be in (0, 64], got %d", cp.BitRange)
	}
	if cp.Cycles <= 0 {
		return fmt.Errorf("cycles must be > 0, got %d", cp.Cycles)
	}
	if cp.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", cp.Workers)
	}
	if _, err := c.Components(); err != nil {
		return err
	}
	if _, err := c.FailureKinds(); err != nil {
		return err
	}
	if _, err := fault.ParseTransientMode(cp.TransientMode); err != nil {
		return err
	}
	return nil
}

// Components parses the configured campaign components.
func (c *Config) Components() ([]fault.Component, error) {
	if len(c.Campaign.Components) == 0 {
		return fault.AllComponents(), nil
	}
	out := make([]fault.Component, 0, len(c.Campaign.Components))
	for _, name := range c.Campaign.Components {
		comp, err := fault.ParseComponent(name)
		if err != nil {
			return nil, err
		}
		out = append(out, comp)
	}
	return out, nil
}

// FailureKinds parses the configured campaign failure kinds.
func (c *Config) FailureKinds() ([]fault.Kind, error) {
	out := make([]fault.Kind, 0, len(c.Campaign.Failures))
	for _, name := range c.Campaign.Failures {
		kind, err := fault.ParseKind(name)
		if err != nil {
			return nil, err
		}
		out = append(out, kind)
	}
	return out, nil
}

// Resolve joins a simulation-relative path with Simulation.Dir.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.Simulation.Dir == "" {
		return path
	}
	return filepath.Join(c.Simulation.Dir, path)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEUROFAULT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NEUROFAULT_STORE"); v != "" {
		cfg.Store.Kind = v
	}
	if v := os.Getenv("NEUROFAULT_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("NEUROFAULT_SIMULATION_DIR"); v != "" {
		cfg.Simulation.Dir = v
	}
	if v := os.Getenv("NEUROFAULT_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Campaign.Seed = n
		}
	}
	if v := os.Getenv("NEUROFAULT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Campaign.Workers = n
		}
	}
	if v := os.Getenv("NEUROFAULT_CYCLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Campaign.Cycles = n
		}
	}
}
