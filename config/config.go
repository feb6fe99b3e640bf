// Package config loads runner settings from YAML with environment
// overrides. Precedence: defaults, then file, then LOOM_* variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Chain backends.
const (
	ChainBackendFile  = "file"
	ChainBackendRedis = "redis"
)

// Config is the full runner configuration.
type Config struct {
	// Model is the default model seeded into runs that do not pick one.
	Model string `yaml:"model"`

	// Temperature is the default sampling temperature.
	Temperature float64 `yaml:"temperature"`

	// Autoruns budgets chained successor runs after the initial run.
	// Zero disables chaining.
	Autoruns int `yaml:"autoruns"`

	// Concurrency caps parallel iterations inside iterative subgraphs.
	// Zero means unbounded.
	Concurrency int `yaml:"concurrency"`

	// WorkflowDir is the directory of stored workflow definitions.
	WorkflowDir string `yaml:"workflow_dir"`

	// OutDir receives one JSON document per finished run.
	OutDir string `yaml:"out_dir"`

	// HistoryPath is the sqlite database of finished runs. Empty disables
	// run history.
	HistoryPath string `yaml:"history_path"`

	// Chain selects where pending chain handoffs live.
	Chain ChainConfig `yaml:"chain"`

	// Log is the zap level name.
	Log string `yaml:"log"`

	// Tracing turns on span export to stdout.
	Tracing bool `yaml:"tracing"`
}

// ChainConfig selects and parameterizes the chain handoff backend.
type ChainConfig struct {
	Backend string `yaml:"backend"`
	// Path is the handoff file for the file backend.
	Path string `yaml:"path"`
	// Addr is the redis address for the redis backend.
	Addr string `yaml:"addr"`
	// Password is the redis password, usually from LOOM_CHAIN_PASSWORD.
	Password string `yaml:"password"`
	// DB is the redis database number.
	DB int `yaml:"db"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:       "openai/gpt-4o-mini",
		Temperature: 0.7,
		Autoruns:    1,
		Concurrency: 4,
		WorkflowDir: "workflows",
		OutDir:      "out",
		HistoryPath: "loom.db",
		Chain: ChainConfig{
			Backend: ChainBackendFile,
			Path:    "chain.json",
			Addr:    "localhost:6379",
		},
		Log: "info",
	}
}

// Load reads the file over the defaults and applies environment
// overrides. A missing file is not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LOOM_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("LOOM_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Temperature = f
		}
	}
	if v := os.Getenv("LOOM_AUTORUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Autoruns = n
		}
	}
	if v := os.Getenv("LOOM_WORKFLOW_DIR"); v != "" {
		c.WorkflowDir = v
	}
	if v := os.Getenv("LOOM_OUT_DIR"); v != "" {
		c.OutDir = v
	}
	if v := os.Getenv("LOOM_CHAIN_BACKEND"); v != "" {
		c.Chain.Backend = v
	}
	if v := os.Getenv("LOOM_CHAIN_ADDR"); v != "" {
		c.Chain.Addr = v
	}
	if v := os.Getenv("LOOM_CHAIN_PASSWORD"); v != "" {
		c.Chain.Password = v
	}
	if v := os.Getenv("LOOM_LOG"); v != "" {
		c.Log = v
	}
}

// Validate rejects configurations the runner cannot start with.
func (c *Config) Validate() error {
	if c.Autoruns < 0 {
		return fmt.Errorf("config: autoruns cannot be negative, got %d", c.Autoruns)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("config: concurrency cannot be negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("config: temperature %v out of range [0, 2]", c.Temperature)
	}
	if c.WorkflowDir == "" {
		return fmt.Errorf("config: workflow_dir is required")
	}
	switch c.Chain.Backend {
	case ChainBackendFile:
		if c.Chain.Path == "" {
			return fmt.Errorf("config: chain.path is required for the file backend")
		}
	case ChainBackendRedis:
		if c.Chain.Addr == "" {
			return fmt.Errorf("config: chain.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown chain backend %q", c.Chain.Backend)
	}
	return nil
}
