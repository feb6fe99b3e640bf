package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model: acme/large
autoruns: 3
chain:
  backend: redis
  addr: redis:6379
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "acme/large", cfg.Model)
	assert.Equal(t, 3, cfg.Autoruns)
	assert.Equal(t, ChainBackendRedis, cfg.Chain.Backend)
	assert.Equal(t, "redis:6379", cfg.Chain.Addr)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, "workflows", cfg.WorkflowDir)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: from-file\n"), 0o644))

	t.Setenv("LOOM_MODEL", "from-env")
	t.Setenv("LOOM_AUTORUNS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Model)
	assert.Equal(t, 5, cfg.Autoruns)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative autoruns", func(c *Config) { c.Autoruns = -1 }},
		{"negative concurrency", func(c *Config) { c.Concurrency = -1 }},
		{"temperature out of range", func(c *Config) { c.Temperature = 3 }},
		{"missing workflow dir", func(c *Config) { c.WorkflowDir = "" }},
		{"unknown chain backend", func(c *Config) { c.Chain.Backend = "carrier-pigeon" }},
		{"redis without addr", func(c *Config) { c.Chain.Backend = ChainBackendRedis; c.Chain.Addr = "" }},
		{"file without path", func(c *Config) { c.Chain.Path = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
