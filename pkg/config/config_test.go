package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "python2.7", cfg.Tool.Interpreter)
	assert.Equal(t, "/opt/tools/volatility/vol.py", cfg.Tool.Path)
	assert.Equal(t, "/opt/splunk/memory", cfg.Output.Root)
	assert.Equal(t, "http://localhost:8088/services/collector/event", cfg.Sink.URL)
	assert.True(t, cfg.Sink.InsecureSkipVerify)
}

func TestDefaultConfigAsMap_CoversEveryLeaf(t *testing.T) {
	m := DefaultConfigAsMap()
	for _, key := range []string{
		"log.level", "tool.path", "tool.program", "gate.capacity", "gate.retry.max_attempts",
		"sink.url", "sink.index", "output.root", "catalog.file",
	} {
		assert.Contains(t, m, key)
	}
}

func TestManager_LoadLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memsift.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gate:
  capacity: 3
sink:
  token: from-file
  index: forensics
`), 0o644))
	t.Setenv("MEMSIFT_SINK_TOKEN", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse([]string{"--debug", "--tool.timeout=90s"}))

	m := NewManager()
	require.NoError(t, m.Load(flags, path))
	cfg := m.Get()

	assert.Equal(t, 3, cfg.Gate.Capacity)
	assert.Equal(t, "forensics", cfg.Sink.Index)
	assert.Equal(t, "from-env", cfg.Sink.Token, "env overrides file")
	assert.Equal(t, 90*time.Second, cfg.Tool.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Gate.Retry.MaxAttempts)
}

func TestManager_LoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memsift.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gate:\n  capacity: 0\n"), 0o644))

	err := NewManager().Load(nil, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"capacity", func(c *Config) { c.Gate.Capacity = 0 }},
		{"tool path", func(c *Config) { c.Tool.Path = "" }},
		{"sink url", func(c *Config) { c.Sink.URL = "not a url" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"retry", func(c *Config) { c.Gate.Retry.Multiplier = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, Validate(cfg))
		})
	}
}
