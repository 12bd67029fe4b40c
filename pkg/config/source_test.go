package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourcePriorities(t *testing.T) {
	sources := DefaultSources("/etc/memsift.yaml", nil, false)
	require.Len(t, sources, 4)

	want := []struct {
		name     string
		priority int
	}{
		{"defaults", 10},
		{"file:/etc/memsift.yaml", 20},
		{"env", 30},
		{"flags", 40},
	}
	for i, w := range want {
		assert.Equal(t, w.name, sources[i].Name())
		assert.Equal(t, w.priority, sources[i].Priority())
	}
}

func TestDefaultSource_Load(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, (&DefaultSource{}).Load(k))

	assert.Equal(t, "info", k.String("log.level"))
	assert.Equal(t, "Volatility2", k.String("tool.program"))
	assert.Equal(t, 2, k.Int("gate.capacity"))
	assert.Equal(t, "/tmp/dumpprocess.lock", k.String("gate.run_lock_file"))
}

func TestFileSource_SkipsMissing(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, (&FileSource{}).Load(k))
	require.NoError(t, (&FileSource{Path: "/nonexistent/memsift.yaml"}).Load(k))
	assert.Empty(t, k.Keys())
}

func TestFileSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memsift.yaml")
	content := `
log:
  level: warn
gate:
  capacity: 4
  stale_after: 30m
sink:
  token: abc
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	k := koanf.New(".")
	require.NoError(t, (&FileSource{Path: path}).Load(k))
	assert.Equal(t, "warn", k.String("log.level"))
	assert.Equal(t, 4, k.Int("gate.capacity"))
	assert.Equal(t, 30*time.Minute, k.Duration("gate.stale_after"))
	assert.Equal(t, "abc", k.String("sink.token"))
}

func TestFileSource_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unterminated"), 0o644))

	err := (&FileSource{Path: path}).Load(koanf.New("."))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config file")
}

func TestEnvSource_MapsUnderscoreKeys(t *testing.T) {
	t.Setenv("MEMSIFT_GATE_COUNTER_FILE", "/var/run/memsift/counter")
	t.Setenv("MEMSIFT_SINK_TOKEN", "secret")
	t.Setenv("MEMSIFT_LOG_LEVEL", "debug")

	k := koanf.New(".")
	require.NoError(t, (&EnvSource{}).Load(k))
	assert.Equal(t, "/var/run/memsift/counter", k.String("gate.counter_file"))
	assert.Equal(t, "secret", k.String("sink.token"))
	assert.Equal(t, "debug", k.String("log.level"))
}

func TestFlagSource_ChangedFlagsOverride(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, (&DefaultSource{}).Load(k))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse([]string{"--gate.capacity=5"}))

	require.NoError(t, (&FlagSource{Flags: flags, Debug: true}).Load(k))
	assert.Equal(t, 5, k.Int("gate.capacity"))
	assert.Equal(t, "debug", k.String("log.level"))
	assert.Equal(t, "Volatility2", k.String("tool.program"), "unchanged flags keep lower layers")
}

func TestFlagSource_IgnoresNonConfigFlags(t *testing.T) {
	k := koanf.New(".")
	require.NoError(t, (&DefaultSource{}).Load(k))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.StringP("output", "o", "table", "")
	BindFlags(flags)
	require.NoError(t, flags.Parse([]string{"-o", "json", "--output.root=/srv/memory"}))

	require.NoError(t, (&FlagSource{Flags: flags}).Load(k))
	assert.Equal(t, "/srv/memory", k.String("output.root"))
	assert.False(t, k.Exists("debug"))
}
