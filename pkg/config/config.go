// Package config loads memsift settings from defaults, a YAML file,
// MEMSIFT_* environment variables and command-line flags.
package config

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/vulntor/memsift/pkg/forward"
	"github.com/vulntor/memsift/pkg/logging"
	"github.com/vulntor/memsift/pkg/retry"
	"github.com/vulntor/memsift/pkg/runner"
)

// EnvPrefix is the environment variable prefix for overrides.
const EnvPrefix = "MEMSIFT_"

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager creates a Manager with its own koanf instance.
func NewManager() *Manager {
	return &Manager{koanfInstance: koanf.New(".")}
}

// DefaultConfig returns the built-in defaults. They mirror a stock
// Volatility 2 + Splunk install.
func DefaultConfig() Config {
	return Config{
		Log: logging.Config{Level: "info", Format: logging.FormatConsole},
		Tool: ToolConfig{
			Interpreter: "python2.7",
			Path:        "/opt/tools/volatility/vol.py",
			OutputFlag:  runner.DefaultOutputFlag,
			Program:     "Volatility2",
			Timeout:     30 * time.Minute,
		},
		Gate: GateConfig{
			CounterFile: "/tmp/volatility2_script.lock",
			RunLockFile: "/tmp/dumpprocess.lock",
			Capacity:    2,
			StaleAfter:  2 * time.Hour,
			Retry:       retry.DefaultConfig(),
		},
		Sink: SinkConfig{
			URL:                "http://localhost:8088/services/collector/event",
			Scheme:             forward.DefaultScheme,
			Index:              forward.DefaultIndex,
			SourceType:         forward.DefaultSourceType,
			InsecureSkipVerify: true,
			Timeout:            30 * time.Second,
		},
		Output: OutputConfig{Root: "/opt/splunk/memory"},
	}
}

// Load merges sources in priority order and validates the result.
func (m *Manager) Load(flags *pflag.FlagSet, configFilePath string) error {
	debug := false
	if flags != nil {
		if f := flags.Lookup("debug"); f != nil && f.Value.String() == "true" {
			debug = true
		}
	}
	return m.LoadSources(DefaultSources(configFilePath, flags, debug))
}

// LoadSources loads the given sources, lowest priority first.
func (m *Manager) LoadSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := make([]ConfigSource, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() < sorted[j].Priority() })

	for _, src := range sorted {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("load %s: %w", src.Name(), err)
		}
	}

	var cfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	m.currentConfig = cfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// Validate checks struct tags and the nested retry policy.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Gate.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: gate.retry: %w", err)
	}
	return nil
}

// DefaultConfigAsMap flattens DefaultConfig for koanf's confmap provider.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"tool.interpreter": def.Tool.Interpreter,
		"tool.path":        def.Tool.Path,
		"tool.output_flag": def.Tool.OutputFlag,
		"tool.program":     def.Tool.Program,
		"tool.timeout":     def.Tool.Timeout,

		"gate.counter_file":       def.Gate.CounterFile,
		"gate.run_lock_file":      def.Gate.RunLockFile,
		"gate.capacity":           def.Gate.Capacity,
		"gate.stale_after":        def.Gate.StaleAfter,
		"gate.retry.max_attempts": def.Gate.Retry.MaxAttempts,
		"gate.retry.initial_wait": def.Gate.Retry.InitialWait,
		"gate.retry.max_wait":     def.Gate.Retry.MaxWait,
		"gate.retry.multiplier":   def.Gate.Retry.Multiplier,
		"gate.retry.jitter":       def.Gate.Retry.Jitter,

		"sink.url":                  def.Sink.URL,
		"sink.token":                def.Sink.Token,
		"sink.scheme":               def.Sink.Scheme,
		"sink.index":                def.Sink.Index,
		"sink.source_type":          def.Sink.SourceType,
		"sink.insecure_skip_verify": def.Sink.InsecureSkipVerify,
		"sink.timeout":              def.Sink.Timeout,

		"output.root":  def.Output.Root,
		"catalog.file": def.Catalog.File,
	}
}

// BindFlags defines command-line flags that override config values. Flag
// names use the koanf key so posflag maps them directly.
func BindFlags(flags *pflag.FlagSet) {
	def := DefaultConfig()

	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log.level", def.Log.Level, "Log level (trace, debug, info, warn, error)")
	flags.String("log.format", def.Log.Format, "Log format (console, json)")
	flags.String("log.file", def.Log.File, "Also write logs to this file")

	flags.String("tool.path", def.Tool.Path, "Path to the forensic tool")
	flags.String("tool.interpreter", def.Tool.Interpreter, "Interpreter for the tool")
	flags.Duration("tool.timeout", def.Tool.Timeout, "Per-plugin timeout (0 disables)")

	flags.String("gate.counter_file", def.Gate.CounterFile, "Shared slot counter file")
	flags.String("gate.run_lock_file", def.Gate.RunLockFile, "Host-wide batch lock file")
	flags.Int("gate.capacity", def.Gate.Capacity, "Maximum concurrent tool processes")

	flags.String("sink.url", def.Sink.URL, "Event collector URL")
	flags.String("sink.token", def.Sink.Token, "Event collector token")
	flags.Bool("sink.insecure_skip_verify", def.Sink.InsecureSkipVerify, "Skip collector TLS verification")

	flags.String("output.root", def.Output.Root, "Root of the per-dump output tree")
	flags.String("catalog.file", def.Catalog.File, "YAML catalog replacing the built-in table")
}
