package config

import (
	"time"

	"github.com/vulntor/memsift/pkg/logging"
	"github.com/vulntor/memsift/pkg/retry"
)

// Config is the root configuration structure.
type Config struct {
	Log     logging.Config `description:"Logging configuration" koanf:"log"`
	Tool    ToolConfig     `description:"Forensic tool invocation" koanf:"tool"`
	Gate    GateConfig     `description:"Cross-process concurrency gate" koanf:"gate"`
	Sink    SinkConfig     `description:"Event collector" koanf:"sink"`
	Output  OutputConfig   `description:"Raw output layout" koanf:"output"`
	Catalog CatalogConfig  `description:"Plugin catalog" koanf:"catalog"`
}

// ToolConfig describes how the forensic tool is launched.
type ToolConfig struct {
	Interpreter string        `description:"Interpreter used to run the tool (empty runs the tool directly)" koanf:"interpreter"`
	Path        string        `description:"Path to the tool entry point" koanf:"path" validate:"required"`
	OutputFlag  string        `description:"Flag selecting JSON output" koanf:"output_flag"`
	Program     string        `description:"Program tag stamped on every event" koanf:"program" validate:"required"`
	Timeout     time.Duration `description:"Per-plugin timeout, 0 disables it" koanf:"timeout" validate:"gte=0"`
}

// GateConfig configures the counter file and the run lock.
type GateConfig struct {
	CounterFile string        `description:"Shared slot counter file" koanf:"counter_file" validate:"required"`
	RunLockFile string        `description:"Host-wide single batch lock" koanf:"run_lock_file" validate:"required"`
	Capacity    int           `description:"Maximum concurrent tool processes" koanf:"capacity" validate:"min=1"`
	StaleAfter  time.Duration `description:"Age after which a holder is reclaimed, 0 disables expiry" koanf:"stale_after" validate:"gte=0"`
	Retry       retry.Config  `description:"Backoff while waiting for a slot" koanf:"retry"`
}

// SinkConfig configures the HTTP event collector.
type SinkConfig struct {
	URL                string        `description:"Collector endpoint" koanf:"url" validate:"required,url"`
	Token              string        `description:"Collector token" koanf:"token"`
	Scheme             string        `description:"Authorization scheme" koanf:"scheme"`
	Index              string        `description:"Destination index" koanf:"index"`
	SourceType         string        `description:"Source type" koanf:"source_type"`
	InsecureSkipVerify bool          `description:"Skip TLS certificate verification" koanf:"insecure_skip_verify"`
	Timeout            time.Duration `description:"Per-request timeout" koanf:"timeout" validate:"gte=0"`
}

// OutputConfig configures where raw tool output lands.
type OutputConfig struct {
	Root string `description:"Root of the per-dump output tree" koanf:"root" validate:"required"`
}

// CatalogConfig optionally replaces the built-in plugin table.
type CatalogConfig struct {
	File string `description:"YAML catalog file replacing the built-in table" koanf:"file"`
}
