package orchestrator

import (
	"time"

	"github.com/vulntor/memsift/pkg/catalog"
)

// State is a batch state-machine position.
type State string

const (
	StateStart     State = "start"
	StateExpanding State = "expanding"
	StateRunning   State = "running"
	StateRecording State = "recording"
	StateDone      State = "done"
)

// Stage names the pipeline step where a plugin stopped.
type Stage string

const (
	StageAcquire Stage = "acquire"
	StageRun     Stage = "run"
	StageParse   Stage = "parse"
	StageDeliver Stage = "deliver"
)

// Status is the final state of one plugin.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	// StatusPartial means the tool and parse succeeded but some events
	// were rejected by the collector.
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// PluginOutcome is the terminal record of one invocation.
type PluginOutcome struct {
	Plugin       string           `json:"plugin" yaml:"plugin"`
	Category     catalog.Category `json:"category" yaml:"category"`
	Status       Status           `json:"status" yaml:"status"`
	Stage        Stage            `json:"stage,omitempty" yaml:"stage,omitempty"`
	Err          error            `json:"-" yaml:"-"`
	Error        string           `json:"error,omitempty" yaml:"error,omitempty"`
	Code         string           `json:"code,omitempty" yaml:"code,omitempty"`
	ExitCode     int              `json:"exit_code" yaml:"exit_code"`
	RawPath      string           `json:"raw_path,omitempty" yaml:"raw_path,omitempty"`
	EventsPath   string           `json:"events_path,omitempty" yaml:"events_path,omitempty"`
	Rows         int              `json:"rows" yaml:"rows"`
	Events       int              `json:"events" yaml:"events"`
	EventsSent   int              `json:"events_sent" yaml:"events_sent"`
	EventsFailed int              `json:"events_failed" yaml:"events_failed"`
	Duration     time.Duration    `json:"duration" yaml:"duration"`
}

func (p *PluginOutcome) setErr(err error) {
	p.Err = err
	p.Error = err.Error()
	p.Code = ErrorCode(err)
}

// Report aggregates a batch.
type Report struct {
	BatchID      string          `json:"batch_id" yaml:"batch_id"`
	Request      Request         `json:"request" yaml:"request"`
	DumpName     string          `json:"dump_name" yaml:"dump_name"`
	OutputDir    string          `json:"output_dir" yaml:"output_dir"`
	StartedAt    time.Time       `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time       `json:"finished_at" yaml:"finished_at"`
	Planned      int             `json:"planned" yaml:"planned"`
	Succeeded    int             `json:"succeeded" yaml:"succeeded"`
	Partial      int             `json:"partial" yaml:"partial"`
	Failed       int             `json:"failed" yaml:"failed"`
	EventsSent   int             `json:"events_sent" yaml:"events_sent"`
	EventsFailed int             `json:"events_failed" yaml:"events_failed"`
	Outcomes     []PluginOutcome `json:"outcomes" yaml:"outcomes"`
}

// Attempted returns the number of plugins that reached a terminal outcome.
func (r *Report) Attempted() int {
	return len(r.Outcomes)
}

func (r *Report) record(o PluginOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusSucceeded:
		r.Succeeded++
	case StatusPartial:
		r.Partial++
	default:
		r.Failed++
	}
	r.EventsSent += o.EventsSent
	r.EventsFailed += o.EventsFailed
}

// ProgressEvent is emitted on every state transition. Plugin fields are
// set for Running and Recording; Outcome only for Recording.
type ProgressEvent struct {
	State    State
	Index    int
	Total    int
	Plugin   string
	Category catalog.Category
	Outcome  *PluginOutcome
}

// ProgressSink receives batch progress.
type ProgressSink interface {
	Progress(ev ProgressEvent)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ev ProgressEvent)

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(ev ProgressEvent) { f(ev) }
