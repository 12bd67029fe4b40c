// Package orchestrator runs one analysis batch against a memory dump.
//
// A batch expands its selector into plugins and processes them one after
// another: take a gate slot, run the tool, parse its table, normalize the
// rows, deliver the events and give the slot back. A plugin that fails at
// any stage is recorded in the report and the batch moves on. Only usage
// errors, a held run-lock, saturated capacity and cancellation end a batch
// early.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/memsift/pkg/catalog"
	"github.com/vulntor/memsift/pkg/forward"
	"github.com/vulntor/memsift/pkg/gate"
	"github.com/vulntor/memsift/pkg/normalize"
	"github.com/vulntor/memsift/pkg/retry"
	"github.com/vulntor/memsift/pkg/runner"
	"github.com/vulntor/memsift/pkg/workspace"
)

// Slots is the part of the concurrency gate a batch needs.
type Slots interface {
	AcquireWithRetry(ctx context.Context, cfg retry.Config) (*gate.Ticket, error)
	Release(t *gate.Ticket) error
}

// Executor runs one plugin invocation.
type Executor interface {
	Run(ctx context.Context, inv runner.Invocation) runner.Result
}

// Request names the dump, profile and selector of a batch.
type Request struct {
	DumpPath string `json:"dump_path" yaml:"dump_path"`
	Profile  string `json:"profile" yaml:"profile"`
	Selector string `json:"selector" yaml:"selector"`
}

// Validate rejects blank fields with ErrUsage.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.DumpPath) == "":
		return usageError("dump file is required")
	case strings.TrimSpace(r.Profile) == "":
		return usageError("profile is required")
	case strings.TrimSpace(r.Selector) == "":
		return usageError("plugin selector is required")
	}
	return nil
}

// Options wires the batch dependencies.
type Options struct {
	Catalog     catalog.Table
	Gate        Slots
	Runner      Executor
	Sender      forward.Sender
	Retry       retry.Config
	OutputRoot  string
	Program     string
	RunLockPath string // empty skips the run-lock
	Progress    ProgressSink
	Logger      *zerolog.Logger
	Now         func() time.Time
}

// Orchestrator executes batches. It is not safe for concurrent Run calls;
// batches on one host are serialized by the run-lock.
type Orchestrator struct {
	table       catalog.Table
	gate        Slots
	runner      Executor
	sender      forward.Sender
	retry       retry.Config
	outputRoot  string
	program     string
	runLockPath string
	progress    ProgressSink
	logger      zerolog.Logger
	now         func() time.Time
}

// New validates opts and returns an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Gate == nil {
		return nil, errors.New("orchestrator: gate is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("orchestrator: runner is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("orchestrator: sender is required")
	}
	if opts.OutputRoot == "" {
		return nil, errors.New("orchestrator: output root is required")
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: retry: %w", err)
	}

	o := &Orchestrator{
		table:       opts.Catalog,
		gate:        opts.Gate,
		runner:      opts.Runner,
		sender:      opts.Sender,
		retry:       opts.Retry,
		outputRoot:  opts.OutputRoot,
		program:     opts.Program,
		runLockPath: opts.RunLockPath,
		progress:    opts.Progress,
		now:         opts.Now,
	}
	if o.table == nil {
		o.table = catalog.DefaultTable()
	}
	if o.progress == nil {
		o.progress = ProgressFunc(func(ProgressEvent) {})
	}
	if o.now == nil {
		o.now = time.Now
	}
	if opts.Logger != nil {
		o.logger = *opts.Logger
	} else {
		o.logger = log.With().Str("component", "orchestrator").Logger()
	}
	return o, nil
}

// Run executes a batch. The returned report is never nil; it is partial
// when err is non-nil. Per-plugin failures are in the report, not in err.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{
		BatchID:   uuid.NewString(),
		Request:   req,
		StartedAt: o.now().UTC(),
	}
	defer func() { report.FinishedAt = o.now().UTC() }()

	o.emit(ProgressEvent{State: StateStart})
	if err := req.Validate(); err != nil {
		return report, err
	}
	logger := o.logger.With().Str("batch", report.BatchID).Str("dump", req.DumpPath).Logger()

	if o.runLockPath != "" {
		lock, err := gate.TryRunLock(o.runLockPath)
		if err != nil {
			return report, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Error().Err(err).Str("path", o.runLockPath).Msg("failed to release run lock")
			}
		}()
	}

	layout, err := workspace.PrepareDump(o.outputRoot, req.DumpPath)
	if err != nil {
		return report, WithErrorCode(err, CodeInternal)
	}
	report.DumpName = layout.DumpName
	report.OutputDir = layout.Dir

	o.emit(ProgressEvent{State: StateExpanding})
	entries := catalog.Resolve(req.Selector, o.table)
	if len(entries) == 0 {
		return report, usageError("selector %q names no plugins", req.Selector)
	}
	report.Planned = len(entries)
	logger.Info().Str("selector", req.Selector).Int("plugins", len(entries)).Msg("batch started")

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("batch interrupted after %d of %d plugins: %w", i, len(entries), err)
		}

		inv := runner.NewInvocation(entry, req.DumpPath, layout.DumpName, req.Profile, layout.Dir)
		step := ProgressEvent{Index: i, Total: len(entries), Plugin: entry.Plugin, Category: entry.Category}

		outcome, fatal := o.runPlugin(ctx, inv, step, logger)
		report.record(outcome)

		step.State = StateRecording
		step.Outcome = &outcome
		o.emit(step)

		if fatal != nil {
			return report, fatal
		}
	}

	o.emit(ProgressEvent{State: StateDone, Total: len(entries)})
	logger.Info().
		Int("succeeded", report.Succeeded).
		Int("partial", report.Partial).
		Int("failed", report.Failed).
		Int("events_sent", report.EventsSent).
		Int("events_failed", report.EventsFailed).
		Msg("batch finished")
	return report, nil
}

// runPlugin drives one invocation through the pipeline. A non-nil second
// return value aborts the batch.
func (o *Orchestrator) runPlugin(ctx context.Context, inv runner.Invocation, step ProgressEvent, batchLogger zerolog.Logger) (PluginOutcome, error) {
	started := o.now()
	outcome := PluginOutcome{Plugin: inv.Plugin, Category: inv.Category, Status: StatusSucceeded}
	logger := batchLogger.With().Str("plugin", inv.Plugin).Str("category", inv.Category.String()).Logger()
	fail := func(stage Stage, err error) (PluginOutcome, error) {
		outcome.Status = StatusFailed
		outcome.Stage = stage
		outcome.setErr(err)
		outcome.Duration = o.now().Sub(started)
		logger.Error().Err(err).Str("stage", string(stage)).Msg("plugin failed")
		return outcome, nil
	}

	ticket, err := o.gate.AcquireWithRetry(ctx, o.retry)
	if err != nil {
		out, _ := fail(StageAcquire, err)
		if gate.IsCapacityExhausted(err) || ctx.Err() != nil {
			return out, err
		}
		return out, nil
	}
	defer func() {
		if err := o.gate.Release(ticket); err != nil {
			logger.Error().Err(err).Msg("failed to release gate slot")
		}
	}()

	step.State = StateRunning
	o.emit(step)

	res := o.runner.Run(ctx, inv)
	outcome.ExitCode = res.ExitCode
	outcome.RawPath = res.OutputPath
	if res.Err != nil {
		return fail(StageRun, res.Err)
	}

	table, err := runner.ParseTableFile(res.OutputPath)
	if err != nil {
		return fail(StageParse, err)
	}
	if table.Dropped > 0 {
		logger.Warn().Int("dropped", table.Dropped).Msg("dropped rows with mismatched width")
	}
	outcome.Rows = len(table.Rows)

	events := normalize.Transform(table, normalize.ProvenanceFor(inv, o.program))
	eventsPath := filepath.Join(inv.OutputDir, inv.Name()+".ndjson")
	if err := normalize.WriteNDJSONFile(eventsPath, events); err != nil {
		// delivery does not depend on the local copy
		logger.Warn().Err(err).Str("path", eventsPath).Msg("failed to write normalized events")
	} else {
		outcome.EventsPath = eventsPath
	}

	delivery := o.sender.Send(ctx, events)
	outcome.Events = len(events)
	outcome.EventsSent = delivery.Delivered
	outcome.EventsFailed = delivery.Failed()
	outcome.Duration = o.now().Sub(started)
	if delivery.Failed() > 0 {
		outcome.Status = StatusPartial
		outcome.Stage = StageDeliver
		outcome.setErr(&DeliveryError{Plugin: inv.Name(), Failed: delivery.Failed(), Attempted: delivery.Attempted})
		logger.Warn().Int("failed", delivery.Failed()).Int("attempted", delivery.Attempted).Msg("some events were not delivered")
		return outcome, nil
	}

	logger.Info().Int("events", len(events)).Dur("duration", outcome.Duration).Msg("plugin done")
	return outcome, nil
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	o.progress.Progress(ev)
}
