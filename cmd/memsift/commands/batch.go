package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vulntor/memsift/cmd/memsift/internal/bind"
	"github.com/vulntor/memsift/cmd/memsift/internal/format"
	"github.com/vulntor/memsift/pkg/appctx"
	"github.com/vulntor/memsift/pkg/logging"
	"github.com/vulntor/memsift/pkg/orchestrator"
	"github.com/vulntor/memsift/pkg/workspace"
)

func runBatch(cmd *cobra.Command, args []string) error {
	opts, err := bind.BindBatchOptions(cmd)
	if err != nil {
		return orchestrator.WithErrorCode(err, orchestrator.CodeUsage)
	}
	formatter := format.FromCommand(cmd)
	cfg := appctx.ConfigOrDefault(cmd.Context())

	table, err := loadCatalog(cfg)
	if err != nil {
		return orchestrator.WithErrorCode(err, orchestrator.CodeUsage)
	}
	g, err := newGate(cfg)
	if err != nil {
		return err
	}
	r, err := newRunner(cfg)
	if err != nil {
		return err
	}
	sender, err := newForwarder(cfg)
	if err != nil {
		return orchestrator.WithErrorCode(err, orchestrator.CodeUsage)
	}

	req := orchestrator.Request{DumpPath: args[0], Profile: args[1], Selector: args[2]}

	var progress orchestrator.ProgressSink
	if !opts.NoProgress && !formatter.Structured() {
		progress = newProgressPrinter(cmd.ErrOrStderr(), workspace.DumpName(req.DumpPath), opts.NoColor)
	}

	logger := logging.NewLogger("orchestrator", log.Logger.GetLevel())
	orch, err := orchestrator.New(orchestrator.Options{
		Catalog:     table,
		Gate:        g,
		Runner:      r,
		Sender:      sender,
		Retry:       cfg.Gate.Retry,
		OutputRoot:  cfg.Output.Root,
		Program:     cfg.Tool.Program,
		RunLockPath: cfg.Gate.RunLockFile,
		Progress:    progress,
		Logger:      &logger,
	})
	if err != nil {
		return err
	}

	report, runErr := orch.Run(cmd.Context(), req)

	if opts.ReportFile != "" && report != nil {
		if err := writeReport(opts.ReportFile, report); err != nil {
			log.Error().Err(err).Str("path", opts.ReportFile).Msg("failed to write batch report")
		}
	}
	if runErr != nil {
		return runErr
	}

	if formatter.Structured() {
		return formatter.PrintData(report)
	}
	return formatter.PrintBatchSummary(summaryFromReport(report))
}

func summaryFromReport(r *orchestrator.Report) format.Summary {
	s := format.Summary{
		BatchID:      r.BatchID,
		Dump:         r.DumpName,
		Planned:      r.Planned,
		Succeeded:    r.Succeeded,
		Partial:      r.Partial,
		Failed:       r.Failed,
		EventsSent:   r.EventsSent,
		EventsFailed: r.EventsFailed,
		Elapsed:      r.FinishedAt.Sub(r.StartedAt),
	}
	for _, o := range r.Outcomes {
		if o.Status == orchestrator.StatusSucceeded {
			continue
		}
		s.Errors = append(s.Errors, format.ErrorDetail{
			Plugin:    o.Plugin,
			Category:  o.Category.String(),
			Stage:     string(o.Stage),
			Error:     o.Error,
			ErrorCode: o.Code,
		})
	}
	return s
}

// writeReport stores the report as YAML for .yaml/.yml paths and JSON
// otherwise.
func writeReport(path string, r *orchestrator.Report) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	default:
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}
