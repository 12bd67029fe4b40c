// Package commands implements the memsift command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vulntor/memsift/cmd/memsift/internal/format"
	"github.com/vulntor/memsift/pkg/appctx"
	"github.com/vulntor/memsift/pkg/config"
	"github.com/vulntor/memsift/pkg/logging"
	"github.com/vulntor/memsift/pkg/orchestrator"
	"github.com/vulntor/memsift/pkg/paths"
)

const cliExecutable = "memsift"

// NewCommand constructs the top-level memsift command. Run with three
// positional arguments it executes one batch; subcommands inspect the
// catalog and the gate.
func NewCommand() *cobra.Command {
	var (
		configFile     string
		verbosityCount int
		logCloser      io.Closer
	)

	cmd := &cobra.Command{
		Use:   cliExecutable + " <dumpFile> <profile> <selector>",
		Short: "Run memory forensics plugins against a dump and forward the results",
		Long: `memsift runs Volatility plugins against a memory image, normalizes every
result row into an event and posts the events to an HTTP event collector.

The selector is a category name (processes, malware, procmemory,
kernelobjects, networking, registry, filesystem, miscellaneous), the keyword
"windows" for the whole catalog, or a comma-separated list of plugins with
optional flags.`,
		Example: `  memsift /evidence/host1.raw Win7SP1x64 processes
  memsift /evidence/host1.raw Win7SP1x64 windows
  memsift /evidence/host1.raw Win7SP1x64 "pslist,svcscan --verbose"`,
		Args: usageArgs(3),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if path == "" {
				path = paths.ConfigFile()
			} else if _, err := os.Stat(path); err != nil {
				return orchestrator.WithErrorCode(fmt.Errorf("config file: %w", err), orchestrator.CodeUsage)
			}

			mgr := config.NewManager()
			if err := mgr.Load(cmd.Flags(), path); err != nil {
				return err
			}

			logCfg := mgr.Get().Log
			switch {
			case verbosityCount >= 2:
				logCfg.Level = "trace"
			case verbosityCount == 1:
				logCfg.Level = "debug"
			}
			closer, err := logging.Setup(logCfg)
			if err != nil {
				return fmt.Errorf("setup logging: %w", err)
			}
			logCloser = closer

			ctx := appctx.WithConfig(cmd.Context(), mgr)
			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
		RunE: runBatch,
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	pf := cmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Configuration file path")
	pf.CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	pf.StringP("output", "o", string(format.ModeTable), "Output format: table, json or yaml")
	pf.BoolP("quiet", "q", false, "Suppress progress and summaries")
	pf.Bool("no-color", false, "Disable colored output")
	config.BindFlags(pf)

	cmd.Flags().Bool("no-progress", false, "Do not print per-plugin progress")
	cmd.Flags().String("report", "", "Write the batch report to this file (.json or .yaml)")

	cmd.AddCommand(newCatalogCommand())
	cmd.AddCommand(newGateCommand())
	cmd.AddCommand(newExecCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// usageArgs is cobra.ExactArgs with the error classified as a usage error.
func usageArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %v; usage: %s", orchestrator.ErrUsage, err, cmd.UseLine())
		}
		return nil
	}
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	executed, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	if executed == nil {
		executed = root
	}
	_ = format.FromCommand(executed).PrintError(err, orchestrator.ErrorCode(err), orchestrator.Suggestions(err))
	return orchestrator.ExitCode(err)
}
