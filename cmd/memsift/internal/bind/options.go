// Package bind turns command flags into validated option structs.
package bind

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulntor/memsift/cmd/memsift/internal/format"
)

// OutputOptions are the presentation flags shared by every command.
type OutputOptions struct {
	Mode    format.OutputMode
	Quiet   bool
	NoColor bool
}

// BatchOptions contains validated options for a batch run.
type BatchOptions struct {
	OutputOptions
	NoProgress bool
	ReportFile string
}

// GateResetOptions contains validated options for gate reset.
type GateResetOptions struct {
	Force bool
}

// BindOutputOptions extracts --output, --quiet and --no-color.
func BindOutputOptions(cmd *cobra.Command) (OutputOptions, error) {
	output, _ := cmd.Flags().GetString("output")
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")

	if output == "" {
		output = string(format.ModeTable)
	}
	if err := format.ValidateMode(output); err != nil {
		return OutputOptions{}, err
	}
	return OutputOptions{Mode: format.ParseMode(output), Quiet: quiet, NoColor: noColor}, nil
}

// BindBatchOptions extracts and validates batch flags.
func BindBatchOptions(cmd *cobra.Command) (BatchOptions, error) {
	out, err := BindOutputOptions(cmd)
	if err != nil {
		return BatchOptions{}, err
	}
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	reportFile, _ := cmd.Flags().GetString("report")

	if out.Quiet {
		noProgress = true
	}
	return BatchOptions{OutputOptions: out, NoProgress: noProgress, ReportFile: reportFile}, nil
}

// BindGateResetOptions extracts gate reset flags. Without --force the reset
// is refused so a live batch is not starved by accident.
func BindGateResetOptions(cmd *cobra.Command) (GateResetOptions, error) {
	force, _ := cmd.Flags().GetBool("force")
	if !force {
		return GateResetOptions{}, fmt.Errorf("gate reset drops every holder, including live batches; pass --force to confirm")
	}
	return GateResetOptions{Force: force}, nil
}
