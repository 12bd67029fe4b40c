package commands

import (
	"bytes"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/memsift/pkg/appctx"
	"github.com/vulntor/memsift/pkg/orchestrator"
	"github.com/vulntor/memsift/pkg/stringutil"
)

func newExecCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exec -- <tool args...>",
		Short: "Run the forensic tool once under the gate and print comma-separated output",
		Long: `Exec passes its arguments straight to the tool while holding one gate
slot. Each line of the tool's standard output is printed with its
whitespace-separated fields joined by commas, followed by anything the tool
wrote to standard error.`,
		Example: `  memsift exec -- -f /evidence/host1.raw imageinfo`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%w: exec needs tool arguments after --", orchestrator.ErrUsage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appctx.ConfigOrDefault(cmd.Context())
			g, err := newGate(cfg)
			if err != nil {
				return err
			}
			r, err := newRunner(cfg)
			if err != nil {
				return err
			}

			ticket, err := g.AcquireWithRetry(cmd.Context(), cfg.Gate.Retry)
			if err != nil {
				return err
			}
			defer func() {
				if err := g.Release(ticket); err != nil {
					log.Error().Err(err).Msg("failed to release gate slot")
				}
			}()

			var stdout, stderr bytes.Buffer
			code, runErr := r.Exec(cmd.Context(), args, &stdout, &stderr)
			log.Debug().Strs("args", args).Int("exit_code", code).Msg("exec finished")

			if err := writeExecOutput(cmd.OutOrStdout(), stdout.String(), stderr.String()); err != nil {
				return err
			}
			return runErr
		},
	}
}

func writeExecOutput(w io.Writer, stdout, stderr string) error {
	if stdout != "" {
		if _, err := fmt.Fprintln(w, stringutil.CollapseFields(stdout)); err != nil {
			return err
		}
	}
	if stderr != "" {
		if _, err := io.WriteString(w, stderr); err != nil {
			return err
		}
	}
	return nil
}
