package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/memsift/cmd/memsift/internal/bind"
	"github.com/vulntor/memsift/cmd/memsift/internal/format"
	"github.com/vulntor/memsift/pkg/appctx"
	"github.com/vulntor/memsift/pkg/gate"
	"github.com/vulntor/memsift/pkg/orchestrator"
)

func newGateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Inspect or reset the cross-process concurrency gate",
	}
	cmd.AddCommand(newGateStatusCommand())
	cmd.AddCommand(newGateResetCommand())
	return cmd
}

// gateStatus is the structured form of gate status.
type gateStatus struct {
	CounterFile string        `json:"counter_file" yaml:"counter_file"`
	Capacity    int           `json:"capacity" yaml:"capacity"`
	InFlight    int           `json:"in_flight" yaml:"in_flight"`
	Holders     []gate.Holder `json:"holders" yaml:"holders"`
	RunLockFile string        `json:"run_lock_file" yaml:"run_lock_file"`
	RunLockHeld bool          `json:"run_lock_held" yaml:"run_lock_held"`
}

func newGateStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show slot holders and whether a batch holds the run lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appctx.ConfigOrDefault(cmd.Context())
			g, err := newGate(cfg)
			if err != nil {
				return err
			}
			st, err := g.Status(cmd.Context())
			if err != nil {
				return err
			}

			status := gateStatus{
				CounterFile: cfg.Gate.CounterFile,
				Capacity:    g.Capacity(),
				InFlight:    st.Count,
				Holders:     st.Holders,
				RunLockFile: cfg.Gate.RunLockFile,
			}
			lock, err := gate.TryRunLock(cfg.Gate.RunLockFile)
			switch {
			case gate.IsRunLockHeld(err):
				status.RunLockHeld = true
			case err != nil:
				return err
			default:
				if err := lock.Release(); err != nil {
					log.Warn().Err(err).Msg("failed to release status run lock")
				}
			}

			f := format.FromCommand(cmd)
			if f.Structured() {
				return f.PrintData(status)
			}
			return printGateStatus(f, status)
		},
	}
}

func printGateStatus(f format.Formatter, s gateStatus) error {
	runLock := "free"
	if s.RunLockHeld {
		runLock = "held"
	}
	if err := f.PrintTable([]string{"Counter", "Slots", "Run lock"}, [][]string{{
		s.CounterFile,
		fmt.Sprintf("%d/%d", s.InFlight, s.Capacity),
		runLock,
	}}); err != nil {
		return err
	}
	if len(s.Holders) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(s.Holders))
	for _, h := range s.Holders {
		pid := "-"
		if h.PID > 0 {
			pid = strconv.Itoa(h.PID)
		}
		rows = append(rows, []string{h.ID, pid, h.Hostname, time.Since(h.AcquiredAt).Round(time.Second).String()})
	}
	if err := f.PrintSummary(""); err != nil {
		return err
	}
	return f.PrintTable([]string{"Holder", "PID", "Host", "Age"}, rows)
}

func newGateResetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every slot holder from the counter file",
		Long: `Reset empties the shared counter file. Slots held by live batches are
dropped too, so only use it after a crash left the counter saturated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := bind.BindGateResetOptions(cmd); err != nil {
				return orchestrator.WithErrorCode(err, orchestrator.CodeUsage)
			}
			cfg := appctx.ConfigOrDefault(cmd.Context())
			g, err := newGate(cfg)
			if err != nil {
				return err
			}
			dropped, err := g.Reset(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Int("dropped", dropped).Str("counter", cfg.Gate.CounterFile).Msg("gate reset")

			f := format.FromCommand(cmd)
			if f.Structured() {
				return f.PrintData(map[string]int{"dropped": dropped})
			}
			return f.PrintSummary(fmt.Sprintf("Dropped %d slot holder(s)", dropped))
		},
	}
	cmd.Flags().Bool("force", false, "Confirm the reset")
	return cmd
}
