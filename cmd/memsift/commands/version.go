package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulntor/memsift/cmd/memsift/internal/format"
	"github.com/vulntor/memsift/pkg/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := format.FromCommand(cmd)
			if f.Structured() {
				return f.PrintData(version.Get())
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			return err
		},
	}
}
