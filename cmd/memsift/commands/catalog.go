package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulntor/memsift/cmd/memsift/internal/format"
	"github.com/vulntor/memsift/pkg/appctx"
	"github.com/vulntor/memsift/pkg/catalog"
	"github.com/vulntor/memsift/pkg/orchestrator"
)

func newCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [selector]",
		Short: "List the plugin catalog or preview what a selector runs",
		Example: `  memsift catalog
  memsift catalog malware
  memsift catalog "pslist,handles -t Mutant" -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appctx.ConfigOrDefault(cmd.Context())
			table, err := loadCatalog(cfg)
			if err != nil {
				return orchestrator.WithErrorCode(err, orchestrator.CodeUsage)
			}

			selector := catalog.SelectorAll
			if len(args) == 1 {
				selector = args[0]
			}
			entries := catalog.Resolve(selector, table)
			if len(entries) == 0 {
				return fmt.Errorf("%w: selector %q names no plugins", orchestrator.ErrUsage, selector)
			}
			return printEntries(format.FromCommand(cmd), entries)
		},
	}
}

func printEntries(f format.Formatter, entries []catalog.Entry) error {
	if f.Structured() {
		return f.PrintData(entries)
	}
	table := make([][]string, 0, len(entries))
	for _, e := range entries {
		table = append(table, []string{e.Category.String(), e.Plugin})
	}
	return f.PrintTable([]string{"Category", "Plugin"}, table)
}
