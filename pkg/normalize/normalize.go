// Package normalize flattens tool tables into one event per row.
package normalize

import (
	"github.com/vulntor/memsift/pkg/catalog"
	"github.com/vulntor/memsift/pkg/runner"
)

// Reserved provenance keys. They are written after the row's columns, so a
// tool column with the same name is overwritten.
const (
	FieldPlugin   = "Plugin"
	FieldProgram  = "Program"
	FieldDump     = "Dump"
	FieldProfile  = "Profile"
	FieldCategory = "Category"
)

// ReservedFields lists the provenance keys present on every event.
var ReservedFields = []string{FieldPlugin, FieldProgram, FieldDump, FieldProfile, FieldCategory}

// Event is one flattened table row plus provenance.
type Event map[string]any

// Provenance identifies where an event came from.
type Provenance struct {
	Plugin   string
	Program  string
	Dump     string
	Profile  string
	Category catalog.Category
}

// ProvenanceFor derives provenance from an invocation. Plugin is the primary
// plugin name, without flags.
func ProvenanceFor(inv runner.Invocation, program string) Provenance {
	return Provenance{
		Plugin:   inv.Name(),
		Program:  program,
		Dump:     inv.DumpName,
		Profile:  inv.Profile,
		Category: inv.Category,
	}
}

// Transform zips each row with the column names and overlays provenance.
// Rows are skipped when there are no columns or the row is empty. Output
// order follows input order. Transform does no I/O and does not retain or
// modify its inputs.
func Transform(table runner.Table, prov Provenance) []Event {
	if len(table.Columns) == 0 {
		return nil
	}

	events := make([]Event, 0, len(table.Rows))
	for _, row := range table.Rows {
		if len(row) == 0 {
			continue
		}

		ev := make(Event, len(table.Columns)+len(ReservedFields))
		for i, col := range table.Columns {
			if i >= len(row) {
				break
			}
			ev[col] = row[i]
		}

		ev[FieldPlugin] = prov.Plugin
		ev[FieldProgram] = prov.Program
		ev[FieldDump] = prov.Dump
		ev[FieldProfile] = prov.Profile
		ev[FieldCategory] = prov.Category.String()

		events = append(events, ev)
	}
	return events
}
