package runner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cast"
)

// Table is the columnar result the tool prints with --output=json.
// Every row has exactly len(Columns) values.
type Table struct {
	Columns []string
	Rows    [][]any
	// Dropped counts rows discarded for having the wrong width.
	Dropped int
}

// ParseTableFile reads and parses a raw tool output file.
func ParseTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("open tool output: %w", err)
	}
	defer f.Close()
	return ParseTable(f)
}

// ParseTable decodes {"columns": [...], "rows": [[...], ...]}. Numbers are
// kept as json.Number so 64-bit addresses survive re-encoding. Missing keys
// or null or wrongly typed values are ErrMalformedOutput; rows whose width differs
// from the column count are dropped and counted.
func ParseTable(r io.Reader) (Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Table{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	rawColumns, ok := doc["columns"]
	if !ok {
		return Table{}, fmt.Errorf("%w: missing \"columns\"", ErrMalformedOutput)
	}
	rawRows, ok := doc["rows"]
	if !ok {
		return Table{}, fmt.Errorf("%w: missing \"rows\"", ErrMalformedOutput)
	}

	if rawColumns == nil {
		return Table{}, fmt.Errorf("%w: \"columns\" is null", ErrMalformedOutput)
	}
	if rawRows == nil {
		return Table{}, fmt.Errorf("%w: \"rows\" is null", ErrMalformedOutput)
	}

	columnList, ok := rawColumns.([]any)
	if !ok {
		return Table{}, fmt.Errorf("%w: \"columns\" is %T, want array", ErrMalformedOutput, rawColumns)
	}
	columns := make([]string, 0, len(columnList))
	for i, c := range columnList {
		name, err := cast.ToStringE(c)
		if err != nil {
			return Table{}, fmt.Errorf("%w: column %d: %v", ErrMalformedOutput, i, err)
		}
		columns = append(columns, name)
	}

	rowList, err := cast.ToSliceE(rawRows)
	if err != nil {
		return Table{}, fmt.Errorf("%w: \"rows\": %v", ErrMalformedOutput, err)
	}

	t := Table{Columns: columns, Rows: make([][]any, 0, len(rowList))}
	for _, raw := range rowList {
		row, err := cast.ToSliceE(raw)
		if err != nil || len(row) != len(columns) {
			t.Dropped++
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
