// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Summary holds batch counts for the closing summary.
type Summary struct {
	BatchID      string        `json:"batch_id" yaml:"batch_id"`
	Dump         string        `json:"dump" yaml:"dump"`
	Planned      int           `json:"planned" yaml:"planned"`
	Succeeded    int           `json:"succeeded" yaml:"succeeded"`
	Partial      int           `json:"partial" yaml:"partial"`
	Failed       int           `json:"failed" yaml:"failed"`
	EventsSent   int           `json:"events_sent" yaml:"events_sent"`
	EventsFailed int           `json:"events_failed" yaml:"events_failed"`
	Elapsed      time.Duration `json:"elapsed" yaml:"elapsed"`
	Errors       []ErrorDetail `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ErrorDetail describes one plugin that did not fully succeed.
type ErrorDetail struct {
	Plugin    string `json:"plugin" yaml:"plugin"`
	Category  string `json:"category" yaml:"category"`
	Stage     string `json:"stage" yaml:"stage"`
	Error     string `json:"error" yaml:"error"`
	ErrorCode string `json:"error_code" yaml:"error_code"`
}

const maxErrorsToShow = 5

// PrintBatchSummary prints counts, the first failures and hints.
//
//	Summary (host1):
//	  ✓ Succeeded: 72
//	  ⚠ Partial:   1
//	  ✗ Failed:    1
//	  Events:      10412 sent, 3 failed
//
//	Failed plugins:
//	  - malfind [malware] run: tool exited with failure ...
func (f *formatter) PrintBatchSummary(s Summary) error {
	if f.quiet {
		return nil
	}
	if f.Structured() {
		return f.PrintData(s)
	}

	paint := func(c func(string, ...interface{}) string, format string, args ...any) string {
		if f.color {
			return c(format, args...)
		}
		return fmt.Sprintf(format, args...)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\nSummary (%s):\n", s.Dump))
	sb.WriteString(paint(color.GreenString, "  ✓ Succeeded: %d\n", s.Succeeded))
	if s.Partial > 0 {
		sb.WriteString(paint(color.YellowString, "  ⚠ Partial:   %d\n", s.Partial))
	}
	if s.Failed > 0 {
		sb.WriteString(paint(color.RedString, "  ✗ Failed:    %d\n", s.Failed))
	}
	sb.WriteString(fmt.Sprintf("  Events:      %d sent, %d failed\n", s.EventsSent, s.EventsFailed))
	sb.WriteString(fmt.Sprintf("  Elapsed:     %s\n", s.Elapsed.Round(time.Millisecond)))

	if len(s.Errors) > 0 {
		sb.WriteString("\nFailed plugins:\n")
		for i, e := range s.Errors {
			if i >= maxErrorsToShow {
				sb.WriteString(fmt.Sprintf("  ... and %d more (use --output json for full list)\n", len(s.Errors)-maxErrorsToShow))
				break
			}
			sb.WriteString(fmt.Sprintf("  - %s [%s] %s: %s\n", e.Plugin, e.Category, e.Stage, e.Error))
		}

		if hints := collectSuggestions(s.Errors); len(hints) > 0 {
			sb.WriteString("\nSuggestions:\n")
			for _, h := range hints {
				sb.WriteString("  → " + h + "\n")
			}
		}
	}

	_, err := f.stdout.Write([]byte(sb.String()))
	return err
}

var suggestionsByCode = map[string][]string{
	"TOOL_FAILED": {
		"Check the profile matches the dump:  memsift exec -- imageinfo",
	},
	"TOOL_TIMEOUT": {
		"Raise the per-plugin limit:          --tool.timeout 2h",
	},
	"MALFORMED_OUTPUT": {
		"Inspect the raw output file next to the dump's other results",
	},
	"DELIVERY_FAILED": {
		"Check the collector token and index: --sink.token, sink.index",
	},
}

// collectSuggestions returns hints for the distinct codes in order of first
// appearance.
func collectSuggestions(errs []ErrorDetail) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range errs {
		if seen[e.ErrorCode] {
			continue
		}
		seen[e.ErrorCode] = true
		out = append(out, suggestionsByCode[e.ErrorCode]...)
	}
	return out
}
