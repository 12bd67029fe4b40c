// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package format renders command output as tables, JSON or YAML.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// OutputMode selects the output encoding.
type OutputMode string

const (
	ModeTable OutputMode = "table"
	ModeJSON  OutputMode = "json"
	ModeYAML  OutputMode = "yaml"
)

// Formatter provides consistent output across commands.
type Formatter interface {
	// PrintData writes data as JSON or YAML in structured modes. In table
	// mode it falls back to YAML, which reads well in a terminal.
	PrintData(data any) error
	PrintJSON(data any) error
	PrintTable(headers []string, rows [][]string) error
	PrintSummary(message string) error
	PrintError(err error, code string, suggestions []string) error
	PrintBatchSummary(s Summary) error
	IsJSON() bool
	Structured() bool
	Color() bool
}

type formatter struct {
	stdout io.Writer
	stderr io.Writer
	mode   OutputMode
	quiet  bool
	color  bool
}

// New creates a Formatter.
func New(stdout, stderr io.Writer, mode OutputMode, quiet, color bool) Formatter {
	return &formatter{stdout: stdout, stderr: stderr, mode: mode, quiet: quiet, color: color}
}

func (f *formatter) IsJSON() bool     { return f.mode == ModeJSON }
func (f *formatter) Structured() bool { return f.mode == ModeJSON || f.mode == ModeYAML }
func (f *formatter) Color() bool      { return f.color }

func (f *formatter) PrintJSON(data any) error {
	enc := json.NewEncoder(f.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (f *formatter) printYAML(data any) error {
	enc := yaml.NewEncoder(f.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func (f *formatter) PrintData(data any) error {
	if f.mode == ModeJSON {
		return f.PrintJSON(data)
	}
	return f.printYAML(data)
}

func (f *formatter) PrintTable(headers []string, rows [][]string) error {
	if f.Structured() {
		items := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			item := make(map[string]string, len(headers))
			for i, h := range headers {
				if i < len(row) {
					item[strings.ToLower(h)] = row[i]
				}
			}
			items = append(items, item)
		}
		return f.PrintData(items)
	}

	w := tabwriter.NewWriter(f.stdout, 0, 0, 2, ' ', 0)
	header := make([]string, len(headers))
	for i, h := range headers {
		header[i] = strings.ToUpper(h)
		if f.color {
			header[i] = color.New(color.Bold).Sprint(header[i])
		}
	}
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (f *formatter) PrintSummary(message string) error {
	if f.quiet {
		return nil
	}
	if f.Structured() {
		_, err := fmt.Fprintln(f.stderr, message)
		return err
	}
	if f.color {
		_, err := color.New(color.FgGreen).Fprintln(f.stdout, message)
		return err
	}
	_, err := fmt.Fprintln(f.stdout, message)
	return err
}

// PrintError writes err to stderr, or an error object to stdout in
// structured modes.
func (f *formatter) PrintError(err error, code string, suggestions []string) error {
	if err == nil {
		return nil
	}
	if f.Structured() {
		return f.PrintData(map[string]any{
			"success":    false,
			"error":      err.Error(),
			"error_code": code,
		})
	}

	var sb strings.Builder
	msg := fmt.Sprintf("Error: %v", err)
	if f.color {
		msg = color.RedString("%s", msg)
	}
	sb.WriteString(msg + "\n")
	if len(suggestions) > 0 && !f.quiet {
		sb.WriteString("\nSuggestions:\n")
		for _, s := range suggestions {
			sb.WriteString("  → " + s + "\n")
		}
	}
	_, werr := io.WriteString(f.stderr, sb.String())
	return werr
}

// ValidateMode checks an --output value.
func ValidateMode(mode string) error {
	switch OutputMode(strings.ToLower(mode)) {
	case ModeJSON, ModeTable, ModeYAML:
		return nil
	default:
		return fmt.Errorf("invalid output mode: %s (must be 'table', 'json' or 'yaml')", mode)
	}
}

// ParseMode converts a string to OutputMode, defaulting to table.
func ParseMode(mode string) OutputMode {
	switch strings.ToLower(mode) {
	case "json":
		return ModeJSON
	case "yaml", "yml":
		return ModeYAML
	default:
		return ModeTable
	}
}
