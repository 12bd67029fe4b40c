// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package catalog

import (
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownCategory is returned when a catalog file names a category
	// outside the predefined set.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrInvalidTable is returned when a catalog table is structurally invalid.
	ErrInvalidTable = errors.New("invalid catalog table")

	// ErrUnsupportedVersion is returned when a catalog file declares a schema
	// version this build cannot read.
	ErrUnsupportedVersion = errors.New("unsupported catalog version")
)

// SupportedVersions is the semver constraint catalog files must satisfy.
const SupportedVersions = "^1"

// File is the on-disk catalog document.
//
//	version: "1.0.0"
//	categories:
//	  - name: processes
//	    plugins: [pslist, psscan]
type File struct {
	Version    string  `yaml:"version"`
	Categories []Group `yaml:"categories"`
}

// LoadFile reads a catalog document from path and returns its table.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document and validates it.
func Parse(data []byte) (Table, error) {
	var doc File
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}

	if err := checkVersion(doc.Version); err != nil {
		return nil, err
	}

	table := make(Table, 0, len(doc.Categories))
	for _, g := range doc.Categories {
		c, ok := ParseCategory(g.Category.String())
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, g.Category)
		}
		table = append(table, Group{Category: c, Plugins: g.Plugins})
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func checkVersion(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: version is required", ErrUnsupportedVersion)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedVersion, raw, err)
	}
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return fmt.Errorf("parse catalog constraint: %w", err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedVersion, v, SupportedVersions)
	}
	return nil
}
