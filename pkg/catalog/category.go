// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package catalog

import "strings"

// Category is the grouping label stamped on every event produced by a plugin.
type Category string

const (
	// CategoryProcesses covers process listing and per-process metadata plugins.
	CategoryProcesses Category = "processes"

	// CategoryMalware covers hooks, injected code and persistence indicators.
	CategoryMalware Category = "malware"

	// CategoryProcMemory covers VAD and process memory walkers.
	CategoryProcMemory Category = "procmemory"

	// CategoryKernelObjects covers modules, drivers and pool scanners.
	CategoryKernelObjects Category = "kernelobjects"

	// CategoryNetworking covers sockets and connections.
	CategoryNetworking Category = "networking"

	// CategoryRegistry covers hives and credential material stored in them.
	CategoryRegistry Category = "registry"

	// CategoryFilesystem covers MBR and MFT parsers.
	CategoryFilesystem Category = "filesystem"

	// CategoryMisc covers everything else in the predefined catalog.
	CategoryMisc Category = "miscellaneous"

	// CategoryCustom tags selector tokens that match no catalog entry.
	CategoryCustom Category = "custom"
)

// SelectorAll is the reserved selector that expands to the whole catalog.
const SelectorAll = "windows"

// AllCategories returns the predefined categories in catalog order.
// CategoryCustom is not part of the set.
func AllCategories() []Category {
	return []Category{
		CategoryProcesses,
		CategoryMalware,
		CategoryProcMemory,
		CategoryKernelObjects,
		CategoryNetworking,
		CategoryRegistry,
		CategoryFilesystem,
		CategoryMisc,
	}
}

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// IsValid reports whether c is one of the predefined categories.
func (c Category) IsValid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory maps a case-insensitive name to a predefined category.
func ParseCategory(name string) (Category, bool) {
	normalized := Category(strings.ToLower(strings.TrimSpace(name)))
	if normalized.IsValid() {
		return normalized, true
	}
	return "", false
}
