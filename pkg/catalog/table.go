// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package catalog

import (
	"fmt"
	"strings"
)

// Group is one category of the catalog with its plugins in declared order.
// A plugin entry is a full argument string such as "svcscan --verbose".
type Group struct {
	Category Category `yaml:"name" json:"name"`
	Plugins  []string `yaml:"plugins" json:"plugins"`
}

// Table is an ordered plugin catalog. Order matters: it drives both the
// expansion order of category selectors and first-match resolution.
type Table []Group

// Entry is a resolved plugin with the category its events are tagged with.
type Entry struct {
	Plugin   string   `json:"plugin" yaml:"plugin"`
	Category Category `json:"category" yaml:"category"`
}

// Name returns the primary plugin name, the first token of Plugin.
func (e Entry) Name() string {
	fields := strings.Fields(e.Plugin)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Lookup returns the plugins of the given category.
func (t Table) Lookup(c Category) ([]string, bool) {
	for _, g := range t {
		if g.Category == c {
			return g.Plugins, true
		}
	}
	return nil, false
}

// Len returns the total number of plugin entries across all groups.
func (t Table) Len() int {
	n := 0
	for _, g := range t {
		n += len(g.Plugins)
	}
	return n
}

// Validate checks that every group names a predefined category, no category
// is declared twice and no plugin entry appears in more than one place.
func (t Table) Validate() error {
	seenCategory := make(map[Category]bool, len(t))
	seenPlugin := make(map[string]Category)

	for _, g := range t {
		if !g.Category.IsValid() {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, g.Category)
		}
		if seenCategory[g.Category] {
			return fmt.Errorf("%w: category %q declared twice", ErrInvalidTable, g.Category)
		}
		seenCategory[g.Category] = true

		for _, p := range g.Plugins {
			p = strings.TrimSpace(p)
			if p == "" {
				return fmt.Errorf("%w: empty plugin entry in %q", ErrInvalidTable, g.Category)
			}
			if prev, dup := seenPlugin[p]; dup {
				return fmt.Errorf("%w: plugin %q listed in %q and %q", ErrInvalidTable, p, prev, g.Category)
			}
			seenPlugin[p] = g.Category
		}
	}
	return nil
}

// DefaultTable returns the built-in Volatility 2 Windows catalog.
func DefaultTable() Table {
	return Table{
		{Category: CategoryProcesses, Plugins: []string{
			"pslist", "psscan", "cmdline", "dlllist", "handles", "getsids", "cmdscan",
			"consoles", "privs", "envars", "verinfo", "psxview", "ldrmodules", "joblinks", "sessions",
		}},
		{Category: CategoryMalware, Plugins: []string{
			"svcscan --verbose", "getservicesids", "malfind", "apihooks", "idt --verbose",
			"gdt", "threads", "callbacks", "devicetree", "timers",
		}},
		{Category: CategoryProcMemory, Plugins: []string{
			"vadinfo", "vadwalk", "iehistory",
		}},
		{Category: CategoryKernelObjects, Plugins: []string{
			"modules", "modscan", "ssdt", "driverscan", "driverirp", "drivermodule", "filescan",
			"mutantscan --silent", "symlinkscan", "thrdscan", "unloadedmodules", "atomscan",
			"atoms", "bigpools", "objtypescan",
		}},
		{Category: CategoryNetworking, Plugins: []string{
			"netscan", "sockscan", "sockets", "connscan", "connections",
		}},
		{Category: CategoryRegistry, Plugins: []string{
			"hivescan", "hivelist", "hashdump", "lsadump", "userassist", "shellbags",
			"shimcache", "amcache", "cachedump",
		}},
		{Category: CategoryFilesystem, Plugins: []string{
			"mbrparser -C", "mftparser --no-check",
		}},
		{Category: CategoryMisc, Plugins: []string{
			"imageinfo", "kdbgscan", "kpcrscan", "messagehooks", "bioskbd", "auditpol",
			"patcher", "pagecheck", "timeliner", "clipboard", "editbox", "deskscan",
			"eventhooks", "gahti", "gditimers",
		}},
	}
}
