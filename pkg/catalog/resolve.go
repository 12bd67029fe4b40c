// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package catalog

import "strings"

// Resolve expands a selector into the ordered list of plugins to run.
//
// A selector is either the reserved keyword "windows" (whole catalog), a
// category name (matched case-insensitively), or a comma-separated list of
// plugin tokens. Each plugin token resolves to exactly one Entry; tokens
// that match no catalog entry are tagged CategoryCustom and kept verbatim.
func Resolve(selector string, table Table) []Entry {
	selector = strings.TrimSpace(selector)

	if strings.EqualFold(selector, SelectorAll) {
		entries := make([]Entry, 0, table.Len())
		for _, g := range table {
			entries = append(entries, groupEntries(g)...)
		}
		return entries
	}

	if c, ok := ParseCategory(selector); ok {
		if plugins, ok := table.Lookup(c); ok {
			return groupEntries(Group{Category: c, Plugins: plugins})
		}
	}

	var entries []Entry
	for _, token := range strings.Split(selector, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		entries = append(entries, Entry{Plugin: token, Category: Match(token, table)})
	}
	return entries
}

// Match returns the category of the first catalog entry that the token
// matches, or CategoryCustom. A token matches an entry when they are equal,
// when the entry is a whitespace-delimited prefix of the token
// ("pslist -p 4" matches "pslist"), or when the token is a
// whitespace-delimited prefix of the entry ("svcscan" matches
// "svcscan --verbose").
func Match(token string, table Table) Category {
	token = strings.TrimSpace(token)
	if token == "" {
		return CategoryCustom
	}
	for _, g := range table {
		for _, p := range g.Plugins {
			if tokensMatch(token, p) {
				return g.Category
			}
		}
	}
	return CategoryCustom
}

func groupEntries(g Group) []Entry {
	entries := make([]Entry, 0, len(g.Plugins))
	for _, p := range g.Plugins {
		entries = append(entries, Entry{Plugin: p, Category: g.Category})
	}
	return entries
}

func tokensMatch(token, entry string) bool {
	a := strings.Fields(token)
	b := strings.Fields(entry)
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	for i := range short {
		if short[i] != long[i] {
			return false
		}
	}
	return true
}
