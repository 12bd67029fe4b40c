// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllCategories(t *testing.T) {
	categories := AllCategories()
	require.Len(t, categories, 8)
	require.NotContains(t, categories, CategoryCustom)
	require.Equal(t, CategoryProcesses, categories[0])
	require.Equal(t, CategoryMisc, categories[7])
}

func TestCategory_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		want     bool
	}{
		{"processes", CategoryProcesses, true},
		{"networking", CategoryNetworking, true},
		{"custom is not predefined", CategoryCustom, false},
		{"empty", Category(""), false},
		{"case sensitive", Category("Processes"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.category.IsValid())
		})
	}
}

func TestParseCategory(t *testing.T) {
	c, ok := ParseCategory("REGISTRY")
	require.True(t, ok)
	require.Equal(t, CategoryRegistry, c)

	c, ok = ParseCategory(" miscellaneous ")
	require.True(t, ok)
	require.Equal(t, CategoryMisc, c)

	for _, name := range []string{"yara", "", "custom"} {
		_, ok = ParseCategory(name)
		require.False(t, ok, name)
	}
}

func TestTable_Lookup(t *testing.T) {
	table := Table{{Category: CategoryNetworking, Plugins: []string{"netscan"}}}

	plugins, ok := table.Lookup(CategoryNetworking)
	require.True(t, ok)
	require.Equal(t, []string{"netscan"}, plugins)

	_, ok = table.Lookup(CategoryRegistry)
	require.False(t, ok)
}

func TestDefaultTable_EveryPluginInExactlyOneCategory(t *testing.T) {
	table := DefaultTable()
	require.NoError(t, table.Validate())
	require.Len(t, table, len(AllCategories()))
}

func TestTable_ValidateRejectsDuplicates(t *testing.T) {
	table := Table{
		{Category: CategoryProcesses, Plugins: []string{"pslist"}},
		{Category: CategoryMalware, Plugins: []string{"pslist"}},
	}
	require.ErrorIs(t, table.Validate(), ErrInvalidTable)

	table = Table{
		{Category: CategoryProcesses, Plugins: []string{"pslist"}},
		{Category: CategoryProcesses, Plugins: []string{"psscan"}},
	}
	require.ErrorIs(t, table.Validate(), ErrInvalidTable)

	table = Table{{Category: CategoryCustom, Plugins: []string{"x"}}}
	require.ErrorIs(t, table.Validate(), ErrUnknownCategory)
}

func TestParse(t *testing.T) {
	doc := []byte(`
version: "1.2.0"
categories:
  - name: Networking
    plugins: [netscan, "sockets"]
  - name: processes
    plugins:
      - pslist
      - "handles -t Key"
`)
	table, err := Parse(doc)
	require.NoError(t, err)
	require.Len(t, table, 2)
	require.Equal(t, CategoryNetworking, table[0].Category)
	require.Equal(t, []string{"pslist", "handles -t Key"}, table[1].Plugins)

	entries := Resolve("handles", table)
	require.Equal(t, []Entry{{Plugin: "handles", Category: CategoryProcesses}}, entries)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		err  error
	}{
		{"missing version", "categories: []", ErrUnsupportedVersion},
		{"major too new", "version: 2.0.0\ncategories: []", ErrUnsupportedVersion},
		{"not semver", "version: banana\ncategories: []", ErrUnsupportedVersion},
		{"unknown category", "version: 1.0.0\ncategories:\n  - name: yara\n    plugins: [yarascan]", ErrUnknownCategory},
		{"bad yaml", "version: [", ErrInvalidTable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.ErrorIs(t, err, tt.err)
		})
	}
}
