// Package stringutil has small helpers for log and terminal text.
package stringutil

import "strings"

// Ellipsis flattens s to a single trimmed line and cuts it to maxLength,
// ending with "..." when there is room for it.
func Ellipsis(s string, maxLength int) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")

	if maxLength < 0 {
		return ""
	}
	if len(s) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return s[:maxLength]
	}
	return s[:maxLength-3] + "..."
}

// CollapseFields rewrites each line of s as its whitespace-separated fields
// joined by commas. Blank lines become empty lines; line order is kept.
func CollapseFields(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), ",")
	}
	return strings.Join(lines, "\n")
}
