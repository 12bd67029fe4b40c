// Package workspace provisions the per-dump output tree.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ObjectsDir holds artifacts extracted by dumping plugins.
const ObjectsDir = "objects"

var objectSubdirs = []string{
	"memdump",
	"procdump",
	"dlldump",
	"kerneldrivers",
	"certs",
	"files",
	"registry",
	"yara",
}

// Layout describes a prepared dump directory.
type Layout struct {
	Root     string // absolute output root
	DumpName string
	Dir      string // <Root>/<DumpName>, raw plugin output lands here
}

// Objects returns the path of an object subdirectory.
func (l Layout) Objects(sub string) string {
	return filepath.Join(l.Dir, ObjectsDir, sub)
}

// DumpName derives the dump's short name: the base name without its final
// extension. A name that is only an extension (".raw") is kept whole.
func DumpName(dumpPath string) string {
	base := filepath.Base(strings.TrimRight(dumpPath, `/\`))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// PrepareDump creates <root>/<dumpName> and its object subdirectories. It
// is safe to call repeatedly.
func PrepareDump(root, dumpPath string) (Layout, error) {
	if root == "" {
		return Layout{}, errors.New("output root is required")
	}
	name := DumpName(dumpPath)
	if name == "" {
		return Layout{}, fmt.Errorf("cannot derive dump name from %q", dumpPath)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve output root: %w", err)
	}

	l := Layout{Root: absRoot, DumpName: name, Dir: filepath.Join(absRoot, name)}
	for _, sub := range objectSubdirs {
		if err := os.MkdirAll(l.Objects(sub), 0o750); err != nil {
			return Layout{}, fmt.Errorf("create output subdir %q: %w", sub, err)
		}
	}
	return l, nil
}
