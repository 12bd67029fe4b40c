// Package version holds build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"time"
)

var (
	// Version is the release tag of memsift.
	Version = "dev"
	// Commit is the source revision.
	Commit = "none"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
	// StartDate is when the process started.
	StartDate = time.Now()
)

// Struct is the machine-readable form of the build metadata.
type Struct struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

// Info returns a one-line version string.
func Info() string {
	return fmt.Sprintf("memsift %s (commit: %s, date: %s)", Version, Commit, BuildDate)
}

// Get returns the build metadata.
func Get() Struct {
	return Struct{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
