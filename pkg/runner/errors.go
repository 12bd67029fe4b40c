package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrToolStart is returned when the tool process cannot be started.
	ErrToolStart = errors.New("tool failed to start")

	// ErrToolFailed is returned when the tool exits with a non-zero status.
	ErrToolFailed = errors.New("tool exited with failure")

	// ErrToolTimeout is returned when the tool exceeds its time budget.
	ErrToolTimeout = errors.New("tool timed out")

	// ErrMalformedOutput is returned when tool output is not a JSON table.
	ErrMalformedOutput = errors.New("malformed tool output")

	// ErrInvalidInvocation is returned for invocations missing required fields
	// or naming a plugin that would resolve outside the output directory.
	ErrInvalidInvocation = errors.New("invalid invocation")
)

// ExitError describes a non-zero tool exit.
type ExitError struct {
	Plugin   string
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: plugin %s exit status %d: %s", ErrToolFailed, e.Plugin, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s: plugin %s exit status %d", ErrToolFailed, e.Plugin, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return ErrToolFailed
}

// IsMalformedOutput checks if an error is or wraps ErrMalformedOutput.
func IsMalformedOutput(err error) bool {
	return errors.Is(err, ErrMalformedOutput)
}
