package orchestrator

import (
	"errors"
	"fmt"

	"github.com/vulntor/memsift/pkg/gate"
	"github.com/vulntor/memsift/pkg/runner"
)

// ErrUsage reports missing or malformed batch input.
var ErrUsage = errors.New("usage error")

// Error codes used by the CLI summary and suggestion system.
const (
	CodeUsage             = "USAGE"
	CodeRunLocked         = "RUN_LOCKED"
	CodeCapacityExhausted = "CAPACITY_EXHAUSTED"
	CodeToolFailed        = "TOOL_FAILED"
	CodeToolTimeout       = "TOOL_TIMEOUT"
	CodeMalformedOutput   = "MALFORMED_OUTPUT"
	CodeDeliveryFailed    = "DELIVERY_FAILED"
	CodeInternal          = "INTERNAL"
)

// DeliveryError records that some of a plugin's events were not accepted
// by the collector.
type DeliveryError struct {
	Plugin    string
	Failed    int
	Attempted int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("plugin %s: %d of %d events not delivered", e.Plugin, e.Failed, e.Attempted)
}

type codedError struct {
	error
	code string
}

func (e *codedError) Unwrap() error { return e.error }
func (e *codedError) Code() string  { return e.code }

// WithErrorCode wraps err with an explicit code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{error: err, code: code}
}

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// ErrorCode classifies err into one of the Code* constants.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	var delivery *DeliveryError
	switch {
	case errors.Is(err, ErrUsage):
		return CodeUsage
	case gate.IsRunLockHeld(err):
		return CodeRunLocked
	case gate.IsCapacityExhausted(err):
		return CodeCapacityExhausted
	case errors.Is(err, runner.ErrToolTimeout):
		return CodeToolTimeout
	case errors.Is(err, runner.ErrToolFailed), errors.Is(err, runner.ErrToolStart):
		return CodeToolFailed
	case runner.IsMalformedOutput(err):
		return CodeMalformedOutput
	case errors.As(err, &delivery):
		return CodeDeliveryFailed
	}
	return CodeInternal
}

// ExitCode maps a top-level batch error to the process exit status.
// Per-plugin failures never reach here, so any error exits 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// Suggestions returns CLI hints for a top-level error.
func Suggestions(err error) []string {
	switch ErrorCode(err) {
	case "":
		return nil
	case CodeUsage:
		return []string{
			"Run a category:             memsift host1.raw Win7SP1x64 processes",
			"Run the whole catalog:      memsift host1.raw Win7SP1x64 windows",
			"Run specific plugins:       memsift host1.raw Win7SP1x64 \"pslist,svcscan --verbose\"",
		}
	case CodeRunLocked:
		return []string{
			"Another batch is running; wait for it to finish",
			"Inspect the gate:           memsift gate status",
		}
	case CodeCapacityExhausted:
		return []string{
			"Inspect slot holders:       memsift gate status",
			"Clear leaked slots:         memsift gate reset --force",
		}
	default:
		return []string{
			"Retry with debug logs:      memsift <dump> <profile> <selector> --debug",
		}
	}
}
