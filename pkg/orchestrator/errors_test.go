package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/memsift/pkg/gate"
	"github.com/vulntor/memsift/pkg/runner"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"usage", usageError("profile is required"), CodeUsage},
		{"run lock", &gate.RunLockError{Path: "/tmp/dumpprocess.lock"}, CodeRunLocked},
		{"capacity", fmt.Errorf("retry: %w", &gate.CapacityError{InFlight: 2, Capacity: 2}), CodeCapacityExhausted},
		{"exit", &runner.ExitError{Plugin: "malfind", ExitCode: 1}, CodeToolFailed},
		{"start", fmt.Errorf("%w: no such file", runner.ErrToolStart), CodeToolFailed},
		{"timeout", fmt.Errorf("%w after 30m0s", runner.ErrToolTimeout), CodeToolTimeout},
		{"malformed", fmt.Errorf("%w: missing columns", runner.ErrMalformedOutput), CodeMalformedOutput},
		{"delivery", &DeliveryError{Plugin: "pslist", Failed: 1, Attempted: 3}, CodeDeliveryFailed},
		{"explicit", WithErrorCode(errors.New("disk full"), CodeInternal), CodeInternal},
		{"cancelled", context.Canceled, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestWithErrorCode(t *testing.T) {
	require.NoError(t, WithErrorCode(nil, CodeUsage))

	base := errors.New("boom")
	err := WithErrorCode(base, CodeToolFailed)
	require.ErrorIs(t, err, base)
	require.Equal(t, "boom", err.Error())
	require.Equal(t, CodeToolFailed, ErrorCode(err))
}

func TestExitCodeAndSuggestions(t *testing.T) {
	require.Zero(t, ExitCode(nil))
	require.Nil(t, Suggestions(nil))

	for _, err := range []error{
		usageError("x"),
		&gate.RunLockError{Path: "p"},
		&gate.CapacityError{Capacity: 2, InFlight: 2},
		errors.New("other"),
	} {
		require.Equal(t, 1, ExitCode(err))
		require.NotEmpty(t, Suggestions(err))
	}
}

func TestDeliveryError(t *testing.T) {
	err := &DeliveryError{Plugin: "pslist", Failed: 2, Attempted: 5}
	require.Equal(t, "plugin pslist: 2 of 5 events not delivered", err.Error())
}

func TestSuggestions_CapacityResetNeedsForce(t *testing.T) {
	hints := Suggestions(&gate.CapacityError{Capacity: 2, InFlight: 2})
	require.Contains(t, hints, "Clear leaked slots:         memsift gate reset --force")
}
