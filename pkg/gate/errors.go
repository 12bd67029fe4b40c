// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package gate

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExhausted is returned when every concurrency slot is taken.
	// The counter is left untouched; callers back off and retry.
	ErrCapacityExhausted = errors.New("concurrency capacity exhausted")

	// ErrRunLockHeld is returned when another batch holds the run-lock.
	ErrRunLockHeld = errors.New("run lock held by another process")

	// ErrCorruptState is returned when the counter file cannot be decoded.
	ErrCorruptState = errors.New("corrupt gate state")
)

// CapacityError carries the counter snapshot that caused a rejection.
type CapacityError struct {
	InFlight int
	Capacity int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d/%d slots in use", ErrCapacityExhausted, e.InFlight, e.Capacity)
}

// Unwrap returns the underlying error.
func (e *CapacityError) Unwrap() error {
	return ErrCapacityExhausted
}

// RunLockError names the lock file that could not be taken.
type RunLockError struct {
	Path string
}

// Error implements the error interface.
func (e *RunLockError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRunLockHeld, e.Path)
}

// Unwrap returns the underlying error.
func (e *RunLockError) Unwrap() error {
	return ErrRunLockHeld
}

// IsCapacityExhausted checks if an error is or wraps ErrCapacityExhausted.
func IsCapacityExhausted(err error) bool {
	return errors.Is(err, ErrCapacityExhausted)
}

// IsRunLockHeld checks if an error is or wraps ErrRunLockHeld.
func IsRunLockHeld(err error) bool {
	return errors.Is(err, ErrRunLockHeld)
}
