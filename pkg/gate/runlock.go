// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package gate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock is the exclusive, non-blocking lock that keeps two batches from
// writing the same output tree at once.
type RunLock struct {
	fl *flock.Flock
}

// TryRunLock takes the run-lock at path without waiting. When another
// process holds it, a *RunLockError wrapping ErrRunLockHeld is returned.
func TryRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create run lock directory: %w", err)
	}

	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", path, err)
	}
	if !ok {
		return nil, &RunLockError{Path: path}
	}
	return &RunLock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *RunLock) Path() string {
	return l.fl.Path()
}

// Release drops the run-lock. Safe to call more than once.
func (l *RunLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
