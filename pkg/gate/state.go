// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package gate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Holder is one admitted invocation occupying a slot.
// PID 0 marks a holder inherited from a legacy bare-integer counter file.
type Holder struct {
	ID         string    `json:"id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// State is the persisted semaphore: Count is always len(Holders) once
// written by this package.
type State struct {
	Count   int      `json:"count"`
	Holders []Holder `json:"holders"`
}

// loadState reads the counter file. A missing or empty file is an empty
// state. A bare non-negative integer is accepted and expanded into
// anonymous holders stamped with the file modification time.
func loadState(path string) (State, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("stat counter file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, fmt.Errorf("read counter file: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return State{}, nil
	}

	if n, convErr := strconv.Atoi(string(data)); convErr == nil {
		if n < 0 {
			n = 0
		}
		st := State{Count: n, Holders: make([]Holder, 0, n)}
		for i := 0; i < n; i++ {
			st.Holders = append(st.Holders, Holder{
				ID:         "legacy-" + strconv.Itoa(i),
				AcquiredAt: info.ModTime(),
			})
		}
		return st, nil
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	st.Count = len(st.Holders)
	return st, nil
}

// saveState replaces the counter file atomically.
func saveState(path string, st State) error {
	st.Count = len(st.Holders)
	if st.Holders == nil {
		st.Holders = []Holder{}
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode gate state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp counter file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write counter file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close counter file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace counter file: %w", err)
	}
	return nil
}
