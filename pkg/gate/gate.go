// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package gate bounds how many tool invocations run at once across
// independent memsift processes.
//
// The semaphore is a counter file guarded by an advisory lock on a sibling
// "<counter>.lock" file. Every read-modify-write happens under that lock,
// so concurrent acquirers serialize. Each slot records the holder's pid and
// acquisition time; holders whose process has exited, or that are older
// than the configured stale window, are pruned on every locked read so a
// crash between acquire and release cannot starve capacity permanently.
package gate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/vulntor/memsift/pkg/retry"
)

const lockRetryDelay = 25 * time.Millisecond

// LivenessFunc reports whether a process with the given pid still exists.
type LivenessFunc func(ctx context.Context, pid int) (bool, error)

// Options configures a Gate.
type Options struct {
	// CounterPath is the shared counter file.
	CounterPath string

	// Capacity is the maximum number of concurrent holders (>= 1).
	Capacity int

	// StaleAfter prunes holders older than this regardless of liveness
	// (0 disables age-based pruning).
	StaleAfter time.Duration

	// Liveness overrides the process existence check. Defaults to gopsutil.
	Liveness LivenessFunc

	// Now overrides the clock.
	Now func() time.Time

	// Logger receives bookkeeping diagnostics.
	Logger *zerolog.Logger
}

// Gate is a cooperative, file-backed counting semaphore.
type Gate struct {
	counterPath string
	lockPath    string
	capacity    int
	staleAfter  time.Duration
	hostname    string
	pid         int
	liveness    LivenessFunc
	now         func() time.Time
	logger      zerolog.Logger
}

// Ticket is proof of admission, handed back to Release.
type Ticket struct {
	ID         string
	AcquiredAt time.Time
	released   bool
}

// New validates opts and returns a Gate. The counter directory is created
// if missing.
func New(opts Options) (*Gate, error) {
	if opts.CounterPath == "" {
		return nil, fmt.Errorf("gate: counter path is required")
	}
	if opts.Capacity < 1 {
		return nil, fmt.Errorf("gate: capacity must be >= 1, got %d", opts.Capacity)
	}
	if err := os.MkdirAll(filepath.Dir(opts.CounterPath), 0o750); err != nil {
		return nil, fmt.Errorf("gate: create counter directory: %w", err)
	}

	hostname, _ := os.Hostname()

	g := &Gate{
		counterPath: opts.CounterPath,
		lockPath:    opts.CounterPath + ".lock",
		capacity:    opts.Capacity,
		staleAfter:  opts.StaleAfter,
		hostname:    hostname,
		pid:         os.Getpid(),
		liveness:    opts.Liveness,
		now:         opts.Now,
	}
	if g.liveness == nil {
		g.liveness = pidExists
	}
	if g.now == nil {
		g.now = time.Now
	}
	if opts.Logger != nil {
		g.logger = *opts.Logger
	} else {
		g.logger = log.With().Str("component", "gate").Logger()
	}
	return g, nil
}

// Capacity returns the configured slot count.
func (g *Gate) Capacity() int {
	return g.capacity
}

// Acquire takes a slot. When the gate is saturated it returns a
// *CapacityError wrapping ErrCapacityExhausted and leaves the counter as it
// was.
func (g *Gate) Acquire(ctx context.Context) (*Ticket, error) {
	var ticket *Ticket
	err := g.withLock(ctx, func(st *State) (bool, error) {
		if len(st.Holders) >= g.capacity {
			return false, &CapacityError{InFlight: len(st.Holders), Capacity: g.capacity}
		}
		h := Holder{
			ID:         uuid.NewString(),
			PID:        g.pid,
			Hostname:   g.hostname,
			AcquiredAt: g.now().UTC(),
		}
		st.Holders = append(st.Holders, h)
		ticket = &Ticket{ID: h.ID, AcquiredAt: h.AcquiredAt}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.Debug().Str("holder", ticket.ID).Msg("slot acquired")
	return ticket, nil
}

// AcquireWithRetry retries Acquire with backoff while the gate is
// saturated. Other errors fail immediately.
func (g *Gate) AcquireWithRetry(ctx context.Context, cfg retry.Config) (*Ticket, error) {
	var ticket *Ticket
	err := retry.Do(ctx, cfg, IsCapacityExhausted, func(ctx context.Context) error {
		t, err := g.Acquire(ctx)
		if err != nil {
			if IsCapacityExhausted(err) {
				g.logger.Info().Err(err).Msg("waiting for a free slot")
			}
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Release frees the slot held by t. Releasing twice is a no-op. A release
// that finds no matching holder is a bookkeeping problem: it is logged and
// the counter is left floored, never pushed below zero.
func (g *Gate) Release(t *Ticket) error {
	if t == nil || t.released {
		return nil
	}

	// Release must succeed even when the batch context is already cancelled.
	err := g.withLock(context.Background(), func(st *State) (bool, error) {
		for i, h := range st.Holders {
			if h.ID == t.ID {
				st.Holders = append(st.Holders[:i], st.Holders[i+1:]...)
				return true, nil
			}
		}
		if len(st.Holders) == 0 {
			g.logger.Error().Str("holder", t.ID).Msg("release with counter already at zero")
		} else {
			g.logger.Warn().Str("holder", t.ID).Int("in_flight", len(st.Holders)).
				Msg("release of unknown holder; slot was already reclaimed")
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	t.released = true
	g.logger.Debug().Str("holder", t.ID).Msg("slot released")
	return nil
}

// Status returns the current state after pruning stale holders.
func (g *Gate) Status(ctx context.Context) (State, error) {
	var snapshot State
	err := g.withLock(ctx, func(st *State) (bool, error) {
		snapshot = State{Count: len(st.Holders), Holders: append([]Holder(nil), st.Holders...)}
		return false, nil
	})
	return snapshot, err
}

// Reset clears every holder. Intended for operators recovering from a
// known-dead fleet; running holders will log an unknown-holder release.
func (g *Gate) Reset(ctx context.Context) (int, error) {
	cleared := 0
	err := g.withLock(ctx, func(st *State) (bool, error) {
		cleared = len(st.Holders)
		st.Holders = nil
		return true, nil
	})
	return cleared, err
}

// withLock runs fn on the pruned state under the exclusive file lock and
// persists the state when fn reports a change or pruning removed holders.
func (g *Gate) withLock(ctx context.Context, fn func(st *State) (bool, error)) error {
	fl := flock.New(g.lockPath)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock gate state: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock gate state: %s not acquired", g.lockPath)
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			g.logger.Warn().Err(err).Msg("unlock gate state")
		}
	}()

	st, err := loadState(g.counterPath)
	if err != nil {
		return err
	}

	pruned := g.prune(ctx, &st)

	changed, fnErr := fn(&st)
	if changed || pruned > 0 {
		if err := saveState(g.counterPath, st); err != nil {
			return err
		}
	}
	return fnErr
}

// prune drops holders whose process is gone or whose age exceeds the stale
// window. Liveness is only checked for holders on this host.
func (g *Gate) prune(ctx context.Context, st *State) int {
	now := g.now()
	kept := st.Holders[:0]
	removed := 0

	for _, h := range st.Holders {
		if reason, stale := g.isStale(ctx, h, now); stale {
			g.logger.Warn().
				Str("holder", h.ID).
				Int("pid", h.PID).
				Time("acquired_at", h.AcquiredAt).
				Str("reason", reason).
				Msg("reclaiming stale slot")
			removed++
			continue
		}
		kept = append(kept, h)
	}

	st.Holders = kept
	st.Count = len(kept)
	return removed
}

func (g *Gate) isStale(ctx context.Context, h Holder, now time.Time) (string, bool) {
	if g.staleAfter > 0 && !h.AcquiredAt.IsZero() && now.Sub(h.AcquiredAt) > g.staleAfter {
		return "expired", true
	}
	if h.PID <= 0 || h.Hostname != g.hostname {
		return "", false
	}
	alive, err := g.liveness(ctx, h.PID)
	if err != nil {
		g.logger.Debug().Err(err).Int("pid", h.PID).Msg("liveness check failed; keeping holder")
		return "", false
	}
	if !alive {
		return "process exited", true
	}
	return "", false
}

func pidExists(ctx context.Context, pid int) (bool, error) {
	return process.PidExistsWithContext(ctx, int32(pid))
}
