// Package retry implements bounded retries with exponential backoff.
//
// It is used for contention that is expected to clear on its own, such as
// waiting for a concurrency slot held by another memsift process:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), gate.IsCapacityExhausted, func(ctx context.Context) error {
//	    ticket, err = g.Acquire(ctx)
//	    return err
//	})
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config defines retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts (0 and 1 both mean a single try).
	MaxAttempts int `koanf:"max_attempts" validate:"gte=0"`

	// InitialWait is the wait before the second attempt.
	InitialWait time.Duration `koanf:"initial_wait" validate:"gte=0"`

	// MaxWait caps the wait between attempts (0 = uncapped).
	MaxWait time.Duration `koanf:"max_wait" validate:"gte=0"`

	// Multiplier for exponential backoff (must be >= 1.0).
	Multiplier float64 `koanf:"multiplier"`

	// Jitter adds up to ±25% randomness to every wait.
	Jitter bool `koanf:"jitter"`
}

// DefaultConfig returns the defaults used for capacity contention:
// 5 attempts, 2s initial wait doubling up to 30s, with jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		InitialWait: 2 * time.Second,
		MaxWait:     30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// NoRetry returns a config that tries exactly once.
func NoRetry() Config {
	return Config{MaxAttempts: 1}
}

// Validate checks if the config is usable.
func (c Config) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("MaxAttempts must be >= 0, got %d", c.MaxAttempts)
	}
	if c.MaxAttempts <= 1 {
		return nil
	}
	if c.InitialWait < 0 {
		return fmt.Errorf("InitialWait must be >= 0, got %v", c.InitialWait)
	}
	if c.MaxWait < 0 {
		return fmt.Errorf("MaxWait must be >= 0, got %v", c.MaxWait)
	}
	if c.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0, got %f", c.Multiplier)
	}
	if c.MaxWait > 0 && c.InitialWait > c.MaxWait {
		return fmt.Errorf("InitialWait (%v) must be <= MaxWait (%v)", c.InitialWait, c.MaxWait)
	}
	return nil
}

// Wait computes the backoff before the given retry (1-based).
func (c Config) Wait(retry int) time.Duration {
	if retry <= 0 {
		return 0
	}

	wait := float64(c.InitialWait) * math.Pow(c.Multiplier, float64(retry-1))
	if c.MaxWait > 0 && wait > float64(c.MaxWait) {
		wait = float64(c.MaxWait)
	}

	if c.Jitter {
		jitterRange := wait * 0.25
		wait += (rand.Float64() * 2 * jitterRange) - jitterRange
	}
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

// Func is an operation that may fail and should be retried.
type Func func(ctx context.Context) error

// Do runs fn until it succeeds, returns an error rejected by retryable, or
// the attempts run out. The last error is returned wrapped when attempts
// are exhausted so callers can still match it with errors.Is.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, fn Func) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}

	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if retryable == nil || !retryable(err) {
			return err
		}

		if attempt < attempts-1 {
			select {
			case <-time.After(cfg.Wait(attempt + 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("max attempts (%d) exceeded: %w", attempts, lastErr)
}
