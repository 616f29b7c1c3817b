// Package retry provides exponential backoff primitives shared by the model
// invocation policy and the persistence layer.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Backoff describes an exponential delay sequence: Initial * Multiplier^(attempt-1), capped at Max.
type Backoff struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultBackoff returns the policy used when configuration leaves fields unset.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    1 * time.Second,
		Multiplier: 2.0,
		Max:        8 * time.Second,
	}
}

// Normalize fills unset or invalid fields with defaults.
func (b Backoff) Normalize() Backoff {
	def := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Multiplier < 1.0 {
		b.Multiplier = def.Multiplier
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	return b
}

// Delay returns the wait before retry number attempt (1-based: the delay after the first failure is Delay(1)).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt-1))
	if delay > float64(b.Max) || math.IsInf(delay, 0) {
		return b.Max
	}
	return time.Duration(delay)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type permanentError struct {
	err error
}

func (p permanentError) Error() string { return p.err.Error() }

func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do runs fn up to attempts times, sleeping with b between failures. It stops early when ctx
// ends or fn returns a Permanent error.
func Do(ctx context.Context, attempts int, b Backoff, sleep Sleeper, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		var perm permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, b.Delay(attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}
