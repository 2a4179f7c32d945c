// Package retry implements retries with jittered exponential backoff, used to
// wait for a storage backend to become reachable.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

var (
	// ErrInvalidPolicyParam indicates that one or more Backoff parameters are
	// invalid (e.g., fall outside accepted intervals).
	ErrInvalidPolicyParam = errors.New("invalid policy param")
	// ErrAborted indicates that an attempt returned an error marked with
	// Permanent.
	ErrAborted = errors.New("aborted")
	// ErrExhausted indicates that every attempt in the budget failed.
	ErrExhausted = errors.New("too many attempts")
)

// Func is a single attempt. A nil return ends the retry loop successfully, an
// error wrapped with Permanent ends it unsuccessfully, and any other error is
// retried.
type Func func(ctx context.Context) error

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// Backoff runs attempts separated by jittered, exponentially growing delays.
// Multiple goroutines may use a given Backoff concurrently.
type Backoff struct {
	// Base is the delay after the first failed attempt.
	Base time.Duration
	// Growth multiplies the delay after each further failure. Must be at
	// least 1.
	Growth float64
	// Jitter is the fractional amplitude of the random jitter applied to each
	// delay. Must be in [0, 1].
	Jitter float64
	// wait can be overridden in tests.
	wait func(context.Context, time.Duration) error
}

func (b *Backoff) validate() error {
	switch {
	case b.Growth < 1.0:
		return fmt.Errorf("delay growth factor %v is less than 1: %w", b.Growth, ErrInvalidPolicyParam)
	case b.Jitter < 0.0 || b.Jitter > 1.0:
		return fmt.Errorf("delay jitter amplitude %v is outside [0, 1]: %w", b.Jitter, ErrInvalidPolicyParam)
	}
	return nil
}

// jittered scales d by a random factor in [1-j, 1+j).
func jittered(d time.Duration, j float64) time.Duration {
	return time.Duration(float64(d) * (1.0 + j*(2*rand.Float64()-1.0)))
}

func waitContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn up to attempts times, until it succeeds or fails permanently.
//
// Errors returned wrap ErrAborted together with the permanent error,
// ErrExhausted together with the last attempt's error, or the context error
// if ctx is done while waiting for the next attempt.
func (b *Backoff) Do(ctx context.Context, fn Func, attempts int) error {
	if err := b.validate(); err != nil {
		return err
	}
	wait := b.wait
	if wait == nil {
		wait = waitContext
	}
	delay := b.Base
	var last error
	for i := 1; i <= attempts; i++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		var perr *permanentError
		if errors.As(last, &perr) {
			return fmt.Errorf("%w: %w", ErrAborted, perr.err)
		}
		if i == attempts {
			break
		}
		if err := wait(ctx, jittered(delay, b.Jitter)); err != nil {
			return fmt.Errorf("interrupted after %d attempts: %w", i, err)
		}
		delay = time.Duration(float64(delay) * b.Growth)
	}
	if last == nil {
		return ErrExhausted
	}
	return fmt.Errorf("%w: %w", ErrExhausted, last)
}
