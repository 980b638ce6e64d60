// Package retry provides a shared, context-aware retry engine with
// configurable backoff. The classification client and the push channel's
// redial loop both sit on top of it so backoff behaviour is tuned in one
// place.
//
// Usage:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.call(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy selects the backoff algorithm.
type Strategy int

const (
	// Exponential doubles the delay each attempt: initDelay * 2^attempt.
	Exponential Strategy = iota
	// Constant uses the same delay between every attempt.
	Constant
)

// Config controls retry behaviour.
type Config struct {
	MaxAttempts int           // Total attempts including the first. 0 means no-op.
	InitDelay   time.Duration // Base delay before the first retry.
	MaxDelay    time.Duration // Upper bound on any single delay.
	Strategy    Strategy      // Backoff algorithm.
	Jitter      bool          // Add ±25% random jitter to each delay.
}

// DefaultConfig returns 3 attempts with exponential backoff from 500ms to
// 10s, jitter enabled. Suitable for short network calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		InitDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Strategy:    Exponential,
		Jitter:      true,
	}
}

// StopError wraps an error to signal that retrying must stop immediately.
// Use it for permanent failures such as 4xx responses.
type StopError struct {
	Err error
}

func (e *StopError) Error() string { return e.Err.Error() }
func (e *StopError) Unwrap() error { return e.Err }

// Stop wraps err so Do returns it without further attempts.
func Stop(err error) error {
	return &StopError{Err: err}
}

// Do runs fn until it succeeds, a StopError is returned, the attempt budget
// is exhausted, or ctx is done. The last error is returned on failure.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var stop *StopError
		if errors.As(lastErr, &stop) {
			return stop.Err
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Delay(cfg, attempt)):
		}
	}
	return lastErr
}

// Delay computes the backoff delay for a zero-based attempt number.
func Delay(cfg Config, attempt int) time.Duration {
	var d time.Duration
	switch cfg.Strategy {
	case Constant:
		d = cfg.InitDelay
	default:
		mult := math.Pow(2, float64(attempt))
		d = time.Duration(float64(cfg.InitDelay) * mult)
	}

	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if d < 0 {
		d = cfg.MaxDelay
	}

	if cfg.Jitter && d > 0 {
		// ±25% jitter
		frac := 0.75 + rand.Float64()*0.5
		d = time.Duration(float64(d) * frac)
	}
	return d
}
