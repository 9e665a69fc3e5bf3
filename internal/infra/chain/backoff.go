package chain

import (
	"context"
	"errors"
	"math"
	"time"
)

var errNoAttempts = errors.New("retries disabled")

// ExponentialBackoff paces reconnection attempts of an event source.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultBackoff returns 2s, 4s, 8s, 16s, 32s (max 60s).
func DefaultBackoff() ExponentialBackoff {
	return ExponentialBackoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		MaxAttempts:  5,
	}
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (b ExponentialBackoff) GetDelay(attempt int) time.Duration {
	delay := float64(b.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(b.MaxDelay) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry checks the attempt (0-indexed) is within MaxAttempts.
func (b ExponentialBackoff) ShouldRetry(attempt int) bool {
	return attempt < b.MaxAttempts
}

// Retry calls fn until it succeeds, attempts are exhausted or ctx is done.
// It returns the last error from fn, or ctx.Err().
func (b ExponentialBackoff) Retry(ctx context.Context, fn func(attempt int) error) error {
	lastErr := errNoAttempts
	for attempt := 0; b.ShouldRetry(attempt); attempt++ {
		timer := time.NewTimer(b.GetDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
