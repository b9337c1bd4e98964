package transport

import (
	"context"
	"math/rand"
	"time"
)

// Backoff describes the retry schedule Real mode uses to reconnect to
// its Redis backend after a transport failure: a context-aware wait
// loop whose delay doubles each attempt up to Max, with jitter so a
// fleet of devices doesn't reconnect in lockstep.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff is a reasonable connection-retry schedule: 100ms
// initial delay, doubling, capped at 10s.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 100 * time.Millisecond, Max: 10 * time.Second, Multiplier: 2}
}

// Next returns the delay to wait before attempt (0-indexed), with
// ±10% jitter so many reconnecting devices don't retry in lockstep.
func (b Backoff) Next(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		d *= b.Multiplier
		if d > float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}
	jitter := 1 + (rand.Float64()*0.2 - 0.1)
	delay := time.Duration(d * jitter)
	if delay > b.Max {
		delay = b.Max
	}
	return delay
}

// Retry calls fn until it succeeds, ctx is cancelled, or maxAttempts is
// reached (0 means unlimited). Returns the last error fn produced, or
// ctx.Err() if cancelled first.
func (b Backoff) Retry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; maxAttempts == 0 || attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Next(attempt)):
		}
	}
	return lastErr
}
