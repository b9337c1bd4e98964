package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func tinyBackoff() Backoff {
	return Backoff{Initial: time.Microsecond, Max: 10 * time.Microsecond, Multiplier: 2}
}

func TestBackoffNextGrowsAndCaps(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := b.Next(attempt)
		if d > b.Max {
			t.Fatalf("Next(%d) = %v exceeds cap %v", attempt, d, b.Max)
		}
		if attempt > 0 && attempt < 3 && d <= prev/2 {
			t.Fatalf("Next(%d) = %v did not grow from %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := tinyBackoff().Retry(context.Background(), 0, func(int) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRetryHonorsMaxAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := tinyBackoff().Retry(context.Background(), 4, func(int) error {
		calls++
		return boom
	})
	if err != boom {
		t.Fatalf("Retry = %v, want the last error", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := tinyBackoff().Retry(ctx, 0, func(int) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("still failing")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry = %v, want context.Canceled", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (no further attempts after cancel)", calls)
	}
}
