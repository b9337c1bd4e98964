package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/fcpp-project/fcpp-go/pkg/node"
	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// testReal builds a Real wired to an in-memory publish stub, skipping
// the Redis/tunnel setup NewReal performs, so the Broadcast retry
// policy can be exercised without a live backend.
func testReal(publish func(ctx context.Context, wire []byte) error, retired func() bool, onError func(error)) *Real {
	return &Real{
		cfg:     RealConfig{UID: 1, OnError: onError},
		delay:   func() float64 { return 0 },
		backoff: tinyBackoff(),
		retired: retired,
		publish: publish,
	}
}

func TestBroadcastRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	var counted []error
	r := testReal(
		func(context.Context, []byte) error {
			attempts++
			if attempts < 3 {
				return errors.New("publish refused")
			}
			return nil
		},
		func() bool { return false },
		func(err error) { counted = append(counted, err) },
	)

	err := r.Broadcast(context.Background(), node.Envelope{SenderUID: 1, SendTime: 0})
	if err != nil {
		t.Fatalf("Broadcast should succeed once publish recovers, got: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(counted) != 2 {
		t.Fatalf("counted %d failed attempts, want 2", len(counted))
	}
	for i, cErr := range counted {
		var tErr *util.TransportError
		if !errors.As(cErr, &tErr) {
			t.Fatalf("counted[%d] = %T, want *util.TransportError", i, cErr)
		}
		if tErr.Attempt != i+1 {
			t.Fatalf("counted[%d].Attempt = %d, want %d", i, tErr.Attempt, i+1)
		}
	}
}

func TestBroadcastStopsRetryingOnceRetired(t *testing.T) {
	failures := 0
	r := testReal(
		func(context.Context, []byte) error {
			failures++
			return errors.New("publish refused")
		},
		func() bool { return failures >= 3 },
		nil,
	)

	err := r.Broadcast(context.Background(), node.Envelope{SenderUID: 1, SendTime: 0})
	if !errors.Is(err, util.ErrTransport) {
		t.Fatalf("Broadcast = %v, want the last transport error", err)
	}
	if failures != 3 {
		t.Fatalf("publish attempted %d times, want exactly 3 before retirement cut it off", failures)
	}
}

func TestBroadcastStopsRetryingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	failures := 0
	r := testReal(
		func(context.Context, []byte) error {
			failures++
			if failures == 2 {
				cancel()
			}
			return errors.New("publish refused")
		},
		func() bool { return false },
		nil,
	)

	err := r.Broadcast(ctx, node.Envelope{SenderUID: 1, SendTime: 0})
	if !errors.Is(err, util.ErrTransport) {
		t.Fatalf("Broadcast = %v, want the last transport error", err)
	}
	if failures != 2 {
		t.Fatalf("publish attempted %d times after cancellation, want 2", failures)
	}
}
