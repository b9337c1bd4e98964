package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/ssh"

	"github.com/fcpp-project/fcpp-go/pkg/node"
	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// channelName is the single shared Redis pub/sub channel every Real
// connector publishes to and subscribes on; receivers drop their own
// broadcasts by sender uid.
const channelName = "fcpp:net"

// RealConfig configures a Real connector. Addr is the Redis address
// the device talks to. When Tunnel is non-nil, Addr is reached by
// dialing TunnelHost over SSH and forwarding a local port to Addr
// from the far side, for Redis instances with no route from outside
// the device's host.
type RealConfig struct {
	UID        uint32
	Addr       string
	Tunnel     *ssh.ClientConfig // optional: dial TunnelHost with this config first
	TunnelHost string            // SSH host:port; required when Tunnel is set
	Backoff    Backoff

	// Delay reports this device's outgoing propagation delay, applied
	// to every broadcast envelope. Real mode publishes to a shared
	// channel with no per-receiver pairing available at send time, so
	// unlike Simulated's per-pair MetricFunc this is a single
	// nullary delay source for the sending device. Nil defaults to
	// zero delay.
	Delay func() float64

	// Retired reports whether the device this connector serves has
	// been retired. Broadcast stops retrying a failed publish once it
	// returns true. Nil means never retired.
	Retired func() bool

	// OnError receives the transport and protocol faults the
	// connector absorbs without failing — each unsuccessful publish
	// attempt and every malformed inbound envelope — so callers can
	// count them. Nil discards them.
	OnError func(err error)
}

// Real is the Connector backed by Redis pub/sub: Broadcast publishes
// an encoded envelope to a shared channel, and a background subscriber
// goroutine decodes every message that isn't this device's own and
// hands it to the registered receiver.
type Real struct {
	cfg     RealConfig
	client  *redis.Client
	pubsub  *redis.PubSub
	tunnel  *sshTunnel // nil unless cfg.Tunnel was set
	delay   func() float64
	backoff Backoff
	retired func() bool
	publish func(ctx context.Context, wire []byte) error // swappable in tests

	mu       sync.Mutex
	receiver func(node.Envelope)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReal dials cfg.Addr (through an SSH tunnel first if cfg.Tunnel is
// set) and subscribes to the shared envelope channel. The returned
// Real is ready for Broadcast/SetReceiver; call Close to release the
// subscription, connection, and tunnel.
func NewReal(ctx context.Context, cfg RealConfig) (*Real, error) {
	addr := cfg.Addr
	var tunnel *sshTunnel
	if cfg.Tunnel != nil {
		t, err := dialSSHTunnel(cfg.Tunnel, cfg.TunnelHost, cfg.Addr)
		if err != nil {
			return nil, util.NewTransportError(cfg.UID, 0, err)
		}
		tunnel = t
		addr = t.LocalAddr()
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	backoff := cfg.Backoff
	if backoff == (Backoff{}) {
		backoff = DefaultBackoff()
	}
	if err := backoff.Retry(ctx, 5, func(int) error {
		return client.Ping(ctx).Err()
	}); err != nil {
		client.Close()
		if tunnel != nil {
			tunnel.Close()
		}
		return nil, util.NewTransportError(cfg.UID, 0, fmt.Errorf("connecting to %s: %w", addr, err))
	}

	pubsub := client.Subscribe(ctx, channelName)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		if tunnel != nil {
			tunnel.Close()
		}
		return nil, util.NewTransportError(cfg.UID, 0, fmt.Errorf("subscribing to %s: %w", channelName, err))
	}

	delay := cfg.Delay
	if delay == nil {
		delay = func() float64 { return 0 }
	}
	retired := cfg.Retired
	if retired == nil {
		retired = func() bool { return false }
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &Real{
		cfg:     cfg,
		client:  client,
		pubsub:  pubsub,
		tunnel:  tunnel,
		delay:   delay,
		backoff: backoff,
		retired: retired,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.publish = func(ctx context.Context, wire []byte) error {
		return r.client.Publish(ctx, channelName, wire).Err()
	}
	go r.listen(runCtx)
	return r, nil
}

// reportError hands an absorbed transport/protocol fault to the
// configured OnError counter, if any.
func (r *Real) reportError(err error) {
	if r.cfg.OnError != nil {
		r.cfg.OnError(err)
	}
}

// SetReceiver installs the callback invoked for every envelope this
// connector accepts from the shared channel. Must be called before
// messages are expected to be delivered; safe to call once at setup.
func (r *Real) SetReceiver(fn func(node.Envelope)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receiver = fn
}

func (r *Real) listen(ctx context.Context) {
	defer close(r.done)
	ch := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, delaySeconds, err := DecodeEnvelope([]byte(msg.Payload), true)
			if err != nil {
				r.reportError(err) // malformed message: dropped, counted, never fatal
				continue
			}
			if env.SenderUID == r.cfg.UID {
				continue
			}
			env.SendTime += delaySeconds // back-date reception, mirroring Simulated.Broadcast
			r.mu.Lock()
			receiver := r.receiver
			r.mu.Unlock()
			if receiver != nil {
				receiver(env)
			}
		}
	}
}

// Broadcast publishes env to the shared channel, encoding this
// device's configured propagation delay (cfg.Delay) into the trailing
// delay byte so a receiving Real can back-date reception on arrival.
// A failed publish is retried with the connector's backoff until it
// succeeds, ctx is cancelled, or the device retires; each failed
// attempt is counted through cfg.OnError. The last failure is
// returned so the caller can report it — a returned error never means
// the connector gave up while the device was still live.
func (r *Real) Broadcast(ctx context.Context, env node.Envelope) error {
	wire := EncodeEnvelope(env, true, DelayEighths(r.delay()))

	retryCtx, cancelRetry := context.WithCancel(ctx)
	defer cancelRetry()

	var lastErr error
	err := r.backoff.Retry(retryCtx, 0, func(attempt int) error {
		if r.retired() {
			cancelRetry() // device gone; nothing left to deliver for
			return lastErr
		}
		if pubErr := r.publish(retryCtx, wire); pubErr != nil {
			lastErr = util.NewTransportError(env.SenderUID, attempt+1, pubErr)
			r.reportError(lastErr)
			return lastErr
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}

// Close tears down the subscription, Redis connection, and SSH tunnel
// (if any), waiting for the background listener goroutine to exit.
func (r *Real) Close() error {
	r.cancel()
	<-r.done
	r.pubsub.Close()
	err := r.client.Close()
	if r.tunnel != nil {
		if tErr := r.tunnel.Close(); err == nil {
			err = tErr
		}
	}
	return err
}
