package transport

import (
	"context"

	"github.com/fcpp-project/fcpp-go/pkg/node"
	"github.com/fcpp-project/fcpp-go/pkg/scheduler"
)

// Simulated is the in-process Connector: broadcast walks the live
// device population directly instead of going over a network,
// applying a connectivity predicate and an optional delay metric.
type Simulated struct {
	Population   *scheduler.Identifier
	Connectivity ConnectivityFunc
	Delay        MetricFunc
}

// NewSimulated returns a Simulated connector over population. A nil
// connectivity predicate defaults to AlwaysConnected; a nil delay
// metric defaults to ZeroDelay.
func NewSimulated(population *scheduler.Identifier, connectivity ConnectivityFunc, delay MetricFunc) *Simulated {
	if connectivity == nil {
		connectivity = AlwaysConnected
	}
	if delay == nil {
		delay = ZeroDelay
	}
	return &Simulated{Population: population, Connectivity: connectivity, Delay: delay}
}

// Broadcast delivers env to every live device other than the sender
// for which Connectivity reports true, stamping each delivery with the
// sender's send time plus whatever Delay reports for that pair. There
// is no actual wire encoding in Simulated mode — the export is handed
// over by reference.
func (s *Simulated) Broadcast(ctx context.Context, env node.Envelope) error {
	if err := ctx.Err(); err != nil {
		return nil //nolint:nilerr // cancellation delivers nothing further, not an error
	}
	sender, ok := s.Population.Get(env.SenderUID)
	if !ok {
		return nil // sender erased mid-round; nothing to deliver
	}

	s.Population.Each(func(dev *node.Device) {
		if dev.UID == env.SenderUID || dev.State() == node.Retired {
			return
		}
		if !s.Connectivity(sender, dev) {
			return
		}
		delayed := env
		delayed.SendTime = env.SendTime + s.Delay(sender, dev)
		dev.Receive(delayed)
	})
	return nil
}

// Close is a no-op: Simulated holds no background resources.
func (s *Simulated) Close() error { return nil }
