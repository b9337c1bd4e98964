package transport

import (
	"context"

	"github.com/fcpp-project/fcpp-go/pkg/node"
)

// Connector is the boundary a Net uses to move a device's sealed
// export to its neighbours. A round's RoundFunc calls
// Broadcast once it has sealed an export; delivery — immediate in
// Simulated mode, asynchronous in Real mode — is the Connector's
// concern, not the caller's.
type Connector interface {
	// Broadcast sends env toward every device the Connector considers
	// reachable from env.SenderUID. Simulated evaluates reachability
	// itself (a connectivity predicate over the live population); Real
	// publishes to a shared channel and lets every other device decide
	// whether to accept what it receives.
	Broadcast(ctx context.Context, env node.Envelope) error

	// Close releases any background resources (subscriptions,
	// connections, goroutines) the Connector holds.
	Close() error
}

// ConnectivityFunc reports whether a message sent from sender can
// reach receiver, given their current state. Typical implementations compare
// Position and a communication radius; the zero predicate — always
// true — models a fully connected network.
type ConnectivityFunc func(sender, receiver *node.Device) bool

// MetricFunc returns the propagation delay (in simulated time units)
// a message experiences travelling from sender to receiver. Simulated
// adds it to each delivery's send time; Real mode does not use it and
// fills the envelope's delay byte from RealConfig.Delay instead.
type MetricFunc func(sender, receiver *node.Device) float64

// ZeroDelay is the default MetricFunc: instantaneous delivery.
func ZeroDelay(_, _ *node.Device) float64 { return 0 }

// AlwaysConnected is the default ConnectivityFunc: every live device
// can reach every other live device.
func AlwaysConnected(_, _ *node.Device) bool { return true }
