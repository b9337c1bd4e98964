// Package node implements the Device: the unit the scheduler drives
// through rounds.
package node

import (
	"sync"

	"github.com/fcpp-project/fcpp-go/pkg/export"
	"github.com/fcpp-project/fcpp-go/pkg/nbrcontext"
)

// State is a Device's lifecycle stage.
type State int

const (
	Created State = iota
	Live
	Retired
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Live:
		return "live"
	case Retired:
		return "retired"
	default:
		return "unknown"
	}
}

// Vec2 is a 2D position/velocity pair for spatial programs.
type Vec2 struct {
	X, Y float64
}

// Envelope is an inbound message queued for a device's next round:
// the sender, when it was sent, and its export.
type Envelope struct {
	SenderUID uint32
	SendTime  float64
	Export    export.Export
}

// Device owns the per-device state that survives across rounds:
// storage, context, and export. Exported fields are the storage tuple
// and position/velocity; everything reachable only under the device's
// own round is behind the mutex.
type Device struct {
	UID uint32

	Position *Vec2
	Velocity *Vec2

	mu       sync.Mutex
	state    State
	storage  map[string]any
	export   export.Export
	ctx      *nbrcontext.Context
	mailbox  []Envelope
	nextTime float64
}

// New creates a device in the Created state with an empty context and
// storage tuple, scheduled for its first round at startTime.
func New(uid uint32, startTime float64) *Device {
	return &Device{
		UID:      uid,
		state:    Created,
		storage:  make(map[string]any),
		ctx:      nbrcontext.New(uid),
		nextTime: startTime,
	}
}

// NewTestDevice builds a Device pre-seeded with storage and state for
// unit tests that exercise round logic without a running net.
func NewTestDevice(uid uint32, state State, storage map[string]any) *Device {
	if storage == nil {
		storage = make(map[string]any)
	}
	return &Device{
		UID:     uid,
		state:   state,
		storage: storage,
		ctx:     nbrcontext.New(uid),
	}
}

// State reports the device's current lifecycle stage.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Context returns the device's neighbourhood context.
func (d *Device) Context() *nbrcontext.Context {
	return d.ctx // immutable pointer; Context itself is internally synchronized
}

// Export returns the device's most recently sealed export.
func (d *Device) Export() export.Export {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.export
}

// Storage returns the user-declared per-device variable named key,
// and whether it was present.
func (d *Device) Storage(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.storage[key]
	return v, ok
}

// SetStorage installs key in the device's storage tuple.
func (d *Device) SetStorage(key string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.storage[key] = v
}

// StorageTuple returns a snapshot of the device's storage for
// loggers. The returned map is a shallow copy safe for the caller to
// range over without holding the device lock.
func (d *Device) StorageTuple() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]any, len(d.storage))
	for k, v := range d.storage {
		out[k] = v
	}
	return out
}

// Next reports the device's next scheduled event time.
func (d *Device) Next() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextTime
}

// Reschedule sets the device's next scheduled event time.
func (d *Device) Reschedule(t float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextTime = t
}

// Receive appends an inbound envelope to the device's mailbox. Called
// by the connector under no device lock of its own — the mailbox
// append is the single fine-grained lock any thread may take for any
// receiver.
func (d *Device) Receive(env Envelope) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mailbox = append(d.mailbox, env)
}

// DrainMailbox removes and returns every envelope queued since the
// last drain.
func (d *Device) DrainMailbox() []Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.mailbox
	d.mailbox = nil
	return out
}

// RoundStart transitions Created -> Live on a device's first round and
// is a no-op on subsequent rounds.
func (d *Device) RoundStart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Created {
		d.state = Live
	}
}

// RoundEnd installs the export a completed round produced and records
// it as the device's own next context entry, so the device's own
// projections see its latest values as "old".
func (d *Device) RoundEnd(now float64, ex export.Export) {
	d.mu.Lock()
	d.export = ex
	d.mu.Unlock()
	d.ctx.SetSelf(now, ex)
}

// Retire transitions the device to Retired on node_erase or net
// shutdown. Idempotent.
func (d *Device) Retire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Retired
}
