package scheduler

import (
	"sync"

	"github.com/fcpp-project/fcpp-go/pkg/node"
)

// shardCount is the number of stripes the device population is split
// across. A per-uid mutex would be simpler but unbounded; a single
// mutex would serialize emplace/erase against every round. Striping
// gives emplace/erase of unrelated uids independence without an
// allocation per device.
const shardCount = 32

// Identifier owns the device population behind a locking layer
// allowing concurrent per-device access.
type Identifier struct {
	shards [shardCount]struct {
		mu      sync.RWMutex
		devices map[uint32]*node.Device
	}
}

// NewIdentifier returns an empty device population.
func NewIdentifier() *Identifier {
	id := &Identifier{}
	for i := range id.shards {
		id.shards[i].devices = make(map[uint32]*node.Device)
	}
	return id
}

func (id *Identifier) shardFor(uid uint32) *struct {
	mu      sync.RWMutex
	devices map[uint32]*node.Device
} {
	return &id.shards[uid%shardCount]
}

// Emplace creates and registers a new device at uid, starting its
// first scheduled round at startTime. Emplace on an already-live uid
// is an invariant violation; the caller is expected to Erase first.
func (id *Identifier) Emplace(uid uint32, startTime float64) (*node.Device, error) {
	shard := id.shardFor(uid)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if existing, ok := shard.devices[uid]; ok && existing.State() != node.Retired {
		return nil, errDuplicateUID(uid)
	}
	dev := node.New(uid, startTime)
	shard.devices[uid] = dev
	return dev, nil
}

// Erase retires and unregisters the device at uid. Erasing an unknown
// uid is a no-op.
func (id *Identifier) Erase(uid uint32) {
	shard := id.shardFor(uid)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if dev, ok := shard.devices[uid]; ok {
		dev.Retire()
		delete(shard.devices, uid)
	}
}

// Get returns the device at uid, if live.
func (id *Identifier) Get(uid uint32) (*node.Device, bool) {
	shard := id.shardFor(uid)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	dev, ok := shard.devices[uid]
	return dev, ok
}

// Len reports the number of registered devices across all shards.
func (id *Identifier) Len() int {
	n := 0
	for i := range id.shards {
		id.shards[i].mu.RLock()
		n += len(id.shards[i].devices)
		id.shards[i].mu.RUnlock()
	}
	return n
}

// Each calls fn for every registered device. fn must not call back
// into Emplace/Erase for the same uid while holding the iteration
// (each shard's lock is released between shards, not held for the
// whole walk).
func (id *Identifier) Each(fn func(*node.Device)) {
	for i := range id.shards {
		id.shards[i].mu.RLock()
		devices := make([]*node.Device, 0, len(id.shards[i].devices))
		for _, d := range id.shards[i].devices {
			devices = append(devices, d)
		}
		id.shards[i].mu.RUnlock()
		for _, d := range devices {
			fn(d)
		}
	}
}
