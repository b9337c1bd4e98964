// Package nbrcontext implements a device's view of its
// neighbourhood: a table of the most recent export each
// neighbour has sent, projected per-trace into fields for the round
// engine's old/nbr/share primitives. Named nbrcontext (rather than
// context) to avoid shadowing the standard library package.
package nbrcontext

import (
	"sort"
	"sync"

	"github.com/fcpp-project/fcpp-go/pkg/export"
	"github.com/fcpp-project/fcpp-go/pkg/field"
	"github.com/fcpp-project/fcpp-go/pkg/trace"
)

// entry is one neighbour's most recently received export, along with
// the simulated time it was received.
type entry struct {
	time   float64
	export export.Export
}

// Context is a device's neighbourhood view: neighbour uid -> (receive
// time, export). Safe for concurrent use; a front-group batch may
// insert new arrivals on one worker while projecting on another.
type Context struct {
	mu      sync.RWMutex
	entries map[uint32]entry

	selfUID    uint32
	selfTime   float64
	selfExport export.Export
}

// New returns an empty context for the device identified by selfUID.
func New(selfUID uint32) *Context {
	return &Context{
		selfUID: selfUID,
		entries: make(map[uint32]entry),
	}
}

// Insert records a neighbour's export received at time t. An older
// entry for the same uid is replaced; an entry already older than
// retainWindow relative to now is discarded on arrival rather than
// stored and immediately evicted.
func (c *Context) Insert(uid uint32, t float64, now float64, retainWindow float64, ex export.Export) {
	if t < now-retainWindow {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[uid]; ok && existing.time > t {
		return
	}
	c.entries[uid] = entry{time: t, export: ex}
}

// SetSelf records the device's own most recent export, used as the
// self contribution (and projection default) once the round advances.
func (c *Context) SetSelf(t float64, ex export.Export) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfTime = t
	c.selfExport = ex
}

// CollectOld evicts every entry whose reception time is more than
// retainWindow behind now. Modeled on the expired-neighbour sweep pattern used by
// link-state neighbour tables: iterate the table and delete entries
// whose hold time has lapsed.
func (c *Context) CollectOld(now, retainWindow float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for uid, e := range c.entries {
		if e.time < now-retainWindow {
			delete(c.entries, uid)
		}
	}
}

// Len reports the number of live neighbour entries (excluding self).
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Project builds the field a round observes at trace t: the default
// is this device's own value at t (or zero when the device has no
// prior export entry there), and the neighbour
// map holds the decoded value at t from every neighbour whose export
// carries one.
//
// Project is a package-level generic function, not a method, since Go
// forbids type parameters on methods.
func Project[T any](c *Context, t trace.Trace, zero T) field.Field[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def := zero
	if v, ok := export.Get[T](c.selfExport, t); ok {
		def = v
	}

	f := field.New(def)

	uids := make([]uint32, 0, len(c.entries))
	for uid := range c.entries {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	for _, uid := range uids {
		e := c.entries[uid]
		if v, ok := export.Get[T](e.export, t); ok {
			f.Set(uid, v)
		}
	}
	return f
}
