package logsink

import (
	"sync"
	"time"
)

// RoundEvent records one round failure or protocol error for later
// inspection. A structured diagnostics feed separate from the
// plain-text data log.
type RoundEvent struct {
	Time      time.Time
	Device    uint32
	RoundTime float64
	Kind      string // "round", "transport", "protocol"
	Error     string
}

// Diagnostics accumulates RoundEvents in memory for a run, bounded by
// Capacity (oldest entries are dropped once full). Intended for
// cmd/fcppsim to surface "N round errors occurred" summaries without
// scanning the plain-text log.
type Diagnostics struct {
	mu       sync.Mutex
	Capacity int
	events   []RoundEvent
}

// NewDiagnostics returns a Diagnostics bounded to capacity events (0
// means unbounded).
func NewDiagnostics(capacity int) *Diagnostics {
	return &Diagnostics{Capacity: capacity}
}

// Record appends ev, dropping the oldest entry first if at capacity.
func (d *Diagnostics) Record(ev RoundEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Capacity > 0 && len(d.events) >= d.Capacity {
		d.events = d.events[1:]
	}
	d.events = append(d.events, ev)
}

// Events returns a snapshot of recorded events.
func (d *Diagnostics) Events() []RoundEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RoundEvent, len(d.events))
	copy(out, d.events)
	return out
}

// CountByKind tallies recorded events by Kind.
func (d *Diagnostics) CountByKind() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	counts := make(map[string]int)
	for _, ev := range d.events {
		counts[ev.Kind]++
	}
	return counts
}
