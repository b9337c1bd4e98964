// Package scheduler implements the Net: the single priority queue over
// device rounds and global events, and the two execution strategies
// (Sequential, ParallelBatch).
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/fcpp-project/fcpp-go/pkg/engine"
	"github.com/fcpp-project/fcpp-go/pkg/node"
	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// Strategy selects how the net drains its queue.
type Strategy interface {
	isStrategy()
}

// Sequential pops the next event, executes it, reinserts — one device
// round at a time.
type Sequential struct{}

func (Sequential) isStrategy() {}

// ParallelBatch pops every event within Epsilon of the earliest queued
// time and executes the batch on a bounded goroutine pool of size
// Workers before reinserting.
type ParallelBatch struct {
	Workers int
	Epsilon float64
}

func (ParallelBatch) isStrategy() {}

// RoundFunc executes one device's round at the given time, returning
// the next time it should be scheduled and whether it should be
// rescheduled at all (false once the device has nothing further to
// do, e.g. it was erased mid-round).
type RoundFunc func(ctx context.Context, workerID int, dev *node.Device, now float64) (next float64, reschedule bool, err error)

// Net owns the device population, the global event queue, the random
// generator, and the execution strategy. It does
// not itself know how to run an aggregate program; RoundFunc is
// supplied by the caller (typically a thin wrapper around
// engine.Engine.Round) so Net stays agnostic of any particular
// program.
type Net struct {
	mu sync.Mutex // guards the queue; parallel batches hold it only for pop/push, not during round execution

	Identifier *Identifier
	queue      *priorityQueue
	strategy   Strategy
	round      RoundFunc
	rand       *rand.Rand

	onRoundError func(error) // round errors are reported here, never propagated
	invariantErr error       // first invariant violation observed; aborts Run
}

// NewNet returns a Net with an empty device population, seeded random
// generator, the given execution strategy, and the round callback used
// to execute each device's turn.
func NewNet(strategy Strategy, seed int64, round RoundFunc, onRoundError func(error)) *Net {
	return &Net{
		Identifier:   NewIdentifier(),
		queue:        newQueue(),
		strategy:     strategy,
		round:        round,
		rand:         rand.New(rand.NewSource(seed)),
		onRoundError: onRoundError,
	}
}

// Emplace creates a device and schedules its first round at
// startTime.
func (n *Net) Emplace(uid uint32, startTime float64) (*node.Device, error) {
	dev, err := n.Identifier.Emplace(uid, startTime)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	n.queue.push(&event{time: startTime, uid: uid, kind: eventDevice})
	n.mu.Unlock()
	return dev, nil
}

// Erase retires a device. Its pending queue entry, if any, becomes a no-op when
// popped since the device is no longer registered.
func (n *Net) Erase(uid uint32) {
	n.Identifier.Erase(uid)
}

// ScheduleGlobal enqueues a net-owned event (logger tick, spawn,
// external I/O) to run at t.
func (n *Net) ScheduleGlobal(t float64, fn func(now float64)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue.push(&event{time: t, kind: eventGlobal, global: fn})
}

// setInvariant records the first invariant violation a round surfaces
// so Run can stop draining and return it.
func (n *Net) setInvariant(err error) {
	n.mu.Lock()
	if n.invariantErr == nil {
		n.invariantErr = err
	}
	n.mu.Unlock()
}

func (n *Net) invariant() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.invariantErr
}

// Rand returns the net-level random generator, seeded at
// construction. Callers needing reproducible randomness (spawn
// jitter, metric noise) draw from this rather than the global source
// so two runs with the same seed see the same sequence. Not safe for
// concurrent draws; parallel batches should derive sub-generators
// via rand.New(rand.NewSource(n.Rand().Int63())) at batch start.
func (n *Net) Rand() *rand.Rand {
	return n.rand
}

// Empty reports whether the queue has no pending events.
func (n *Net) Empty() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.queue.Len() == 0
}

// Run drains the queue according to the configured strategy until it
// is empty or ctx is cancelled.
func (n *Net) Run(ctx context.Context) error {
	switch s := n.strategy.(type) {
	case Sequential:
		return n.runSequential(ctx)
	case ParallelBatch:
		return n.runParallelBatch(ctx, s)
	default:
		return util.NewConfigError("scheduler.Net.Run", "unknown execution strategy")
	}
}

func (n *Net) runSequential(ctx context.Context) error {
	for {
		if err := n.invariant(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return nil //nolint:nilerr // cancellation drains no further events, not an error
		}
		n.mu.Lock()
		if n.queue.Len() == 0 {
			n.mu.Unlock()
			return nil
		}
		e := n.queue.pop()
		n.mu.Unlock()

		n.runEvent(ctx, 0, e)
	}
}

func (n *Net) runParallelBatch(ctx context.Context, strategy ParallelBatch) error {
	workers := strategy.Workers
	if workers < 1 {
		workers = 1
	}
	for {
		if err := n.invariant(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return nil //nolint:nilerr
		}
		n.mu.Lock()
		group := n.queue.popFrontGroup(strategy.Epsilon)
		n.mu.Unlock()
		if len(group) == 0 {
			return nil
		}
		n.runGroup(ctx, group, workers)
	}
}

// runGroup drains group across a fixed pool of `workers` goroutines,
// one per workerID in [0, workers). Each goroutine owns its workerID
// exclusively for the lifetime of the pool — it pulls events off jobs
// and runs them one at a time — rather than a goroutine-per-event
// scheme mapping workerID via i % workers, which would let two
// in-flight goroutines share a workerID (and therefore the same
// trace.ForWorker stack, pkg/trace/stack.go) whenever len(group)
// exceeds workers, the common case once a front-group outgrows
// --parallel. Each worker must own its trace stack exclusively; the
// fixed pool is what guarantees that.
func (n *Net) runGroup(ctx context.Context, group []*event, workers int) {
	jobs := make(chan *event)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(workerID int) {
			defer wg.Done()
			for e := range jobs {
				n.runEvent(ctx, workerID, e)
			}
		}(w)
	}
	for _, e := range group {
		jobs <- e
	}
	close(jobs)
	wg.Wait()
}

// runEvent executes one popped event and, if it should continue,
// reinserts it at its next scheduled time.
func (n *Net) runEvent(ctx context.Context, workerID int, e *event) {
	if e.kind == eventGlobal {
		e.global(e.time)
		return
	}

	dev, ok := n.Identifier.Get(e.uid)
	if !ok || dev.State() == node.Retired {
		return // erased between scheduling and execution; drop silently
	}

	next, reschedule, err := n.round(ctx, workerID, dev, e.time)
	if err != nil {
		if errors.Is(err, util.ErrInvariant) {
			n.setInvariant(err)
			return
		}
		if n.onRoundError != nil {
			n.onRoundError(err) // reported, never propagated
		}
	}
	// RoundFunc is responsible for returning a sane (next, reschedule)
	// pair even when err != nil — the engine retains the prior export
	// on a failing round, and the device is rescheduled normally
	// rather than spun at the same instant.
	if !reschedule || dev.State() == node.Retired {
		return
	}

	n.mu.Lock()
	n.queue.push(&event{time: next, uid: e.uid, kind: eventDevice})
	n.mu.Unlock()
}

// WorkerEngine returns a fresh engine bound to workerID, for callers
// building a RoundFunc around engine.Engine.Round. Each worker needs
// its own trace stack; the
// parallel strategy hands out workerID in [0, Workers) so callers can
// cache one Engine per slot instead of allocating per round.
func WorkerEngine(workerID int, retainWindow float64) *engine.Engine {
	return engine.New(workerID, retainWindow)
}
