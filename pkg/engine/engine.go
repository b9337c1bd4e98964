// Package engine implements the round engine: the
// five-step round sequence and the old/nbr/share/branch primitives
// that are the aggregate program's complete exchange vocabulary.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/fcpp-project/fcpp-go/pkg/export"
	"github.com/fcpp-project/fcpp-go/pkg/field"
	"github.com/fcpp-project/fcpp-go/pkg/nbrcontext"
	"github.com/fcpp-project/fcpp-go/pkg/node"
	"github.com/fcpp-project/fcpp-go/pkg/trace"
	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// Program is the user's aggregate computation: one round's worth of
// old/nbr/share/branch calls against the supplied Round handle.
type Program func(r *Round)

// Round carries the current context and outbound export for one
// round in flight. Go has no goroutine-local storage, so the engine
// threads this handle through the program call instead of reaching
// for a package-level global, which would make concurrent front-group
// batches step on each other.
type Round struct {
	device  *node.Device
	ctx     *nbrcontext.Context
	prior   export.Export
	builder *export.Builder
	stack   *trace.Stack
	now     float64
}

// UID returns the uid of the device this round is executing for.
func (r *Round) UID() uint32 { return r.device.UID }

// Now returns the simulated time this round is scheduled at.
func (r *Round) Now() float64 { return r.now }

// SetStorage publishes a named value into the device's storage tuple
// so loggers and inspectors can observe
// a program's result without reading back through the export/trace
// machinery. Writing storage is side-channel to the old/nbr/share
// exchange — it has no effect on alignment or neighbour projection.
func (r *Round) SetStorage(key string, v any) {
	r.device.SetStorage(key, v)
}

// Storage reads a named value from the device's storage tuple.
func (r *Round) Storage(key string) (any, bool) {
	return r.device.Storage(key)
}

func (r *Round) pushTag(tag uint64) trace.Closer {
	return r.stack.Enter(tag, func(err error) {
		panic(err) // invariant: unbalanced frame; Round's recover returns it unwrapped, aborting the net
	})
}

// Old reads the device's own value at the current trace (tag pushed
// onto it) from its previous export, falling back to init when
// absent, applies update, writes the result back into the export at
// that trace, and returns it.
func Old[T any](r *Round, tag uint64, init T, update func(T) T) T {
	closer := r.pushTag(tag)
	defer closer()
	t := r.stack.Current()

	prev, ok := export.Get[T](r.prior, t)
	if !ok {
		prev = init
	}
	next := update(prev)
	if err := export.Put(r.builder, t, next); err != nil {
		panic(err)
	}
	return next
}

// Nbr projects the context to a field at the current trace (default:
// the device's previous value there, or init), passes it to combine,
// writes combine's result back at that trace as the new local value —
// not the field — and returns it.
func Nbr[T any](r *Round, tag uint64, init T, combine func(field.Field[T]) T) T {
	closer := r.pushTag(tag)
	defer closer()
	t := r.stack.Current()

	f := nbrcontext.Project[T](r.ctx, t, init)
	result := combine(f)
	if err := export.Put(r.builder, t, result); err != nil {
		panic(err)
	}
	return result
}

// Share is the fused old+nbr primitive: it
// projects the same field nbr would — self default already carries
// the device's previous value at this trace — and writes combine's
// result back exactly as nbr does. The two are definitionally
// equivalent once nbr's self default is taken from the device's own
// prior export, which our Context.Project always does; Share exists
// so programs written in the fused style keep their vocabulary.
func Share[T any](r *Round, tag uint64, init T, combine func(field.Field[T]) T) T {
	return Nbr(r, tag, init, combine)
}

// Branch evaluates cond and runs only the taken side's body under a
// trace frame that encodes which side was taken, so a device that
// does not enter a branch leaves no export entry rooted there and
// consumes no neighbour contributions rooted there either.
func Branch[T any](r *Round, tag uint64, cond bool, thenFn, elseFn func() T) T {
	if cond {
		closer := r.pushTag(tag*2 + 1)
		defer closer()
		return thenFn()
	}
	closer := r.pushTag(tag * 2)
	defer closer()
	return elseFn()
}

// Engine runs rounds for devices against a shared worker id, used to
// select the trace stack to run on. Sequential execution uses a single fixed WorkerID; a
// parallel batch assigns one WorkerID per pool slot. RetainWindow is
// the net-configured context eviction window, applied via Context.CollectOld at the end of every round.
type Engine struct {
	WorkerID     int
	RetainWindow float64
}

// New returns an Engine bound to the given worker id and retain window.
func New(workerID int, retainWindow float64) *Engine {
	return &Engine{WorkerID: workerID, RetainWindow: retainWindow}
}

// Round runs one round on dev:
//  1. open the root trace frame;
//  2. bind the round's context/export view;
//  3. run the program;
//  4. seal the export and replace the device's prior one, update storage;
//  5. close the root frame.
//
// A faulting program (panic, encoding failure) aborts only this round
// for this device: the prior export is kept, and the failure is
// reported as a *util.RoundError. An invariant violation (an error
// wrapping util.ErrInvariant) is returned as is, so it aborts the net.
func (e *Engine) Round(ctx context.Context, dev *node.Device, now float64, program Program) (err error) {
	if ctx != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
	}

	stack := trace.ForWorker(e.WorkerID)
	defer trace.ResetWorker(e.WorkerID) // never leak open frames into the next round on this worker

	dev.RoundStart()

	r := &Round{
		device:  dev,
		ctx:     dev.Context(),
		prior:   dev.Export(),
		builder: export.NewBuilder(),
		stack:   stack,
		now:     now,
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = wrapRoundFailure(dev.UID, now, rec)
		}
	}()

	program(r)

	sealed := r.builder.Build()
	dev.RoundEnd(now, sealed)
	dev.Context().CollectOld(now, e.RetainWindow)
	return nil
}

func wrapRoundFailure(uid uint32, now float64, rec any) error {
	if err, ok := rec.(error); ok {
		if errors.Is(err, util.ErrInvariant) {
			return err // aborts the whole net, not just this round
		}
		return util.NewRoundError(uid, now, err)
	}
	return util.NewRoundError(uid, now, fmt.Errorf("%v", rec))
}
