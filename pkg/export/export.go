// Package export implements the per-device export: a type-erased,
// append-only-then-sealed map from trace.Trace to the value a device
// produced at that point in its round.
package export

import (
	"fmt"
	"sync"

	"github.com/fcpp-project/fcpp-go/pkg/trace"
	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// Payload is a type-erased, encoded value: a one-byte type tag plus
// the codec-specific encoding of the value.
type Payload struct {
	Type  byte
	Bytes []byte
}

// Export is an immutable trace -> Payload map, produced by sealing a
// Builder. Export is a small value type safe to copy and pass by
// value; its decode cache lives behind a pointer so copies share it.
// The zero Export is empty and valid.
type Export struct {
	entries map[trace.Trace]Payload
	cache   *decodeCache
}

// decodeCache memoizes decoded values per trace so a front-group batch
// reading the same export from several workers only decodes once.
type decodeCache struct {
	once sync.Map // trace.Trace -> *sync.Once
	val  sync.Map // trace.Trace -> decoded value (any)
}

// Builder accumulates (trace, value) pairs during a round. Not safe
// for concurrent use; each round owns exactly one builder.
type Builder struct {
	entries map[trace.Trace]Payload
}

// NewBuilder returns an empty export builder.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[trace.Trace]Payload)}
}

// Put encodes v with the codec registered for its type and records it
// at t. Put a second time for the same trace overwrites — a round
// visiting the same call point twice (e.g. inside a loop construct)
// keeps only the last value, matching "export reflects final values
// only".
func Put[T any](b *Builder, t trace.Trace, v T) error {
	tag, encode, _, ok := codecFor[T]()
	if !ok {
		return util.NewInvariantError("export: no codec registered for type", fmt.Sprintf("%T", v))
	}
	bytes, err := encode(v)
	if err != nil {
		return fmt.Errorf("export: encoding value at trace %v: %w", t, err)
	}
	b.entries[t] = Payload{Type: tag, Bytes: bytes}
	return nil
}

// Build seals the builder into an immutable Export. The builder must
// not be reused afterward.
func (b *Builder) Build() Export {
	return Export{entries: b.entries, cache: &decodeCache{}}
}

// RawPayload returns the encoded (type tag, bytes) pair stored at t,
// without decoding it. Transport uses this to serialize an export
// without needing to know each value's Go type.
func (e Export) RawPayload(t trace.Trace) (Payload, bool) {
	p, ok := e.entries[t]
	return p, ok
}

// PutRaw records an already-encoded payload at t, bypassing the codec
// registry. Transport uses this to reconstruct an Export from wire
// bytes whose concrete Go type it never needs to know.
func (b *Builder) PutRaw(t trace.Trace, p Payload) {
	b.entries[t] = p
}

// Len reports how many traces the export carries a value for.
func (e Export) Len() int {
	return len(e.entries)
}

// Has reports whether the export has a value at t.
func (e Export) Has(t trace.Trace) bool {
	_, ok := e.entries[t]
	return ok
}

// Traces returns every trace the export carries a value for, in no
// particular order; callers needing determinism sort the result.
func (e Export) Traces() []trace.Trace {
	out := make([]trace.Trace, 0, len(e.entries))
	for t := range e.entries {
		out = append(out, t)
	}
	return out
}

// Get decodes and returns the value stored at t. The decoded value is
// cached on the export for the lifetime of this Export value (a
// sync.Once-guarded slot per trace), since a front-group batch may
// read the same export from several workers concurrently.
func Get[T any](e Export, t trace.Trace) (T, bool) {
	var zero T
	payload, ok := e.entries[t]
	if !ok || e.cache == nil {
		return zero, false
	}

	tag, _, decode, codecOK := codecFor[T]()
	if !codecOK || tag != payload.Type {
		return zero, false // no codec, or the stored payload is of a different type
	}

	onceVal, _ := e.cache.once.LoadOrStore(t, new(sync.Once))
	once := onceVal.(*sync.Once)

	once.Do(func() {
		v, err := decode(payload.Bytes)
		if err != nil {
			return
		}
		e.cache.val.Store(t, v)
	})

	v, stored := e.cache.val.Load(t)
	if !stored {
		return zero, false
	}
	typed, typedOK := v.(T)
	return typed, typedOK
}
