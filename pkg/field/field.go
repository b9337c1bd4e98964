// Package field implements the field abstraction: a local value
// paired with a sparse table of per-neighbour overrides.
package field

import "sort"

// Field holds a default value and a sorted table of per-neighbour
// overrides. The zero Field is not valid; use New.
type Field[T any] struct {
	Default T
	uids    []uint32
	values  []T
}

// New builds a Field with the given default and no overrides.
func New[T any](def T) Field[T] {
	return Field[T]{Default: def}
}

// NewFrom builds a Field from a default and an explicit neighbour map.
// The map is copied into a sorted table; a nil overrides map yields a
// field with no overrides, the same as New(def).
func NewFrom[T any](def T, overrides map[uint32]T) Field[T] {
	f := Field[T]{Default: def}
	if overrides == nil {
		return f
	}
	uids := make([]uint32, 0, len(overrides))
	for uid := range overrides {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	f.uids = uids
	f.values = make([]T, len(uids))
	for i, uid := range uids {
		f.values[i] = overrides[uid]
	}
	return f
}

// Set installs or replaces the override for uid, keeping the table
// sorted by ascending uid. The "self" id, if present, is stored
// exactly once — a second Set for the same uid overwrites rather than
// appends.
func (f *Field[T]) Set(uid uint32, v T) {
	i := sort.Search(len(f.uids), func(i int) bool { return f.uids[i] >= uid })
	if i < len(f.uids) && f.uids[i] == uid {
		f.values[i] = v
		return
	}
	f.uids = append(f.uids, 0)
	copy(f.uids[i+1:], f.uids[i:])
	f.uids[i] = uid
	f.values = append(f.values, v)
	copy(f.values[i+1:], f.values[i:])
	f.values[i] = v
}

// At returns the override for uid if present, else the default.
// O(log n) via binary search over the sorted uid table.
func (f Field[T]) At(uid uint32) T {
	i := sort.Search(len(f.uids), func(i int) bool { return f.uids[i] >= uid })
	if i < len(f.uids) && f.uids[i] == uid {
		return f.values[i]
	}
	return f.Default
}

// Has reports whether uid has an explicit override.
func (f Field[T]) Has(uid uint32) bool {
	i := sort.Search(len(f.uids), func(i int) bool { return f.uids[i] >= uid })
	return i < len(f.uids) && f.uids[i] == uid
}

// UIDs returns the neighbour ids with an explicit override, in
// ascending order. The returned slice must not be mutated.
func (f Field[T]) UIDs() []uint32 {
	return f.uids
}

// Len returns the number of explicit overrides (not counting default).
func (f Field[T]) Len() int {
	return len(f.uids)
}

// MapField applies f pointwise to the default and every override,
// producing a Field[U]. A package-level function rather than a method
// because Go forbids type parameters on methods.
func MapField[T, U any](in Field[T], f func(T) U) Field[U] {
	out := Field[U]{Default: f(in.Default)}
	if len(in.uids) == 0 {
		return out
	}
	out.uids = append([]uint32(nil), in.uids...)
	out.values = make([]U, len(in.values))
	for i, v := range in.values {
		out.values[i] = f(v)
	}
	return out
}

// FoldField left-folds op across the field's neighbours in ascending
// uid order, with the local (default) value folded in exactly once.
// Folding a field with no neighbours returns op(init, default).
func FoldField[T, A any](in Field[T], init A, op func(A, T) A) A {
	acc := op(init, in.Default)
	for _, v := range in.values {
		acc = op(acc, v)
	}
	return acc
}

// CombineField unions the neighbour sets of two fields, substituting
// each field's own default for uids it doesn't override, and applies f
// pointwise (including at the combined default).
func CombineField[T, U, V any](a Field[T], b Field[U], f func(T, U) V) Field[V] {
	out := Field[V]{Default: f(a.Default, b.Default)}
	i, j := 0, 0
	for i < len(a.uids) || j < len(b.uids) {
		switch {
		case i < len(a.uids) && (j >= len(b.uids) || a.uids[i] < b.uids[j]):
			out.Set(a.uids[i], f(a.values[i], b.Default))
			i++
		case j < len(b.uids) && (i >= len(a.uids) || b.uids[j] < a.uids[i]):
			out.Set(b.uids[j], f(a.Default, b.values[j]))
			j++
		default:
			out.Set(a.uids[i], f(a.values[i], b.values[j]))
			i++
			j++
		}
	}
	return out
}

// Restrict returns a copy of f with overrides not satisfying predicate
// removed. The default is unchanged.
func Restrict[T any](f Field[T], predicate func(uid uint32, v T) bool) Field[T] {
	out := Field[T]{Default: f.Default}
	for i, uid := range f.uids {
		if predicate(uid, f.values[i]) {
			out.uids = append(out.uids, uid)
			out.values = append(out.values, f.values[i])
		}
	}
	return out
}

// ArgBound reduces a field to the (uid, value) pair minimizing (or, if
// less returns the other direction, maximizing) value, folding in the
// local value under the self uid. Ties break toward the smaller uid
// — load-bearing for unique-parent-selection-style
// coordination primitives built on top of fields.
func ArgBound[T any](f Field[T], selfUID uint32, less func(a, b T) bool) (uid uint32, value T) {
	uid, value = selfUID, f.Default
	for i, candUID := range f.uids {
		v := f.values[i]
		if less(v, value) || (!less(value, v) && candUID < uid) {
			uid, value = candUID, v
		}
	}
	return uid, value
}
