package field

import "testing"

func TestAtReturnsOverrideOrDefault(t *testing.T) {
	f := New(10)
	f.Set(2, 20)
	f.Set(5, 50)

	if got := f.At(2); got != 20 {
		t.Errorf("At(2) = %d, want 20", got)
	}
	if got := f.At(99); got != 10 {
		t.Errorf("At(99) = %d, want default 10", got)
	}
}

func TestSetIsIdempotentPerUID(t *testing.T) {
	f := New(0)
	f.Set(3, 1)
	f.Set(3, 2)
	if f.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (self stored exactly once)", f.Len())
	}
	if f.At(3) != 2 {
		t.Errorf("second Set should overwrite, got %d", f.At(3))
	}
}

func TestUIDsAreSortedAscending(t *testing.T) {
	f := New(0)
	for _, uid := range []uint32{9, 1, 5, 3} {
		f.Set(uid, int(uid))
	}
	uids := f.UIDs()
	for i := 1; i < len(uids); i++ {
		if uids[i-1] >= uids[i] {
			t.Fatalf("uids not ascending: %v", uids)
		}
	}
}

// TestMapIdentity: map(id) = id.
func TestMapIdentity(t *testing.T) {
	f := New(1)
	f.Set(1, 2)
	f.Set(2, 3)

	mapped := MapField(f, func(v int) int { return v })

	if mapped.Default != f.Default {
		t.Errorf("default changed under map(id)")
	}
	for _, uid := range f.UIDs() {
		if mapped.At(uid) != f.At(uid) {
			t.Errorf("map(id) changed value at uid %d", uid)
		}
	}
}

// TestFoldEmptyNeighbours: fold(op, init) over a field whose neighbour
// set is empty returns op(init, default).
func TestFoldEmptyNeighbours(t *testing.T) {
	f := New(7)
	got := FoldField(f, 100, func(acc, v int) int { return acc + v })
	want := 100 + 7
	if got != want {
		t.Errorf("fold over empty field = %d, want %d", got, want)
	}
}

// TestFoldCommutativeAssociative: two fields with identical
// (default, neighbour_map) fold to the same value under a
// commutative-associative op.
func TestFoldCommutativeAssociative(t *testing.T) {
	build := func() Field[int] {
		f := New(1)
		f.Set(5, 2)
		f.Set(3, 9)
		f.Set(8, 4)
		return f
	}
	sum := func(acc, v int) int { return acc + v }

	a := FoldField(build(), 0, sum)
	b := FoldField(build(), 0, sum)
	if a != b {
		t.Errorf("fold not deterministic across identical fields: %d != %d", a, b)
	}
}

func TestCombineUnionsNeighbourSets(t *testing.T) {
	a := New(1)
	a.Set(1, 10)
	a.Set(2, 20)

	b := New(100)
	b.Set(2, 200)
	b.Set(3, 300)

	combined := CombineField(a, b, func(x, y int) int { return x + y })

	if got := combined.Default; got != 101 {
		t.Errorf("combined default = %d, want 101", got)
	}
	if got := combined.At(1); got != 10+100 {
		t.Errorf("combined.At(1) = %d, want %d", got, 10+100)
	}
	if got := combined.At(2); got != 20+200 {
		t.Errorf("combined.At(2) = %d, want %d", got, 20+200)
	}
	if got := combined.At(3); got != 1+300 {
		t.Errorf("combined.At(3) = %d, want %d", got, 1+300)
	}
	if combined.Len() != 3 {
		t.Errorf("combined.Len() = %d, want 3", combined.Len())
	}
}

func TestRestrictKeepsDefaultFiltersOverrides(t *testing.T) {
	f := New(0)
	f.Set(1, 5)
	f.Set(2, -3)
	f.Set(3, 8)

	restricted := Restrict(f, func(_ uint32, v int) bool { return v > 0 })

	if restricted.Default != f.Default {
		t.Error("restrict should not change the default")
	}
	if restricted.Len() != 2 {
		t.Fatalf("restricted.Len() = %d, want 2", restricted.Len())
	}
	if restricted.Has(2) {
		t.Error("restrict should drop uid 2 (value <= 0)")
	}
}

// TestArgBoundTieBreak: two neighbouring devices with identical
// values; argmin selects the smaller uid.
func TestArgBoundTieBreak(t *testing.T) {
	f := New(5.0) // self uid 11, self distance 5.0
	f.Set(7, 5.0) // neighbour uid 7, same distance

	uid, _ := ArgBound(f, 11, func(a, b float64) bool { return a < b })
	if uid != 7 {
		t.Errorf("argmin with tied distances = uid %d, want 7 (smaller uid wins)", uid)
	}

	// Symmetric: from 7's perspective, itself is "self" and 11 is the
	// neighbour; 7 should still win.
	f2 := New(5.0) // self uid 7
	f2.Set(11, 5.0)
	uid2, _ := ArgBound(f2, 7, func(a, b float64) bool { return a < b })
	if uid2 != 7 {
		t.Errorf("argmin from the other side = uid %d, want 7", uid2)
	}
}

func TestArgBoundStrictlyBetter(t *testing.T) {
	f := New(10)
	f.Set(2, 3)
	f.Set(4, 30)

	uid, value := ArgBound(f, 1, func(a, b int) bool { return a < b })
	if uid != 2 || value != 3 {
		t.Errorf("argmin = (%d, %d), want (2, 3)", uid, value)
	}
}
