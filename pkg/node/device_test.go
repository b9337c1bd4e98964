package node

import "testing"

func TestNewDeviceStartsCreated(t *testing.T) {
	d := New(1, 0)
	if d.State() != Created {
		t.Fatalf("State() = %v, want Created", d.State())
	}
}

func TestRoundStartTransitionsCreatedToLive(t *testing.T) {
	d := New(1, 0)
	d.RoundStart()
	if d.State() != Live {
		t.Fatalf("State() = %v, want Live", d.State())
	}
	d.RoundStart() // idempotent on later rounds
	if d.State() != Live {
		t.Fatalf("second RoundStart changed state to %v", d.State())
	}
}

func TestRetireIsTerminal(t *testing.T) {
	d := New(1, 0)
	d.RoundStart()
	d.Retire()
	if d.State() != Retired {
		t.Fatalf("State() = %v, want Retired", d.State())
	}
}

func TestStorageRoundTrip(t *testing.T) {
	d := NewTestDevice(1, Live, nil)
	d.SetStorage("count", 5)
	v, ok := d.Storage("count")
	if !ok || v.(int) != 5 {
		t.Fatalf("Storage(count) = (%v, %v), want (5, true)", v, ok)
	}
	if _, ok := d.Storage("missing"); ok {
		t.Fatal("Storage should report false for an unset key")
	}
}

func TestStorageTupleIsSnapshot(t *testing.T) {
	d := NewTestDevice(1, Live, map[string]any{"x": 1})
	snap := d.StorageTuple()
	snap["x"] = 999
	v, _ := d.Storage("x")
	if v.(int) != 1 {
		t.Fatal("StorageTuple should return a copy, not a live view")
	}
}

func TestMailboxDrainIsOnceOnly(t *testing.T) {
	d := NewTestDevice(1, Live, nil)
	d.Receive(Envelope{SenderUID: 2, SendTime: 1.0})
	d.Receive(Envelope{SenderUID: 3, SendTime: 2.0})

	got := d.DrainMailbox()
	if len(got) != 2 {
		t.Fatalf("DrainMailbox() returned %d envelopes, want 2", len(got))
	}
	if got2 := d.DrainMailbox(); len(got2) != 0 {
		t.Fatalf("second DrainMailbox() returned %d envelopes, want 0", len(got2))
	}
}

func TestNextAndReschedule(t *testing.T) {
	d := New(1, 3.0)
	if d.Next() != 3.0 {
		t.Fatalf("Next() = %v, want 3.0", d.Next())
	}
	d.Reschedule(9.0)
	if d.Next() != 9.0 {
		t.Fatalf("Next() after reschedule = %v, want 9.0", d.Next())
	}
}
