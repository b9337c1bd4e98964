package programs

import (
	"context"
	"testing"

	"github.com/fcpp-project/fcpp-go/pkg/engine"
	"github.com/fcpp-project/fcpp-go/pkg/node"
)

// exchangeAll wires every device's latest export into every other
// device's context, mirroring a fully-connected population for a
// single round boundary without a scheduler/transport.
func exchangeAll(devs []*node.Device, now, retainWindow float64) {
	for _, a := range devs {
		for _, b := range devs {
			if a.UID == b.UID {
				continue
			}
			a.Context().Insert(b.UID, now, now, retainWindow, b.Export())
		}
	}
}

// TestGossipMinConverges: three
// fully-connected devices with initial values {5, 2, 9} converge to
// the population minimum (2) in their "gossip" storage value.
func TestGossipMinConverges(t *testing.T) {
	uids := []uint32{1, 2, 3}
	initial := map[uint32]int64{1: 5, 2: 2, 3: 9}

	devs := make([]*node.Device, len(uids))
	engines := make([]*engine.Engine, len(uids))
	for i, uid := range uids {
		devs[i] = node.New(uid, 0)
		engines[i] = engine.New(i, 10.0)
	}

	for round := 0; round < 2; round++ {
		now := float64(round)
		for i, dev := range devs {
			prog := GossipMin(initial[dev.UID])
			if err := engines[i].Round(context.Background(), dev, now, prog); err != nil {
				t.Fatalf("round %d device %d: %v", round, dev.UID, err)
			}
		}
		exchangeAll(devs, now, 10.0)
	}

	for _, dev := range devs {
		v, ok := dev.Storage("gossip")
		if !ok {
			t.Fatalf("device %d: no gossip storage value", dev.UID)
		}
		if v.(int64) != 2 {
			t.Errorf("device %d: gossip = %v, want 2", dev.UID, v)
		}
	}
}

// TestCollectSumLinearChain: a chain
// 0-1-2 with 0 as sink; device 1 reports 3, device 2 reports 4; the
// sink's collected sum converges to 7.
func TestCollectSumLinearChain(t *testing.T) {
	d0 := node.New(0, 0)
	d1 := node.New(1, 0)
	d2 := node.New(2, 0)
	e0 := engine.New(0, 10.0)
	e1 := engine.New(1, 10.0)
	e2 := engine.New(2, 10.0)

	progSink := CollectSum(true, 0)
	prog1 := CollectSum(false, 3)
	prog2 := CollectSum(false, 4)

	arcs := map[uint32][]uint32{0: {1}, 1: {0, 2}, 2: {1}}
	exchange := func(now float64) {
		for uid, nbrs := range arcs {
			var self *node.Device
			for _, d := range []*node.Device{d0, d1, d2} {
				if d.UID == uid {
					self = d
				}
			}
			for _, nbrUID := range nbrs {
				for _, d := range []*node.Device{d0, d1, d2} {
					if d.UID == nbrUID {
						self.Context().Insert(nbrUID, now, now, 10.0, d.Export())
					}
				}
			}
		}
	}

	for round := 0; round < 4; round++ {
		now := float64(round)
		if err := e0.Round(context.Background(), d0, now, progSink); err != nil {
			t.Fatalf("round %d d0: %v", round, err)
		}
		if err := e1.Round(context.Background(), d1, now, prog1); err != nil {
			t.Fatalf("round %d d1: %v", round, err)
		}
		if err := e2.Round(context.Background(), d2, now, prog2); err != nil {
			t.Fatalf("round %d d2: %v", round, err)
		}
		exchange(now)
	}

	got, ok := d0.Storage("collected")
	if !ok {
		t.Fatal("sink has no collected storage value")
	}
	if got.(int64) != 7 {
		t.Errorf("collected = %v, want 7", got)
	}
}

// TestBranchParitySplitsWithoutCrossContamination: an even- and an
// odd-uid device run disjoint branches
// and each publishes its own branch value without seeing the other's
// branch-internal trace.
func TestBranchParitySplitsWithoutCrossContamination(t *testing.T) {
	dEven := node.New(2, 0)
	dOdd := node.New(1, 0)
	eEven := engine.New(1, 10.0)
	eOdd := engine.New(2, 10.0)

	if err := eEven.Round(context.Background(), dEven, 0, BranchParity(42)); err != nil {
		t.Fatalf("even round: %v", err)
	}
	if err := eOdd.Round(context.Background(), dOdd, 0, BranchParity(7)); err != nil {
		t.Fatalf("odd round: %v", err)
	}

	vEven, ok := dEven.Storage("branch")
	if !ok || vEven.(int64) != 42 {
		t.Errorf("even device branch = %v, %v, want 42, true", vEven, ok)
	}
	vOdd, ok := dOdd.Storage("branch")
	if !ok || vOdd.(int64) != 7 {
		t.Errorf("odd device branch = %v, %v, want 7, true", vOdd, ok)
	}
}
