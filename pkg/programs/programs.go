// Package programs holds a handful of minimal aggregate programs
// written directly against pkg/engine's old/nbr/share/branch
// primitives. These are not a reusable coordination library — the
// domain-specific aggregate language itself is out of scope — they
// exist only to drive the testable scenarios and to give cmd/fcppsim
// something to run.
package programs

import (
	"math"

	"github.com/fcpp-project/fcpp-go/pkg/engine"
	"github.com/fcpp-project/fcpp-go/pkg/field"
)

const (
	tagGossip   = 1
	tagDistance = 2
	tagCollect  = 3
	tagBranch   = 4
	tagInner    = 5
)

// GossipMin is the classic gossip-minimum program: every device nbr-shares
// its running minimum and converges, after enough rounds for the
// value to propagate across the population's diameter, to the
// population-wide minimum. self is the device's own initial value.
// The converged value is published to storage key "gossip" so
// pkg/logsink can log it.
func GossipMin(self int64) engine.Program {
	return func(r *engine.Round) {
		v := engine.Nbr(r, tagGossip, self, func(f field.Field[int64]) int64 {
			_, min := field.ArgBound(f, r.UID(), func(a, b int64) bool { return a < b })
			return min
		})
		r.SetStorage("gossip", v)
	}
}

// CollectSum is a single-path collection toward a sink along a
// distance field, accumulating each
// device's own value plus its children's (farther-from-sink
// neighbours') reported sums via a sum accumulator. isSink marks the
// device as distance 0; value is the device's own contribution (0 for
// the sink, which has nothing of its own to report). The accumulated
// sum is published to storage key "collected"; the converged distance
// estimate to "distance".
func CollectSum(isSink bool, value int64) engine.Program {
	return func(r *engine.Round) {
		init := 0.0
		if !isSink {
			init = math.Inf(1)
		}

		var neighbourDist field.Field[float64]
		dist := engine.Share(r, tagDistance, init, func(f field.Field[float64]) float64 {
			neighbourDist = f
			if isSink {
				return 0
			}
			_, min := field.ArgBound(f, r.UID(), func(a, b float64) bool { return a < b })
			return min + 1
		})

		sum := engine.Nbr(r, tagCollect, value, func(f field.Field[int64]) int64 {
			total := value
			for _, uid := range f.UIDs() {
				if neighbourDist.At(uid) > dist {
					total += f.At(uid)
				}
			}
			return total
		})
		r.SetStorage("collected", sum)
		r.SetStorage("distance", dist)
	}
}

// BranchParity is a branch-alignment demo: devices split on the
// parity of their uid and run disjoint branches, each projecting an
// inner field so alignment can be checked from the outside (an even
// device sees no contribution from odd devices at the inner trace
// rooted in the odd branch, and vice versa). value is published to
// storage key "branch".
func BranchParity(selfValue int64) engine.Program {
	return func(r *engine.Round) {
		even := r.UID()%2 == 0
		v := engine.Branch(r, tagBranch, even,
			func() int64 {
				return engine.Nbr(r, tagInner, selfValue, func(f field.Field[int64]) int64 { return f.Default })
			},
			func() int64 {
				return engine.Old(r, tagInner, selfValue, func(p int64) int64 { return p })
			},
		)
		r.SetStorage("branch", v)
	}
}
