package logsink

import (
	"sort"

	"github.com/fcpp-project/fcpp-go/pkg/node"
)

// CombineFunc reduces a set of per-device samples for one storage tag
// into the single value a Column reports.
type CombineFunc func(samples []float64) float64

// Mean averages its samples, or reports 0 for an empty set.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}

// Sum totals its samples.
func Sum(samples []float64) float64 {
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	return sum
}

// Max reports the largest sample, or 0 for an empty set.
func Max(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	m := samples[0]
	for _, v := range samples[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// AggregatorSpec names one logged column: an aggregator summarizing
// StorageTag across the live population with Combine.
type AggregatorSpec struct {
	Name       string
	StorageTag string
	Combine    CombineFunc
}

// Aggregator subscribes to the net's per-round device population,
// computing one value per AggregatorSpec and feeding the result to a
// Logger. Fed by whatever owns the round loop (typically cmd/fcppsim
// after each scheduled tick).
type Aggregator struct {
	Specs  []AggregatorSpec
	Logger Logger
}

// Columns reports the Column set this aggregator will log, in the
// order Record writes tuple values.
func (a *Aggregator) Columns() []Column {
	cols := make([]Column, len(a.Specs))
	for i, s := range a.Specs {
		cols[i] = Column{Aggregator: s.Name, StorageTag: s.StorageTag}
	}
	return cols
}

// Record gathers every live device's value for each spec's storage
// tag (devices missing the tag are excluded from that spec's sample
// set, not treated as zero), combines it, and logs the resulting
// tuple at time now.
func (a *Aggregator) Record(now float64, devices []*node.Device) error {
	values := make([]float64, len(a.Specs))
	for i, spec := range a.Specs {
		samples := make([]float64, 0, len(devices))
		for _, dev := range devices {
			raw, ok := dev.Storage(spec.StorageTag)
			if !ok {
				continue
			}
			if v, ok := toFloat(raw); ok {
				samples = append(samples, v)
			}
		}
		sort.Float64s(samples)
		values[i] = spec.Combine(samples)
	}
	return a.Logger.Log(LogTuple{Time: now, Values: values})
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
