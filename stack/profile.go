package stack

import (
	"github.com/cwbudde/algo-rf/trace"
)

// Profile stacks receiver functions into lateral distance bins along a
// profile line, keyed by the piercing-point offset header. The edges
// slice defines the half-open bin intervals in km; traces outside every
// interval are skipped. Each input carries its quality score for the
// optional gate in opts.
func Profile(rfs []*trace.Trace, qualities []float64, edges []float64, opts Options) ([]Bin, error) {
	if len(rfs) == 0 {
		return nil, ErrNoTraces
	}

	acc := NewAccumulator(ByOffsetEdges(edges), opts)
	for i, rf := range rfs {
		q := 1.0
		if i < len(qualities) {
			q = qualities[i]
		}
		if err := acc.Add(rf, q); err != nil {
			return nil, err
		}
	}
	return acc.Bins(), nil
}
