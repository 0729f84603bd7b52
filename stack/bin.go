package stack

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-rf/trace"
)

// Errors returned by stacking functions.
var (
	ErrNoTraces      = errors.New("stack: no input traces")
	ErrMissingHeader = errors.New("stack: required header field missing")
)

// KeyKind identifies the binning dimension.
type KeyKind int

const (
	// KindAll stacks every trace into a single bin.
	KindAll KeyKind = iota

	// KindSlowness bins by ray-parameter interval.
	KindSlowness

	// KindBackAzimuth bins by back-azimuth sector.
	KindBackAzimuth

	// KindEventDepth bins by hypocenter-depth interval.
	KindEventDepth

	// KindOffset bins by piercing-point offset interval along a profile.
	KindOffset
)

func (k KeyKind) String() string {
	switch k {
	case KindSlowness:
		return "slowness"
	case KindBackAzimuth:
		return "backazimuth"
	case KindEventDepth:
		return "eventdepth"
	case KindOffset:
		return "offset"
	default:
		return "all"
	}
}

// Key identifies one stack bin: a binning dimension and an interval
// index along it.
type Key struct {
	Kind  KeyKind
	Index int
}

// String returns a compact bin label.
func (k Key) String() string { return fmt.Sprintf("%s[%d]", k.Kind, k.Index) }

// Binner maps a trace header to its bin key. The second return value is
// false when the trace falls outside the binning scheme and must be
// skipped.
type Binner func(hdr trace.Header) (Key, bool)

// All stacks every trace into one bin.
func All() Binner {
	return func(trace.Header) (Key, bool) { return Key{Kind: KindAll}, true }
}

// BySlowness bins by slowness intervals of the given width in s/deg.
func BySlowness(width float64) Binner {
	return func(hdr trace.Header) (Key, bool) {
		if hdr.Slowness <= 0 || width <= 0 {
			return Key{}, false
		}
		return Key{Kind: KindSlowness, Index: int(math.Floor(hdr.Slowness / width))}, true
	}
}

// ByBackAzimuth bins by back-azimuth sectors of the given width in
// degrees.
func ByBackAzimuth(sector float64) Binner {
	return func(hdr trace.Header) (Key, bool) {
		if sector <= 0 {
			return Key{}, false
		}
		baz := math.Mod(hdr.BackAzimuth, 360)
		if baz < 0 {
			baz += 360
		}
		return Key{Kind: KindBackAzimuth, Index: int(math.Floor(baz / sector))}, true
	}
}

// ByEventDepth bins by hypocenter-depth intervals of the given width in
// km.
func ByEventDepth(width float64) Binner {
	return func(hdr trace.Header) (Key, bool) {
		if width <= 0 || hdr.EventDepth < 0 {
			return Key{}, false
		}
		return Key{Kind: KindEventDepth, Index: int(math.Floor(hdr.EventDepth / width))}, true
	}
}

// ByOffsetEdges bins by piercing-point offset into the half-open
// intervals defined by the given ascending edges; traces outside the
// edges are skipped.
func ByOffsetEdges(edges []float64) Binner {
	return func(hdr trace.Header) (Key, bool) {
		x := hdr.PiercingOffset
		for i := 0; i+1 < len(edges); i++ {
			if x >= edges[i] && x < edges[i+1] {
				return Key{Kind: KindOffset, Index: i}, true
			}
		}
		return Key{}, false
	}
}

// Options configures quality gating during accumulation.
type Options struct {
	// MinQuality rejects traces whose quality score is below the
	// threshold. Zero admits everything.
	MinQuality float64

	// WeightByQuality weights each trace by its quality score instead of
	// uniformly.
	WeightByQuality bool
}

// Bin is one aggregated stack cell.
type Bin struct {
	Key Key

	// Count is the number of traces accumulated.
	Count int

	// Weight is the total accumulated weight.
	Weight float64

	// Mean is the weighted mean trace.
	Mean *trace.Trace

	// StdErr is the per-sample standard error of the mean.
	StdErr []float64
}

// binState is the running accumulation for one key: weighted sums of the
// samples and their squares, which commute and associate so Add and
// Merge order never matters.
type binState struct {
	template *trace.Trace
	count    int
	wsum     float64
	sum      []float64
	sumsq    []float64
}

// Accumulator collects receiver functions into bins. A zero-valued
// Accumulator is not usable; construct with NewAccumulator. Accumulators
// are not safe for concurrent mutation; use one per worker and Merge.
type Accumulator struct {
	binner   Binner
	opts     Options
	bins     map[Key]*binState
	rejected int
}

// NewAccumulator creates an accumulator with the given binning scheme.
func NewAccumulator(binner Binner, opts Options) *Accumulator {
	if binner == nil {
		binner = All()
	}
	return &Accumulator{binner: binner, opts: opts, bins: make(map[Key]*binState)}
}

// Add accumulates one receiver function with its quality score. Traces
// below the quality threshold or outside the binning scheme are counted
// as rejected, not errors. The first trace of a bin fixes the bin's
// shape; later mismatches return trace.ErrShapeMismatch.
func (a *Accumulator) Add(rf *trace.Trace, quality float64) error {
	if quality < a.opts.MinQuality {
		a.rejected++
		return nil
	}
	key, ok := a.binner(rf.Header())
	if !ok {
		a.rejected++
		return nil
	}

	w := 1.0
	if a.opts.WeightByQuality {
		w = math.Max(quality, 0)
		if w == 0 {
			a.rejected++
			return nil
		}
	}

	st := a.bins[key]
	if st == nil {
		st = &binState{
			template: rf,
			sum:      make([]float64, rf.Len()),
			sumsq:    make([]float64, rf.Len()),
		}
		a.bins[key] = st
	} else if err := trace.SameShape(st.template, rf); err != nil {
		return err
	}

	data := rf.Samples()
	floats.AddScaled(st.sum, w, data)
	for i, v := range data {
		st.sumsq[i] += w * v * v
	}
	st.wsum += w
	st.count++
	return nil
}

// Merge folds another accumulator's partial sums into this one. Both must
// use compatible binning; bins with mismatched shapes return
// trace.ErrShapeMismatch.
func (a *Accumulator) Merge(other *Accumulator) error {
	for key, st := range other.bins {
		dst := a.bins[key]
		if dst == nil {
			cp := &binState{
				template: st.template,
				count:    st.count,
				wsum:     st.wsum,
				sum:      append([]float64(nil), st.sum...),
				sumsq:    append([]float64(nil), st.sumsq...),
			}
			a.bins[key] = cp
			continue
		}
		if err := trace.SameShape(dst.template, st.template); err != nil {
			return err
		}
		floats.Add(dst.sum, st.sum)
		floats.Add(dst.sumsq, st.sumsq)
		dst.wsum += st.wsum
		dst.count += st.count
	}
	a.rejected += other.rejected
	return nil
}

// Rejected returns the number of traces skipped by quality gating or
// binning.
func (a *Accumulator) Rejected() int { return a.rejected }

// Bins returns the aggregated bins sorted by key.
func (a *Accumulator) Bins() []Bin {
	out := make([]Bin, 0, len(a.bins))
	for key, st := range a.bins {
		out = append(out, finishBin(key, st))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Kind != out[j].Key.Kind {
			return out[i].Key.Kind < out[j].Key.Kind
		}
		return out[i].Key.Index < out[j].Key.Index
	})
	return out
}

func finishBin(key Key, st *binState) Bin {
	n := len(st.sum)
	mean := make([]float64, n)
	stderr := make([]float64, n)
	for i := 0; i < n; i++ {
		m := st.sum[i] / st.wsum
		mean[i] = m
		if st.count > 1 {
			v := st.sumsq[i]/st.wsum - m*m
			if v < 0 {
				v = 0
			}
			stderr[i] = math.Sqrt(v / float64(st.count))
		}
	}

	tr := st.template.WithData(mean, trace.Step{
		Op:     "stack",
		Detail: fmt.Sprintf("bin=%s count=%d", key, st.count),
	})

	return Bin{Key: key, Count: st.count, Weight: st.wsum, Mean: tr, StdErr: stderr}
}
