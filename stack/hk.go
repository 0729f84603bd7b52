package stack

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-rf/moveout"
	"github.com/cwbudde/algo-rf/trace"
)

// UncertaintyMethod enumerates how the spread of the H-k maximum is
// estimated.
type UncertaintyMethod int

const (
	// BootstrapUncertainty resamples the contributing traces with
	// replacement and takes the standard deviation of the per-replicate
	// grid maxima.
	BootstrapUncertainty UncertaintyMethod = iota

	// JackknifeUncertainty recomputes the maximum with each trace left
	// out once and applies the jackknife variance formula.
	JackknifeUncertainty

	// NoUncertainty skips the estimate; SigmaH and SigmaK are zero.
	NoUncertainty
)

func (u UncertaintyMethod) String() string {
	switch u {
	case JackknifeUncertainty:
		return "jackknife"
	case NoUncertainty:
		return "none"
	default:
		return "bootstrap"
	}
}

// HKOptions configures the H-k grid search.
type HKOptions struct {
	// HMin, HMax, HStep define the crustal-thickness axis in km.
	HMin, HMax, HStep float64

	// KMin, KMax, KStep define the Vp/Vs axis.
	KMin, KMax, KStep float64

	// Vp is the assumed average crustal P velocity in km/s. Default 6.3.
	Vp float64

	// Weights are the phase weights for Ps, PpPs and PpSs+PsPs. The
	// third phase has negative polarity and enters with a negative sign.
	// Default {0.7, 0.2, 0.1}.
	Weights [3]float64

	// Uncertainty selects the spread estimator for the grid maximum.
	Uncertainty UncertaintyMethod

	// BootstrapSamples is the number of bootstrap replicates. Default
	// 200.
	BootstrapSamples int

	// Seed makes the bootstrap deterministic.
	Seed int64
}

// DefaultHKOptions returns a standard continental-crust search grid.
func DefaultHKOptions() HKOptions {
	return HKOptions{
		HMin: 20, HMax: 60, HStep: 0.5,
		KMin: 1.6, KMax: 2.0, KStep: 0.01,
		Vp:               6.3,
		Weights:          [3]float64{0.7, 0.2, 0.1},
		Uncertainty:      BootstrapUncertainty,
		BootstrapSamples: 200,
		Seed:             1,
	}
}

// HKResult is the stacked grid with its best-fit location and
// uncertainty.
type HKResult struct {
	// Hs and Ks are the grid axes.
	Hs, Ks []float64

	// Grid holds the stacked amplitude per (H, k) cell, normalized by
	// the trace count: Grid[i][j] belongs to (Hs[i], Ks[j]).
	Grid [][]float64

	// H, K and Amp locate the global maximum.
	H, K, Amp float64

	// SigmaH and SigmaK are the estimated spreads of the maximum.
	SigmaH, SigmaK float64

	// N is the number of traces stacked.
	N int
}

// HKStack grid-searches crustal thickness H and Vp/Vs ratio k: for every
// cell it predicts the Ps, PpPs and PpSs+PsPs arrival times from each
// trace's ray parameter, samples the receiver-function amplitude at
// those times, and sums the weighted combination across traces. Cell
// accumulation is commutative, so the result does not depend on input
// order.
//
// Trace time axes are interpreted relative to their onset header (zero
// lag of the receiver function).
func HKStack(rfs []*trace.Trace, opts HKOptions) (*HKResult, error) {
	if len(rfs) == 0 {
		return nil, ErrNoTraces
	}
	if opts.HStep <= 0 || opts.KStep <= 0 || opts.HMax <= opts.HMin || opts.KMax <= opts.KMin {
		return nil, fmt.Errorf("stack: invalid H-k grid: H [%g,%g,%g] k [%g,%g,%g]",
			opts.HMin, opts.HMax, opts.HStep, opts.KMin, opts.KMax, opts.KStep)
	}
	if opts.Vp <= 0 {
		opts.Vp = 6.3
	}
	if opts.Weights == [3]float64{} {
		opts.Weights = [3]float64{0.7, 0.2, 0.1}
	}
	if opts.BootstrapSamples <= 0 {
		opts.BootstrapSamples = 200
	}

	hs := gridAxis(opts.HMin, opts.HMax, opts.HStep)
	ks := gridAxis(opts.KMin, opts.KMax, opts.KStep)
	cells := len(hs) * len(ks)

	// One flattened grid per trace; the total and every resampled
	// estimate are sums of these, which keeps accumulation associative.
	perTrace := make([][]float64, len(rfs))
	for i, rf := range rfs {
		g, err := hkTraceGrid(rf, hs, ks, opts)
		if err != nil {
			return nil, fmt.Errorf("trace %d: %w", i, err)
		}
		perTrace[i] = g
	}

	total := make([]float64, cells)
	for _, g := range perTrace {
		floats.Add(total, g)
	}
	floats.Scale(1/float64(len(rfs)), total)

	bestH, bestK, amp := gridMax(total, hs, ks)

	res := &HKResult{
		Hs:   hs,
		Ks:   ks,
		Grid: unflatten(total, len(hs), len(ks)),
		H:    bestH, K: bestK, Amp: amp,
		N: len(rfs),
	}

	switch opts.Uncertainty {
	case BootstrapUncertainty:
		res.SigmaH, res.SigmaK = bootstrapSigma(perTrace, hs, ks, opts)
	case JackknifeUncertainty:
		res.SigmaH, res.SigmaK = jackknifeSigma(perTrace, total, hs, ks, len(rfs))
	}
	return res, nil
}

// hkTraceGrid evaluates the weighted phase amplitudes of one receiver
// function over the whole grid.
func hkTraceGrid(rf *trace.Trace, hs, ks []float64, opts HKOptions) ([]float64, error) {
	hdr := rf.Header()
	if hdr.Slowness <= 0 {
		return nil, fmt.Errorf("%w: slowness", ErrMissingHeader)
	}
	p := moveout.SlownessPerKm(hdr.Slowness)

	qpSq := 1/(opts.Vp*opts.Vp) - p*p
	if qpSq <= 0 {
		return nil, fmt.Errorf("stack: slowness %.4f s/km evanescent for vp=%.2f", p, opts.Vp)
	}
	qp := math.Sqrt(qpSq)

	data := rf.Samples()
	delta := rf.Delta()
	onset := hdr.Onset

	sampleAt := func(t float64) float64 {
		x := (onset + t) / delta
		i := int(math.Floor(x))
		if i < 0 || i >= len(data)-1 {
			return 0
		}
		frac := x - float64(i)
		return data[i] + frac*(data[i+1]-data[i])
	}

	w := opts.Weights
	grid := make([]float64, len(hs)*len(ks))
	for j, k := range ks {
		vs := opts.Vp / k
		qsSq := 1/(vs*vs) - p*p
		if qsSq <= 0 {
			continue
		}
		qs := math.Sqrt(qsSq)
		for i, h := range hs {
			tPs := h * (qs - qp)
			tPpps := h * (qs + qp)
			tPpss := 2 * h * qs
			grid[i*len(ks)+j] = w[0]*sampleAt(tPs) + w[1]*sampleAt(tPpps) - w[2]*sampleAt(tPpss)
		}
	}
	return grid, nil
}

func gridAxis(min, max, step float64) []float64 {
	n := int(math.Floor((max-min)/step+1e-9)) + 1
	axis := make([]float64, n)
	for i := range axis {
		axis[i] = min + float64(i)*step
	}
	return axis
}

func gridMax(grid, hs, ks []float64) (h, k, amp float64) {
	best := 0
	for i, v := range grid {
		if v > grid[best] {
			best = i
		}
	}
	return hs[best/len(ks)], ks[best%len(ks)], grid[best]
}

func unflatten(grid []float64, nh, nk int) [][]float64 {
	out := make([][]float64, nh)
	for i := range out {
		out[i] = grid[i*nk : (i+1)*nk]
	}
	return out
}

// bootstrapSigma resamples traces with replacement and measures the
// spread of the grid maxima.
func bootstrapSigma(perTrace [][]float64, hs, ks []float64, opts HKOptions) (sigmaH, sigmaK float64) {
	n := len(perTrace)
	if n < 2 {
		return 0, 0
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	cells := len(hs) * len(ks)

	hsBoot := make([]float64, opts.BootstrapSamples)
	ksBoot := make([]float64, opts.BootstrapSamples)
	sum := make([]float64, cells)
	for b := 0; b < opts.BootstrapSamples; b++ {
		for i := range sum {
			sum[i] = 0
		}
		for t := 0; t < n; t++ {
			floats.Add(sum, perTrace[rng.Intn(n)])
		}
		hsBoot[b], ksBoot[b], _ = gridMax(sum, hs, ks)
	}
	return stat.StdDev(hsBoot, nil), stat.StdDev(ksBoot, nil)
}

// jackknifeSigma applies the leave-one-out variance formula to the grid
// maxima.
func jackknifeSigma(perTrace [][]float64, total, hs, ks []float64, n int) (sigmaH, sigmaK float64) {
	if n < 2 {
		return 0, 0
	}
	hsJack := make([]float64, n)
	ksJack := make([]float64, n)
	loo := make([]float64, len(total))
	for i := 0; i < n; i++ {
		// total is normalized by n; undo that before removing trace i.
		for c := range loo {
			loo[c] = total[c]*float64(n) - perTrace[i][c]
		}
		hsJack[i], ksJack[i], _ = gridMax(loo, hs, ks)
	}

	mh := stat.Mean(hsJack, nil)
	mk := stat.Mean(ksJack, nil)
	var vh, vk float64
	for i := 0; i < n; i++ {
		vh += (hsJack[i] - mh) * (hsJack[i] - mh)
		vk += (ksJack[i] - mk) * (ksJack[i] - mk)
	}
	f := float64(n-1) / float64(n)
	return math.Sqrt(f * vh), math.Sqrt(f * vk)
}
