package rf

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-rf/internal/testutil"
	"github.com/cwbudde/algo-rf/moveout"
	"github.com/cwbudde/algo-rf/rotate"
	"github.com/cwbudde/algo-rf/trace"
)

const (
	delta = 0.05
	n     = 1200
	onset = 10.0
)

// syntheticGroup builds a Z/N/E event group whose radial component is a
// scaled and delayed copy of the vertical wavelet: direct P at the onset
// with relative amplitude direct, a converted arrival psDelay seconds
// later with amplitude ps. The transverse component is silent.
func syntheticGroup(t *testing.T, direct, ps, psDelay float64) *trace.TraceGroup {
	t.Helper()

	wavelet := func(t0, amp float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			x := float64(i)*delta - t0
			out[i] = amp * math.Exp(-x*x/(2*0.2*0.2))
		}
		return out
	}

	zData := wavelet(onset, 1)
	rData := wavelet(onset, direct)
	psArr := wavelet(onset+psDelay, ps)
	for i := range rData {
		rData[i] += psArr[i]
	}

	hdr := trace.Header{BackAzimuth: 40, Slowness: 6.4, Onset: onset}
	mk := func(data []float64, comp string) *trace.Trace {
		hdr.Component = comp
		tr, err := trace.New(data, delta, time.Time{}, hdr)
		if err != nil {
			t.Fatalf("trace.New(%s): %v", comp, err)
		}
		return tr
	}

	rtz, err := trace.NewTraceGroup(mk(rData, "R"), mk(make([]float64, n), "T"), mk(zData, "Z"))
	if err != nil {
		t.Fatalf("NewTraceGroup: %v", err)
	}
	zne, err := rotate.Unrotate(rtz, rotate.ZNE2RTZ, rotate.Options{})
	if err != nil {
		t.Fatalf("Unrotate: %v", err)
	}
	return zne
}

func component(t *testing.T, g *trace.TraceGroup, code string) *trace.Trace {
	t.Helper()
	tr, err := g.Component(code)
	if err != nil {
		t.Fatalf("Component(%s): %v", code, err)
	}
	return tr
}

func TestComputeRecoversArrivals(t *testing.T) {
	const direct, ps, psDelay = 0.2, 0.5, 4.0
	g := syntheticGroup(t, direct, ps, psDelay)

	opts := DefaultOptions()
	out, err := Compute(g, opts)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	shift := opts.Deconvolution.WaterLevel.Shift
	shiftIdx := int(shift / delta)

	// The vertical receiver function is a self-deconvolution: a unit
	// pulse at zero lag.
	rfZ := component(t, out, "Z").Samples()
	if got := testutil.ArgMax(rfZ); got != shiftIdx {
		t.Errorf("Z peak at %d, want %d", got, shiftIdx)
	}
	testutil.RequireNearlyEqual(t, rfZ[shiftIdx], 1, 0.05)

	// The radial receiver function carries the two arrivals. The
	// polarity fix negates it, so look for minima.
	rfR := component(t, out, "R").Samples()
	psIdx := shiftIdx + int(psDelay/delta)
	testutil.RequireNearlyEqual(t, rfR[shiftIdx], -direct, 0.07)
	testutil.RequireNearlyEqual(t, rfR[psIdx], -ps, 0.07)

	negated := make([]float64, len(rfR))
	for i, v := range rfR {
		negated[i] = -v
	}
	if got := testutil.ArgMax(negated); got < psIdx-2 || got > psIdx+2 {
		t.Errorf("R largest arrival at %d, want near %d", got, psIdx)
	}

	// Nothing was put on the transverse component.
	rfT := component(t, out, "T").Samples()
	for i, v := range rfT {
		if math.Abs(v) > 1e-6 {
			t.Fatalf("T[%d] = %v, want silence", i, v)
		}
	}
}

func TestComputeOnsetAndProvenance(t *testing.T) {
	g := syntheticGroup(t, 0.2, 0.5, 4.0)

	opts := DefaultOptions()
	opts.Moveout = &MoveoutOptions{Model: moveout.IASP91()}
	out, err := Compute(g, opts)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	rfR := component(t, out, "R")
	if got, want := rfR.Header().Onset, opts.Deconvolution.WaterLevel.Shift; got != want {
		t.Errorf("onset = %v, want %v", got, want)
	}

	ops := map[string]bool{}
	for _, step := range rfR.Provenance() {
		ops[step.Op] = true
	}
	for _, want := range []string{"rotate", "deconvolve", "polarity", "moveout"} {
		if !ops[want] {
			t.Errorf("provenance missing %q step (have %v)", want, ops)
		}
	}
}

func TestComputeMoveoutAtReferenceIsIdentity(t *testing.T) {
	g := syntheticGroup(t, 0.2, 0.5, 4.0)

	plain, err := Compute(g, DefaultOptions())
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	opts := DefaultOptions()
	opts.Moveout = &MoveoutOptions{Model: moveout.IASP91()}
	corrected, err := Compute(g, opts)
	if err != nil {
		t.Fatalf("Compute with moveout: %v", err)
	}

	// The input slowness equals the reference slowness, so the moveout
	// stage must not move anything.
	a := component(t, plain, "R").Samples()
	b := component(t, corrected, "R").Samples()
	testutil.RequireSliceNearlyEqual(t, a, b, 1e-9)
}

func TestComputeSourceOverride(t *testing.T) {
	g := syntheticGroup(t, 0.2, 0.5, 4.0)

	opts := DefaultOptions()
	opts.Source = "R"
	out, err := Compute(g, opts)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	// Deconvolving R by itself peaks at unit amplitude.
	rfR := component(t, out, "R").Samples()
	shiftIdx := int(opts.Deconvolution.WaterLevel.Shift / delta)
	testutil.RequireNearlyEqual(t, rfR[shiftIdx], 1, 0.05)

	opts.Source = "X"
	if _, err := Compute(g, opts); !errors.Is(err, trace.ErrMissingComponent) {
		t.Errorf("unknown source: got %v", err)
	}
}

func TestComputeSWaveMirrors(t *testing.T) {
	g := syntheticGroup(t, 0.6, 0.3, 4.0)

	opts := DefaultOptions()
	opts.SWave = true
	out, err := Compute(g, opts)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	// The S pipeline deconvolves by the radial component and mirrors
	// back, so the radial receiver function is the self-deconvolution.
	rfR := component(t, out, "R")
	data := rfR.Samples()
	peak := testutil.ArgMax(data)
	testutil.RequireNearlyEqual(t, data[peak], 1, 0.05)

	for _, step := range rfR.Provenance() {
		if step.Op == "mirror" {
			return
		}
	}
	t.Error("provenance missing mirror step")
}
