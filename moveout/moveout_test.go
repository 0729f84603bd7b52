package moveout

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-rf/internal/testutil"
	"github.com/cwbudde/algo-rf/trace"
)

func TestModelValidate(t *testing.T) {
	if err := IASP91().Validate(); err != nil {
		t.Fatalf("iasp91 invalid: %v", err)
	}

	bad := Model{Name: "bad", Layers: []Layer{{Thickness: 10, Vp: 3, Vs: 4}}}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidModel) {
		t.Errorf("vp<vs: got %v", err)
	}
	if err := (Model{}).Validate(); !errors.Is(err, ErrInvalidModel) {
		t.Errorf("empty model: got %v", err)
	}
}

func TestDelaySingleLayer(t *testing.T) {
	m := Model{Name: "crust", Layers: []Layer{{Thickness: 35, Vp: 6.3, Vs: 3.6}}}
	p := 0.06 // s/km

	qp := math.Sqrt(1/(6.3*6.3) - p*p)
	qs := math.Sqrt(1/(3.6*3.6) - p*p)

	tests := []struct {
		phase Phase
		want  float64
	}{
		{PhasePs, 35 * (qs - qp)},
		{PhasePpps, 35 * (qs + qp)},
		{PhasePpss, 35 * 2 * qs},
	}
	for _, tt := range tests {
		got, err := Delay(m, tt.phase, p, 35)
		if err != nil {
			t.Fatalf("%s: %v", tt.phase, err)
		}
		testutil.RequireNearlyEqual(t, got, tt.want, 1e-12)
	}
}

func TestDelayHalfSpaceContinuation(t *testing.T) {
	m := Model{Name: "crust", Layers: []Layer{{Thickness: 35, Vp: 6.3, Vs: 3.6}}}

	// Delay below the model bottom keeps growing with the bottom layer's
	// slownesses.
	t35, err := Delay(m, PhasePs, 0.06, 35)
	if err != nil {
		t.Fatal(err)
	}
	t70, err := Delay(m, PhasePs, 0.06, 70)
	if err != nil {
		t.Fatal(err)
	}
	testutil.RequireNearlyEqual(t, t70, 2*t35, 1e-12)
}

func TestDelayTurningRay(t *testing.T) {
	m := IASP91()
	// 1/3.36 km/s ~ 0.298 s/km; anything above turns in the top layer.
	if _, err := Delay(m, PhasePs, 0.31, 100); !errors.Is(err, ErrTraceTruncated) {
		t.Fatalf("got %v, want ErrTraceTruncated", err)
	}
}

func newRF(t *testing.T, data []float64, delta float64, hdr trace.Header) *trace.Trace {
	t.Helper()
	tr, err := trace.New(data, delta, time.Time{}, hdr)
	if err != nil {
		t.Fatalf("trace.New: %v", err)
	}
	return tr
}

func TestCorrectIdentity(t *testing.T) {
	const delta = 0.1
	data := testutil.SyntheticRF(35, 1.75, 6.3, 0.06, delta, 512)
	hdr := trace.Header{Slowness: 6.4, Onset: 0}
	rf := newRF(t, data, delta, hdr)

	for _, interp := range []Interpolation{InterpLinear, InterpCubic} {
		opts := DefaultOptions()
		opts.Interpolation = interp

		got, err := Correct(rf, IASP91(), 6.4, opts)
		if err != nil {
			t.Fatalf("%s: Correct: %v", interp, err)
		}
		if got.Len() != rf.Len() {
			t.Fatalf("%s: length changed: %d", interp, got.Len())
		}
		diff, err := testutil.MaxAbsDiff(got.Samples(), rf.Samples())
		if err != nil {
			t.Fatal(err)
		}
		if diff > 1e-9 {
			t.Errorf("%s: identity correction differs by %v", interp, diff)
		}
	}
}

func TestCorrectShiftsArrivals(t *testing.T) {
	const delta = 0.05
	m := IASP91()

	// A Ps pulse for a steep ray must move to the later arrival time of
	// the reference geometry when the reference ray is more grazing.
	pOwn := SlownessPerKm(4.0)
	tOwn, err := Delay(m, PhasePs, pOwn, 35)
	if err != nil {
		t.Fatal(err)
	}
	data := testutil.GaussPulse(tOwn, 0.3, delta, 1024)
	rf := newRF(t, data, delta, trace.Header{Slowness: 4.0})

	got, err := Correct(rf, m, 6.4, DefaultOptions())
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}

	pRef := SlownessPerKm(6.4)
	tRef, err := Delay(m, PhasePs, pRef, 35)
	if err != nil {
		t.Fatal(err)
	}
	if tRef <= tOwn {
		t.Fatalf("expected later reference arrival: %v <= %v", tRef, tOwn)
	}

	peak := float64(testutil.ArgMax(got.Samples())) * delta
	testutil.RequireNearlyEqual(t, peak, tRef, 2*delta)

	if got.Header().Slowness != 6.4 {
		t.Errorf("slowness header = %v, want 6.4", got.Header().Slowness)
	}
}

func TestCorrectTruncation(t *testing.T) {
	const delta = 0.1
	data := testutil.GaussPulse(5, 0.3, delta, 2048)
	// Slowness just below the surface S turning point: the ray
	// propagates at the top but turns at the faster layers below.
	rf := newRF(t, data, delta, trace.Header{Slowness: 0.29 * kmPerDeg})

	got, err := Correct(rf, IASP91(), 6.4, DefaultOptions())
	if !errors.Is(err, ErrTraceTruncated) {
		t.Fatalf("got %v, want ErrTraceTruncated", err)
	}
	if got == nil {
		t.Fatal("truncated trace not returned")
	}
	if got.Len() != rf.Len() {
		t.Fatalf("length changed: %d", got.Len())
	}
	// The tail beyond the turning depth must be zero, not extrapolated.
	tail := got.Samples()[got.Len()-1]
	if tail != 0 {
		t.Errorf("tail sample = %v, want 0", tail)
	}
}

func TestCorrectMissingSlowness(t *testing.T) {
	rf := newRF(t, make([]float64, 64), 0.1, trace.Header{})
	if _, err := Correct(rf, IASP91(), 6.4, DefaultOptions()); !errors.Is(err, ErrMissingHeader) {
		t.Fatalf("got %v, want ErrMissingHeader", err)
	}
}

func TestPiercingPointMonotone(t *testing.T) {
	m := IASP91()
	p := 0.06

	prev := 0.0
	for _, depth := range []float64{10, 35, 80, 200} {
		x, err := PiercingPoint(m, p, depth, true)
		if err != nil {
			t.Fatalf("depth %v: %v", depth, err)
		}
		if x <= prev {
			t.Fatalf("offset not increasing: %v at depth %v", x, depth)
		}
		prev = x
	}
}

func TestCorrectProvenance(t *testing.T) {
	data := testutil.GaussPulse(3, 0.3, 0.1, 256)
	rf := newRF(t, data, 0.1, trace.Header{Slowness: 6.4})

	got, err := Correct(rf, IASP91(), 6.4, DefaultOptions())
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	prov := got.Provenance()
	if len(prov) != 1 || prov[0].Op != "moveout" {
		t.Fatalf("provenance = %v", prov)
	}
}
