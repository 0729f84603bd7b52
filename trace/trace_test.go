package trace

import (
	"errors"
	"math"
	"testing"
	"time"
)

func mustNew(t *testing.T, data []float64, delta float64, hdr Header) *Trace {
	t.Helper()
	tr, err := New(data, delta, time.Time{}, hdr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tr
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, 0.1, time.Time{}, Header{})
	if !errors.Is(err, ErrEmptyTrace) {
		t.Errorf("empty data: got %v, want ErrEmptyTrace", err)
	}

	_, err = New([]float64{1, 2}, 0, time.Time{}, Header{})
	if !errors.Is(err, ErrInvalidDelta) {
		t.Errorf("zero delta: got %v, want ErrInvalidDelta", err)
	}

	_, err = New([]float64{1, 2}, math.NaN(), time.Time{}, Header{})
	if !errors.Is(err, ErrInvalidDelta) {
		t.Errorf("NaN delta: got %v, want ErrInvalidDelta", err)
	}
}

func TestTraceImmutable(t *testing.T) {
	src := []float64{1, 2, 3}
	tr := mustNew(t, src, 0.1, Header{})

	// Mutating the input buffer must not affect the trace.
	src[0] = 99
	if tr.At(0) != 1 {
		t.Fatalf("trace aliases caller data: At(0) = %v", tr.At(0))
	}

	// Mutating the Data copy must not affect the trace.
	d := tr.Data()
	d[1] = 99
	if tr.At(1) != 2 {
		t.Fatalf("Data returned aliased slice: At(1) = %v", tr.At(1))
	}
}

func TestWithDataProvenance(t *testing.T) {
	tr := mustNew(t, []float64{1, 2, 3}, 0.1, Header{Component: "Z"})

	d1 := tr.WithData([]float64{4, 5, 6}, Step{Op: "a"})
	d2 := d1.WithData([]float64{7, 8, 9}, Step{Op: "b"})

	if len(tr.Provenance()) != 0 {
		t.Fatalf("original provenance modified: %v", tr.Provenance())
	}
	if len(d1.Provenance()) != 1 || d1.Provenance()[0].Op != "a" {
		t.Fatalf("d1 provenance = %v", d1.Provenance())
	}
	if len(d2.Provenance()) != 2 || d2.Provenance()[1].Op != "b" {
		t.Fatalf("d2 provenance = %v", d2.Provenance())
	}
	if d2.Header().Component != "Z" {
		t.Fatalf("header not carried through: %v", d2.Header())
	}
	if d2.Delta() != 0.1 {
		t.Fatalf("delta not carried through: %v", d2.Delta())
	}
}

func TestMirrorAtOnset(t *testing.T) {
	tr := mustNew(t, []float64{0, 1, 2, 3, 4}, 1.0, Header{Onset: 1.0})
	m := tr.MirrorAtOnset()

	want := []float64{4, 3, 2, 1, 0}
	for i, w := range want {
		if m.At(i) != w {
			t.Fatalf("sample %d = %v, want %v", i, m.At(i), w)
		}
	}
	if got := m.Header().Onset; got != 3.0 {
		t.Fatalf("mirrored onset = %v, want 3.0", got)
	}
	// Mirroring twice restores the original.
	mm := m.MirrorAtOnset()
	for i := range want {
		if mm.At(i) != tr.At(i) {
			t.Fatalf("double mirror sample %d = %v, want %v", i, mm.At(i), tr.At(i))
		}
	}
}

func TestSameShape(t *testing.T) {
	a := mustNew(t, make([]float64, 10), 0.1, Header{})
	b := mustNew(t, make([]float64, 10), 0.1, Header{})
	c := mustNew(t, make([]float64, 11), 0.1, Header{})
	d := mustNew(t, make([]float64, 10), 0.2, Header{})

	if err := SameShape(a, b); err != nil {
		t.Errorf("equal shapes: %v", err)
	}
	if err := SameShape(a, c); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("length mismatch: got %v", err)
	}
	if err := SameShape(a, d); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("delta mismatch: got %v", err)
	}
}

func TestOnsetIndex(t *testing.T) {
	tr := mustNew(t, make([]float64, 100), 0.1, Header{Onset: 2.34})
	if got := tr.OnsetIndex(); got != 23 {
		t.Fatalf("OnsetIndex = %d, want 23", got)
	}
}
