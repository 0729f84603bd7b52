// Package trace provides the seismic trace model used by all processing
// stages: immutable sample data, a sampling interval, a start time, and
// per-trace metadata (ray geometry, event parameters, component code).
//
// Traces never change after construction. Every transform produces a new
// Trace via [Trace.WithData] or [Trace.WithHeader], carrying an appended
// provenance record so the full processing chain of any derived trace can
// be reconstructed.
package trace

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Errors returned by trace construction and validation.
var (
	ErrEmptyTrace    = errors.New("trace: empty sample data")
	ErrInvalidDelta  = errors.New("trace: sampling interval must be positive")
	ErrShapeMismatch = errors.New("trace: sample count or sampling interval mismatch")
	ErrAlignment     = errors.New("trace: traces are not time-aligned")
)

// Header holds per-trace metadata supplied by the acquisition layer or
// derived during processing. Angular quantities are in degrees, depths and
// distances along rays in kilometers, slowness in s/deg.
type Header struct {
	// EventDepth is the hypocenter depth in km.
	EventDepth float64

	// Distance is the epicentral distance in degrees.
	Distance float64

	// Slowness is the horizontal slowness (ray parameter) in s/deg.
	Slowness float64

	// BackAzimuth is the station-to-event azimuth in degrees.
	BackAzimuth float64

	// Incidence is the ray incidence angle at the station in degrees,
	// measured from vertical.
	Incidence float64

	// Onset is the arrival time of the reference phase in seconds
	// relative to the trace start.
	Onset float64

	// PiercingOffset is the horizontal offset of the conversion-point
	// piercing point in km, measured along a profile line. Zero when not
	// computed.
	PiercingOffset float64

	// Component identifies the component orientation, e.g. "Z", "N",
	// "E", "R", "T", "L", "Q", "P", "SV", "SH".
	Component string
}

// Step is one immutable provenance record describing a transform applied
// to a trace.
type Step struct {
	// Op names the operation, e.g. "rotate", "deconvolve", "moveout".
	Op string

	// Detail holds the operation parameters in "key=value" form.
	Detail string
}

// Provenance is the ordered chain of transforms that produced a trace.
type Provenance []Step

// Trace is an immutable three-tuple of sample data, sampling interval and
// start time, plus metadata. Construct with New; derive with WithData.
type Trace struct {
	data  []float64
	delta float64
	start time.Time
	hdr   Header
	prov  Provenance
}

// New creates a trace from sample data. The data slice is copied, so the
// caller may reuse its buffer.
func New(data []float64, delta float64, start time.Time, hdr Header) (*Trace, error) {
	if len(data) == 0 {
		return nil, ErrEmptyTrace
	}
	if delta <= 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDelta, delta)
	}

	d := make([]float64, len(data))
	copy(d, data)

	return &Trace{data: d, delta: delta, start: start, hdr: hdr}, nil
}

// Len returns the number of samples.
func (t *Trace) Len() int { return len(t.data) }

// Delta returns the sampling interval in seconds.
func (t *Trace) Delta() float64 { return t.delta }

// SampleRate returns the sampling rate in Hz.
func (t *Trace) SampleRate() float64 { return 1 / t.delta }

// Start returns the time of the first sample.
func (t *Trace) Start() time.Time { return t.start }

// Duration returns the time span covered by the trace in seconds.
func (t *Trace) Duration() float64 { return float64(len(t.data)-1) * t.delta }

// Header returns the trace metadata.
func (t *Trace) Header() Header { return t.hdr }

// Provenance returns the chain of transforms that produced this trace.
// The returned slice must not be modified.
func (t *Trace) Provenance() Provenance { return t.prov }

// At returns the sample value at index i.
func (t *Trace) At(i int) float64 { return t.data[i] }

// Samples returns a read-only view of the sample data. Callers must not
// modify the returned slice; use Data for a private copy.
func (t *Trace) Samples() []float64 { return t.data }

// Data returns a copy of the sample data.
func (t *Trace) Data() []float64 {
	d := make([]float64, len(t.data))
	copy(d, t.data)
	return d
}

// WithData derives a new trace with the given samples, the same sampling
// interval, start time and header, and the provenance chain extended by
// step. The data slice is copied.
func (t *Trace) WithData(data []float64, step Step) *Trace {
	d := make([]float64, len(data))
	copy(d, data)

	return &Trace{
		data:  d,
		delta: t.delta,
		start: t.start,
		hdr:   t.hdr,
		prov:  t.prov.append(step),
	}
}

// WithHeader derives a new trace sharing the sample data but carrying the
// given header.
func (t *Trace) WithHeader(hdr Header) *Trace {
	return &Trace{data: t.data, delta: t.delta, start: t.start, hdr: hdr, prov: t.prov}
}

// MirrorAtOnset derives a time-reversed trace. The onset header is moved
// so that it marks the same physical arrival in the reversed trace. Used
// for S receiver functions, where the converted phase arrives before the
// direct wave.
func (t *Trace) MirrorAtOnset() *Trace {
	n := len(t.data)
	d := make([]float64, n)
	for i := range d {
		d[i] = t.data[n-1-i]
	}

	hdr := t.hdr
	hdr.Onset = t.Duration() - t.hdr.Onset

	out := t.WithData(d, Step{Op: "mirror", Detail: "axis=onset"})
	out.hdr = hdr
	return out
}

// OnsetIndex returns the sample index closest to the onset time.
func (t *Trace) OnsetIndex() int {
	i := int(math.Round(t.hdr.Onset / t.delta))
	if i < 0 {
		i = 0
	}
	if i >= len(t.data) {
		i = len(t.data) - 1
	}
	return i
}

func (p Provenance) append(step Step) Provenance {
	out := make(Provenance, len(p)+1)
	copy(out, p)
	out[len(p)] = step
	return out
}

// SameShape reports whether two traces can be combined sample-by-sample.
// It returns ErrShapeMismatch when the sample counts differ or the
// sampling intervals differ by more than a relative tolerance of 1e-6.
func SameShape(a, b *Trace) error {
	if a.Len() != b.Len() {
		return fmt.Errorf("%w: %d vs %d samples", ErrShapeMismatch, a.Len(), b.Len())
	}
	if math.Abs(a.delta-b.delta) > 1e-6*a.delta {
		return fmt.Errorf("%w: delta %v vs %v", ErrShapeMismatch, a.delta, b.delta)
	}
	return nil
}
