package moveout

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/cwbudde/algo-rf/trace"
)

// Interpolation selects how the corrected trace is resampled onto the
// stretched time axis.
type Interpolation int

const (
	// InterpLinear resamples with two-point linear interpolation.
	InterpLinear Interpolation = iota

	// InterpCubic resamples with a natural cubic spline.
	InterpCubic
)

// String returns the interpolation name.
func (i Interpolation) String() string {
	switch i {
	case InterpCubic:
		return "cubic"
	default:
		return "linear"
	}
}

// Options configures moveout correction.
type Options struct {
	// Phase is the converted phase whose delay curve defines the time
	// mapping. Default PhasePs.
	Phase Phase

	// Interpolation selects the resampling kernel. Default InterpLinear.
	Interpolation Interpolation

	// DepthStep is the depth-grid spacing in km used to tabulate the
	// delay curves. Default 0.5.
	DepthStep float64
}

// DefaultOptions returns Ps moveout with linear resampling.
func DefaultOptions() Options {
	return Options{Phase: PhasePs, Interpolation: InterpLinear, DepthStep: 0.5}
}

// DefaultReferenceSlowness is the conventional reference ray parameter of
// 6.4 s/deg used for teleseismic P receiver functions.
const DefaultReferenceSlowness = 6.4

// maxGridDepth caps the tabulated conversion depth so the correction
// always terminates, far below any depth a realistic trace length maps
// to.
const maxGridDepth = 1500.0

// Correct maps each post-onset sample of rf from its own ray parameter to
// the reference slowness refSlowness (s/deg) using the model's delay
// curves, and resamples the trace onto the stretched axis. The output has
// the same sample count; the slowness header is set to the reference.
//
// When the ray turns before reaching the depth implied by the end of the
// trace, the unreachable part is zero-filled and the truncated trace is
// returned together with ErrTraceTruncated.
func Correct(rf *trace.Trace, m Model, refSlowness float64, opts Options) (*trace.Trace, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	hdr := rf.Header()
	if hdr.Slowness <= 0 {
		return nil, ErrMissingHeader
	}
	if refSlowness <= 0 {
		refSlowness = DefaultReferenceSlowness
	}
	if opts.DepthStep <= 0 {
		opts.DepthStep = 0.5
	}

	pOwn := SlownessPerKm(hdr.Slowness)
	pRef := SlownessPerKm(refSlowness)

	n := rf.Len()
	delta := rf.Delta()
	i0 := rf.OnsetIndex()
	maxTime := float64(n-1-i0) * delta

	tOwn, tRef, truncErr := delayCurves(m, opts.Phase, pOwn, pRef, opts.DepthStep, maxTime)

	out := make([]float64, n)
	copy(out[:i0+1], rf.Samples()[:i0+1])

	sample := sampler(rf, i0, opts.Interpolation)

	truncated := false
	last := len(tRef) - 1
	for i := i0 + 1; i < n; i++ {
		t := float64(i-i0) * delta
		if t > tRef[last] {
			// Beyond the reachable depth range: zero-fill.
			truncated = true
			continue
		}
		j := searchSegment(tRef, t)
		var frac float64
		if dt := tRef[j+1] - tRef[j]; dt > 0 {
			frac = (t - tRef[j]) / dt
		}
		tIn := tOwn[j] + frac*(tOwn[j+1]-tOwn[j])
		if tIn < 0 || tIn > maxTime {
			truncated = true
			continue
		}
		out[i] = sample(tIn)
	}

	step := trace.Step{
		Op: "moveout",
		Detail: fmt.Sprintf("model=%s phase=%s ref=%g interp=%s",
			m.Name, opts.Phase, refSlowness, opts.Interpolation),
	}
	corrected := rf.WithData(out, step)
	hdr.Slowness = refSlowness
	corrected = corrected.WithHeader(hdr)

	if truncErr != nil && truncated {
		return corrected, truncErr
	}
	if truncated {
		return corrected, fmt.Errorf("%w: stretched axis exceeds trace length", ErrTraceTruncated)
	}
	return corrected, nil
}

// delayCurves tabulates the phase delay versus conversion depth at the
// trace's own and the reference slowness. Tabulation stops when both
// curves cover maxTime, when the ray turns, or at the hard depth cap.
// The returned error is non-nil only for turning rays.
func delayCurves(m Model, phase Phase, pOwn, pRef, depthStep, maxTime float64) (tOwn, tRef []float64, err error) {
	tOwn = []float64{0}
	tRef = []float64{0}

	for depth := depthStep; depth <= maxGridDepth; depth += depthStep {
		own, errOwn := Delay(m, phase, pOwn, depth)
		ref, errRef := Delay(m, phase, pRef, depth)
		if errOwn != nil || errRef != nil {
			err = errors.Join(errOwn, errRef)
			return tOwn, tRef, err
		}
		tOwn = append(tOwn, own)
		tRef = append(tRef, ref)
		if own > maxTime && ref > maxTime {
			break
		}
	}
	return tOwn, tRef, nil
}

// searchSegment returns the index j with ts[j] <= t <= ts[j+1] by binary
// search over the monotone delay table.
func searchSegment(ts []float64, t float64) int {
	lo, hi := 0, len(ts)-2
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if ts[mid] <= t {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// sampler returns a function evaluating the post-onset part of the trace
// at an arbitrary time offset from onset.
func sampler(tr *trace.Trace, i0 int, kind Interpolation) func(t float64) float64 {
	data := tr.Samples()[i0:]
	delta := tr.Delta()

	if kind == InterpCubic {
		xs := make([]float64, len(data))
		for i := range xs {
			xs[i] = float64(i) * delta
		}
		var spline interp.NaturalCubic
		if err := spline.Fit(xs, data); err == nil {
			last := xs[len(xs)-1]
			return func(t float64) float64 {
				if t < 0 || t > last {
					return 0
				}
				return spline.Predict(t)
			}
		}
		// Spline fit only fails for degenerate abscissae; fall back to
		// linear in that case.
	}

	return func(t float64) float64 {
		x := t / delta
		i := int(math.Floor(x))
		if i < 0 || i >= len(data) {
			return 0
		}
		if i == len(data)-1 {
			return data[i]
		}
		frac := x - float64(i)
		return data[i] + frac*(data[i+1]-data[i])
	}
}
