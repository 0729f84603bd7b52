package deconv

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-rf/trace"
)

// Errors returned by deconvolution functions.
var (
	// ErrNumerical indicates a degenerate input: an all-zero source
	// spectrum, zero response energy, or non-finite sample data.
	ErrNumerical = errors.New("deconv: degenerate spectrum")

	// ErrInvalidOptions indicates an out-of-range configuration value.
	ErrInvalidOptions = errors.New("deconv: invalid options")
)

// Method enumerates the deconvolution algorithms.
type Method int

const (
	// WaterLevel performs frequency-domain division with a damping floor
	// at a fraction of the source spectrum's peak power.
	WaterLevel Method = iota

	// Iterative performs greedy time-domain matching pursuit.
	Iterative

	// Multitaper averages sine-tapered spectral estimates before
	// dividing.
	Multitaper
)

// String returns the method name used in provenance records.
func (m Method) String() string {
	switch m {
	case WaterLevel:
		return "waterlevel"
	case Iterative:
		return "iterative"
	case Multitaper:
		return "multitaper"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// WaterLevelOptions configures frequency-domain deconvolution.
type WaterLevelOptions struct {
	// WaterLevel is the damping floor as a fraction of the source
	// spectrum's peak power. Default 0.05.
	WaterLevel float64

	// GaussWidth is the Gaussian low-pass width parameter a in 1/s; the
	// filter is exp(-omega^2 / (4 a^2)). Default 2.5.
	GaussWidth float64

	// Shift is the acausal lead in seconds: the receiver function's zero
	// lag is moved to this time from trace start. Default 10 s.
	Shift float64

	// Normalize scales the output so that deconvolving a trace against
	// itself yields unit amplitude at zero lag. Default true (zero value
	// of NoNormalize).
	NoNormalize bool
}

// IterativeOptions configures time-domain matching-pursuit deconvolution.
type IterativeOptions struct {
	// MaxIterations bounds the number of spikes picked. Default 200.
	MaxIterations int

	// MinImprovement is the convergence threshold: iteration stops when
	// the gain in variance reduction falls below this value. Default
	// 0.001.
	MinImprovement float64

	// GaussWidth is the Gaussian low-pass width parameter a in 1/s.
	// Default 2.5.
	GaussWidth float64

	// Shift is the acausal lead in seconds. Default 10 s.
	Shift float64

	// OnlyPositive restricts spike picking to positive amplitudes.
	OnlyPositive bool
}

// MultitaperOptions configures multitaper spectral deconvolution.
type MultitaperOptions struct {
	// Tapers is the number of sine tapers averaged. Default 5.
	Tapers int

	// WaterLevel is the damping floor as a fraction of the averaged
	// source spectrum's peak power. Default 0.05.
	WaterLevel float64

	// GaussWidth is the Gaussian low-pass width parameter a in 1/s.
	// Default 2.5.
	GaussWidth float64

	// Shift is the acausal lead in seconds. Default 10 s.
	Shift float64
}

// Options selects the method and carries its configuration payload.
type Options struct {
	Method     Method
	WaterLevel WaterLevelOptions
	Iterative  IterativeOptions
	Multitaper MultitaperOptions
}

// DefaultOptions returns water-level deconvolution with standard
// parameters.
func DefaultOptions() Options {
	return Options{
		Method:     WaterLevel,
		WaterLevel: WaterLevelOptions{WaterLevel: 0.05, GaussWidth: 2.5, Shift: 10},
		Iterative:  IterativeOptions{MaxIterations: 200, MinImprovement: 0.001, GaussWidth: 2.5, Shift: 10},
		Multitaper: MultitaperOptions{Tapers: 5, WaterLevel: 0.05, GaussWidth: 2.5, Shift: 10},
	}
}

// Result is a receiver function with its quality annotations.
type Result struct {
	// RF is the receiver-function trace. Same length and sampling
	// interval as the inputs; the onset header marks zero lag.
	RF *trace.Trace

	// Method is the algorithm that produced the trace.
	Method Method

	// Fit is the variance reduction of the reconvolved receiver function
	// against the response component, in [ -inf, 1 ].
	Fit float64

	// Iterations is the number of matching-pursuit iterations used.
	// Zero for the spectral methods.
	Iterations int

	// Converged reports whether the iterative method met its convergence
	// threshold before MaxIterations. Always true for the spectral
	// methods. A false value is a warning, not an error: the trace is
	// still returned and Fit tells the caller how good it is.
	Converged bool

	// Shift is the acausal lead in seconds applied to the output.
	Shift float64
}

// Deconvolve recovers the receiver function relating the source component
// to the response component. Both traces must have equal length and
// sampling interval (trace.ErrShapeMismatch otherwise); an all-zero or
// non-finite source raises ErrNumerical.
func Deconvolve(response, source *trace.Trace, opts Options) (*Result, error) {
	if err := trace.SameShape(response, source); err != nil {
		return nil, err
	}
	if err := checkFinite(source.Samples()); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if err := checkFinite(response.Samples()); err != nil {
		return nil, fmt.Errorf("response: %w", err)
	}
	if maxAbs(source.Samples()) == 0 {
		return nil, fmt.Errorf("%w: source is all-zero", ErrNumerical)
	}

	switch opts.Method {
	case WaterLevel:
		return deconvolveWaterLevel(response, source, opts.WaterLevel)
	case Iterative:
		return deconvolveIterative(response, source, opts.Iterative)
	case Multitaper:
		return deconvolveMultitaper(response, source, opts.Multitaper)
	default:
		return nil, fmt.Errorf("%w: unknown method %d", ErrInvalidOptions, int(opts.Method))
	}
}

func checkFinite(x []float64) error {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite sample at index %d", ErrNumerical, i)
		}
	}
	return nil
}

func maxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// nextPowerOf2 returns the smallest power of two >= n.
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// forwardPadded zero-pads x to the plan size and returns its spectrum.
func forwardPadded(plan *algofft.Plan[complex128], x []float64, fftSize int) ([]complex128, error) {
	in := make([]complex128, fftSize)
	for i, v := range x {
		in[i] = complex(v, 0)
	}
	out := make([]complex128, fftSize)
	if err := plan.Forward(out, in); err != nil {
		return nil, err
	}
	return out, nil
}

// inverseReal inverse-transforms the spectrum and returns the real part
// of the first n samples.
func inverseReal(plan *algofft.Plan[complex128], spec []complex128, n int) ([]float64, error) {
	tmp := make([]complex128, len(spec))
	if err := plan.Inverse(tmp, spec); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = real(tmp[i])
	}
	return out, nil
}

// omega returns the angular frequency of bin k for an fftSize-point
// transform at sampling interval delta, negative in the upper half.
func omega(k, fftSize int, delta float64) float64 {
	if 2*k > fftSize {
		k -= fftSize
	}
	return 2 * math.Pi * float64(k) / (float64(fftSize) * delta)
}

// gaussTaper returns the Gaussian low-pass exp(-omega^2/(4 a^2)) over all
// bins.
func gaussTaper(fftSize int, delta, width float64) []float64 {
	g := make([]float64, fftSize)
	for k := range g {
		w := omega(k, fftSize, delta)
		g[k] = math.Exp(-w * w / (4 * width * width))
	}
	return g
}

// phaseShift returns exp(-i omega shift) over all bins, delaying the
// inverse transform by shift seconds.
func phaseShift(fftSize int, delta, shift float64) []complex128 {
	s := make([]complex128, fftSize)
	for k := range s {
		w := omega(k, fftSize, delta)
		s[k] = cmplx.Exp(complex(0, -w*shift))
	}
	return s
}

// varianceReduction is 1 - sum((obs-pred)^2)/sum(obs^2); 1 means perfect
// reconstruction.
func varianceReduction(obs, pred []float64) float64 {
	var num, den float64
	for i := range obs {
		d := obs[i] - pred[i]
		num += d * d
		den += obs[i] * obs[i]
	}
	if den == 0 {
		return 0
	}
	return 1 - num/den
}

// rfStep builds the provenance record for a deconvolution output.
func rfStep(m Method, detail string) trace.Step {
	return trace.Step{Op: "deconvolve", Detail: fmt.Sprintf("method=%s %s", m, detail)}
}

// rfTrace assembles the output trace: response metadata, onset at the
// acausal lead.
func rfTrace(response *trace.Trace, data []float64, shift float64, step trace.Step) *trace.Trace {
	out := response.WithData(data, step)
	hdr := out.Header()
	hdr.Onset = shift
	return out.WithHeader(hdr)
}
