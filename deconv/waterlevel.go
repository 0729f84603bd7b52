package deconv

import (
	"fmt"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-rf/trace"
)

// deconvolveWaterLevel divides the response spectrum by the source
// spectrum, flooring the denominator power at a fraction of its peak,
// then applies a Gaussian low-pass and the acausal lead before the
// inverse transform.
func deconvolveWaterLevel(response, source *trace.Trace, opts WaterLevelOptions) (*Result, error) {
	if opts.WaterLevel <= 0 {
		opts.WaterLevel = 0.05
	}
	if opts.GaussWidth <= 0 {
		opts.GaussWidth = 2.5
	}
	if opts.Shift < 0 {
		return nil, fmt.Errorf("%w: negative shift", ErrInvalidOptions)
	}

	n := response.Len()
	delta := response.Delta()
	fftSize := nextPowerOf2(2 * n)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("deconv: failed to create FFT plan: %w", err)
	}

	respSpec, err := forwardPadded(plan, response.Samples(), fftSize)
	if err != nil {
		return nil, err
	}
	srcSpec, err := forwardPadded(plan, source.Samples(), fftSize)
	if err != nil {
		return nil, err
	}

	ps, maxPow := sourcePower(srcSpec)
	if maxPow <= 0 {
		return nil, fmt.Errorf("%w: source power spectrum is zero", ErrNumerical)
	}
	floor := opts.WaterLevel * maxPow

	gauss := gaussTaper(fftSize, delta, opts.GaussWidth)
	lead := phaseShift(fftSize, delta, opts.Shift)

	// H = R conj(S) / max(|S|^2, floor), Gaussian-smoothed. The fit is
	// judged by reconvolving H with S before the lead is applied and
	// comparing against the Gaussian-filtered response, so it measures
	// misfit in the band the operator passes.
	rfSpec := make([]complex128, fftSize)
	predSpec := make([]complex128, fftSize)
	obsSpec := make([]complex128, fftSize)
	var selfGain float64
	for k := range rfSpec {
		den := ps[k]
		if den < floor {
			den = floor
		}
		h := respSpec[k] * cmplx.Conj(srcSpec[k]) / complex(den, 0) * complex(gauss[k], 0)
		predSpec[k] = h * srcSpec[k]
		obsSpec[k] = respSpec[k] * complex(gauss[k], 0)
		rfSpec[k] = h * lead[k]
		selfGain += ps[k] / den * gauss[k]
	}

	pred, err := inverseReal(plan, predSpec, n)
	if err != nil {
		return nil, err
	}
	obs, err := inverseReal(plan, obsSpec, n)
	if err != nil {
		return nil, err
	}
	fit := varianceReduction(obs, pred)

	rf, err := inverseReal(plan, rfSpec, n)
	if err != nil {
		return nil, err
	}

	// selfGain/fftSize is the zero-lag amplitude this operator produces
	// when source and response coincide; dividing by it makes
	// self-deconvolution peak at one.
	if !opts.NoNormalize {
		norm := selfGain / float64(fftSize)
		if norm > 0 {
			for i := range rf {
				rf[i] /= norm
			}
		}
	}

	detail := fmt.Sprintf("waterlevel=%g gauss=%g shift=%g", opts.WaterLevel, opts.GaussWidth, opts.Shift)
	return &Result{
		RF:        rfTrace(response, rf, opts.Shift, rfStep(WaterLevel, detail)),
		Method:    WaterLevel,
		Fit:       fit,
		Converged: true,
		Shift:     opts.Shift,
	}, nil
}

// sourcePower computes |S|^2 per bin and its maximum.
func sourcePower(spec []complex128) ([]float64, float64) {
	n := len(spec)
	re := make([]float64, n)
	im := make([]float64, n)
	for i, c := range spec {
		re[i] = real(c)
		im[i] = imag(c)
	}

	ps := make([]float64, n)
	vecmath.Power(ps, re, im)

	var maxPow float64
	for _, p := range ps {
		if p > maxPow {
			maxPow = p
		}
	}
	return ps, maxPow
}
