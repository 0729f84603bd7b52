package deconv

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-rf/trace"
)

// deconvolveMultitaper averages several sine-tapered spectral estimates
// of the cross and auto spectra before dividing (Riedel & Sidorenko
// tapers). The variance of the spectral estimate drops with the taper
// count at the cost of frequency resolution.
func deconvolveMultitaper(response, source *trace.Trace, opts MultitaperOptions) (*Result, error) {
	if opts.Tapers <= 0 {
		opts.Tapers = 5
	}
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

	resp := response.Samples()
	src := source.Samples()

	cross := make([]complex128, fftSize)
	auto := make([]float64, fftSize)
	tapered := make([]float64, n)
	power := make([]float64, fftSize)

	for j := 0; j < opts.Tapers; j++ {
		taper := sineTaper(j, n)

		applyTaper(tapered, resp, taper)
		respSpec, err := forwardPadded(plan, tapered, fftSize)
		if err != nil {
			return nil, err
		}

		applyTaper(tapered, src, taper)
		srcSpec, err := forwardPadded(plan, tapered, fftSize)
		if err != nil {
			return nil, err
		}

		taperPower(power, srcSpec)
		for k := range cross {
			cross[k] += respSpec[k] * cmplx.Conj(srcSpec[k])
			auto[k] += power[k]
		}
	}

	var maxAuto float64
	for _, p := range auto {
		if p > maxAuto {
			maxAuto = p
		}
	}
	if maxAuto <= 0 {
		return nil, fmt.Errorf("%w: tapered source spectrum is zero", ErrNumerical)
	}
	floor := opts.WaterLevel * maxAuto

	gauss := gaussTaper(fftSize, delta, opts.GaussWidth)
	lead := phaseShift(fftSize, delta, opts.Shift)

	srcSpec, err := forwardPadded(plan, src, fftSize)
	if err != nil {
		return nil, err
	}
	respSpec, err := forwardPadded(plan, resp, fftSize)
	if err != nil {
		return nil, err
	}

	// The fit compares the reconvolved prediction against the
	// Gaussian-filtered response, measuring misfit in the band the
	// operator passes.
	rfSpec := make([]complex128, fftSize)
	predSpec := make([]complex128, fftSize)
	obsSpec := make([]complex128, fftSize)
	for k := range rfSpec {
		den := auto[k]
		if den < floor {
			den = floor
		}
		h := cross[k] / complex(den, 0) * complex(gauss[k], 0)
		predSpec[k] = h * srcSpec[k]
		obsSpec[k] = respSpec[k] * complex(gauss[k], 0)
		rfSpec[k] = h * lead[k]
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

	detail := fmt.Sprintf("tapers=%d waterlevel=%g gauss=%g shift=%g",
		opts.Tapers, opts.WaterLevel, opts.GaussWidth, opts.Shift)
	return &Result{
		RF:        rfTrace(response, rf, opts.Shift, rfStep(Multitaper, detail)),
		Method:    Multitaper,
		Fit:       fit,
		Converged: true,
		Shift:     opts.Shift,
	}, nil
}

// sineTaper returns the j-th sine taper of length n,
// w_j(i) = sqrt(2/(n+1)) sin(pi (j+1)(i+1)/(n+1)).
func sineTaper(j, n int) []float64 {
	w := make([]float64, n)
	norm := math.Sqrt(2 / float64(n+1))
	arg := math.Pi * float64(j+1) / float64(n+1)
	for i := range w {
		w[i] = norm * math.Sin(arg*float64(i+1))
	}
	return w
}

func applyTaper(dst, x, taper []float64) {
	vecmath.MulBlock(dst, x, taper)
}

// taperPower writes |S|^2 per bin into dst.
func taperPower(dst []float64, spec []complex128) {
	for k, c := range spec {
		re, im := real(c), imag(c)
		dst[k] = re*re + im*im
	}
}
