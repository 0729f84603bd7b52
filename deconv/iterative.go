package deconv

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"

	"github.com/cwbudde/algo-rf/trace"
)

// deconvolveIterative implements greedy matching pursuit: it repeatedly
// cross-correlates the residual response with the Gaussian-filtered
// source pulse, places a spike at the peak-correlation lag with the
// least-squares amplitude, and subtracts the scaled, shifted pulse from
// the residual. The spike train smoothed by the Gaussian is the receiver
// function.
func deconvolveIterative(response, source *trace.Trace, opts IterativeOptions) (*Result, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 200
	}
	if opts.MinImprovement <= 0 {
		opts.MinImprovement = 0.001
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

	gauss := gaussTaper(fftSize, delta, opts.GaussWidth)

	// Both traces are low-passed up front so that spike picking and the
	// convergence metric work on the band the output will carry.
	filtered := func(x []float64) ([]float64, []complex128, error) {
		spec, err := forwardPadded(plan, x, fftSize)
		if err != nil {
			return nil, nil, err
		}
		for k := range spec {
			spec[k] *= complex(gauss[k], 0)
		}
		t, err := inverseReal(plan, spec, fftSize)
		return t, spec, err
	}

	pulse, _, err := filtered(source.Samples())
	if err != nil {
		return nil, err
	}
	data, _, err := filtered(response.Samples())
	if err != nil {
		return nil, err
	}

	var pulseNorm, dataPower float64
	for i := 0; i < n; i++ {
		pulseNorm += pulse[i] * pulse[i]
		dataPower += data[i] * data[i]
	}
	if pulseNorm == 0 {
		return nil, fmt.Errorf("%w: filtered source has zero energy", ErrNumerical)
	}
	if dataPower == 0 {
		return nil, fmt.Errorf("%w: response has zero energy", ErrNumerical)
	}

	pulseSpec, err := forwardPadded(plan, pulse[:n], fftSize)
	if err != nil {
		return nil, err
	}

	residual := make([]float64, fftSize)
	copy(residual, data)

	spikes := make([]float64, n)
	corr := make([]complex128, fftSize)
	var (
		fit        float64
		iterations int
		converged  bool
	)

	for it := 1; it <= opts.MaxIterations; it++ {
		// Cross-correlate residual with the pulse via the frequency
		// domain; lag k means the pulse copy starts at sample k.
		resSpec, err := forwardPadded(plan, residual, fftSize)
		if err != nil {
			return nil, err
		}
		for k := range corr {
			corr[k] = resSpec[k] * cmplx.Conj(pulseSpec[k])
		}
		cc, err := inverseReal(plan, corr, n)
		if err != nil {
			return nil, err
		}

		lag := pickLag(cc, opts.OnlyPositive)
		amp := cc[lag] / pulseNorm
		spikes[lag] += amp

		for i := 0; i < n && lag+i < fftSize; i++ {
			residual[lag+i] -= amp * pulse[i]
		}

		var resPower float64
		for i := 0; i < n; i++ {
			resPower += residual[i] * residual[i]
		}
		vr := 1 - resPower/dataPower

		improvement := vr - fit
		fit = vr
		iterations = it
		if improvement < opts.MinImprovement {
			converged = true
			break
		}
	}

	// The estimate lives in the filtered band: RF = spikes * Gaussian,
	// delayed by the acausal lead.
	rfSpec, err := forwardPadded(plan, spikes, fftSize)
	if err != nil {
		return nil, err
	}
	lead := phaseShift(fftSize, delta, opts.Shift)
	for k := range rfSpec {
		rfSpec[k] *= complex(gauss[k], 0) * lead[k]
	}
	rf, err := inverseReal(plan, rfSpec, n)
	if err != nil {
		return nil, err
	}

	detail := fmt.Sprintf("maxiter=%d minimp=%g gauss=%g shift=%g iterations=%d converged=%t",
		opts.MaxIterations, opts.MinImprovement, opts.GaussWidth, opts.Shift, iterations, converged)
	return &Result{
		RF:         rfTrace(response, rf, opts.Shift, rfStep(Iterative, detail)),
		Method:     Iterative,
		Fit:        fit,
		Iterations: iterations,
		Converged:  converged,
		Shift:      opts.Shift,
	}, nil
}

// pickLag returns the lag with the largest correlation magnitude, or the
// largest positive correlation when onlyPositive is set.
func pickLag(cc []float64, onlyPositive bool) int {
	best := 0
	bestVal := math.Inf(-1)
	for i, v := range cc {
		score := v
		if !onlyPositive {
			score = math.Abs(v)
		}
		if score > bestVal {
			bestVal = score
			best = i
		}
	}
	return best
}
