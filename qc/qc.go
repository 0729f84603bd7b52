// Package qc scores receiver functions against the data they were
// derived from. Score reconvolves a receiver function with its source
// wavelet and compares the prediction to the recorded response; the
// resulting report feeds the acceptance gates used when stacking.
package qc

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-rf/trace"
)

var ErrNumerical = errors.New("qc: numerical failure")

// Options controls the measurement windows and acceptance thresholds.
// Zero-valued thresholds are not enforced by Accept.
type Options struct {
	// NoiseWindow is the length in seconds of the pre-onset window
	// used for the noise estimate. Defaults to 5.
	NoiseWindow float64

	// SignalWindow is the length in seconds of the post-onset window
	// used for the signal estimate. Defaults to 20.
	SignalWindow float64

	// MinFit is the minimum variance reduction to accept.
	MinFit float64

	// MinCorrelation is the minimum Pearson correlation between the
	// reconvolved prediction and the recorded response.
	MinCorrelation float64

	// MinSNR is the minimum signal-to-noise ratio on the receiver
	// function itself.
	MinSNR float64

	// MaxLeadRatio rejects receiver functions whose largest pre-onset
	// amplitude exceeds this fraction of the zero-lag amplitude.
	MaxLeadRatio float64
}

// DefaultOptions returns the measurement windows used when fields are
// left zero. No thresholds are set; Accept passes everything.
func DefaultOptions() Options {
	return Options{NoiseWindow: 5, SignalWindow: 20}
}

// Report holds the quality measurements for one receiver function.
type Report struct {
	// VarianceReduction is 1 - sum((d-p)^2)/sum(d^2) between the
	// recorded response d and the reconvolved prediction p.
	VarianceReduction float64

	// Correlation is the Pearson correlation between prediction and
	// response.
	Correlation float64

	// SNR is the RMS ratio of the post-onset signal window to the
	// pre-onset noise window of the receiver function. Infinite when
	// the noise window is empty or silent.
	SNR float64

	// ZeroLagAmp is the receiver-function amplitude at zero lag.
	ZeroLagAmp float64

	// ZeroLagLead is the largest absolute amplitude before zero lag.
	// Large values relative to ZeroLagAmp indicate acausal energy.
	ZeroLagLead float64
}

// Score reconvolves rf with source and measures how well the result
// predicts response. All three traces must share length and sampling
// interval. The receiver function's onset header marks zero lag.
func Score(rf, response, source *trace.Trace, opts Options) (*Report, error) {
	if err := trace.SameShape(rf, response); err != nil {
		return nil, err
	}
	if err := trace.SameShape(rf, source); err != nil {
		return nil, err
	}
	for _, tr := range []*trace.Trace{rf, response, source} {
		if err := checkFinite(tr.Samples()); err != nil {
			return nil, err
		}
	}
	if opts.NoiseWindow <= 0 {
		opts.NoiseWindow = 5
	}
	if opts.SignalWindow <= 0 {
		opts.SignalWindow = 20
	}

	pred, err := reconvolve(rf, source)
	if err != nil {
		return nil, err
	}

	resp := response.Samples()
	// Correlation is undefined when either signal has zero variance;
	// report zero so Accept thresholds reject instead of passing NaN
	// through the comparison.
	corr := stat.Correlation(pred, resp, nil)
	if math.IsNaN(corr) {
		corr = 0
	}
	rep := &Report{
		VarianceReduction: varianceReduction(resp, pred),
		Correlation:       corr,
	}

	lead := rf.OnsetIndex()
	data := rf.Samples()
	if lead >= 0 && lead < len(data) {
		rep.ZeroLagAmp = data[lead]
	}
	for i := 0; i < lead && i < len(data); i++ {
		if a := math.Abs(data[i]); a > rep.ZeroLagLead {
			rep.ZeroLagLead = a
		}
	}

	nNoise := int(opts.NoiseWindow / rf.Delta())
	nSignal := int(opts.SignalWindow / rf.Delta())
	lo := min(max(0, lead), len(data))
	noise := rms(data[max(0, lo-nNoise):lo])
	signal := rms(data[lo:min(lo+nSignal, len(data))])
	if noise == 0 {
		rep.SNR = math.Inf(1)
	} else {
		rep.SNR = signal / noise
	}
	return rep, nil
}

// Accept reports whether every threshold set in opts is met.
func Accept(rep *Report, opts Options) bool {
	if opts.MinFit > 0 && rep.VarianceReduction < opts.MinFit {
		return false
	}
	if opts.MinCorrelation > 0 && rep.Correlation < opts.MinCorrelation {
		return false
	}
	if opts.MinSNR > 0 && rep.SNR < opts.MinSNR {
		return false
	}
	if opts.MaxLeadRatio > 0 {
		if rep.ZeroLagAmp == 0 || rep.ZeroLagLead > opts.MaxLeadRatio*math.Abs(rep.ZeroLagAmp) {
			return false
		}
	}
	return true
}

// reconvolve computes the linear convolution of rf and source via FFT
// and realigns it so that sample i predicts response sample i. The
// receiver function's acausal lead shifts the convolution by its onset
// index.
func reconvolve(rf, source *trace.Trace) ([]float64, error) {
	n := rf.Len()
	fftSize := nextPowerOf2(2 * n)
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("qc: %w", err)
	}

	rfSpec, err := forwardPadded(plan, rf.Samples(), fftSize)
	if err != nil {
		return nil, fmt.Errorf("qc: %w", err)
	}
	srcSpec, err := forwardPadded(plan, source.Samples(), fftSize)
	if err != nil {
		return nil, fmt.Errorf("qc: %w", err)
	}
	for i := range rfSpec {
		rfSpec[i] *= srcSpec[i]
	}

	full, err := inverseReal(plan, rfSpec, fftSize)
	if err != nil {
		return nil, fmt.Errorf("qc: %w", err)
	}

	lead := rf.OnsetIndex()
	pred := make([]float64, n)
	for i := range pred {
		if j := i + lead; j >= 0 && j < len(full) {
			pred[i] = full[j]
		}
	}
	return pred, nil
}

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

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var s float64
	for _, v := range x {
		s += v * v
	}
	return math.Sqrt(s / float64(len(x)))
}

func checkFinite(x []float64) error {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite sample at index %d", ErrNumerical, i)
		}
	}
	return nil
}

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
