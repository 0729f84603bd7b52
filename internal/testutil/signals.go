// Package testutil provides deterministic synthetic seismograms and
// tolerance helpers shared by the package tests.
package testutil

import (
	"math"
	"math/rand"
)

// Ricker generates a Ricker wavelet with peak frequency freqHz sampled at
// interval delta, centered on sample index center.
func Ricker(freqHz, delta float64, length, center int) []float64 {
	out := make([]float64, length)
	for i := range out {
		t := float64(i-center) * delta
		a := math.Pi * freqHz * t
		a *= a
		out[i] = (1 - 2*a) * math.Exp(-a)
	}
	return out
}

// GaussPulse generates a unit-amplitude Gaussian pulse of the given width
// (seconds) centered at time t0 (seconds from trace start).
func GaussPulse(t0, width, delta float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		t := float64(i)*delta - t0
		out[i] = math.Exp(-t * t / (2 * width * width))
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for
// reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// Impulse generates a unit impulse at the given position.
func Impulse(length, pos int) []float64 {
	out := make([]float64, length)
	if pos >= 0 && pos < length {
		out[pos] = 1
	}
	return out
}

// Spike describes one impulse of a spike train: a delay in seconds and an
// amplitude.
type Spike struct {
	Time float64
	Amp  float64
}

// SpikeTrain places the given spikes on a zero trace, rounding each spike
// time to the nearest sample. Spikes outside the trace are dropped.
func SpikeTrain(spikes []Spike, delta float64, length int) []float64 {
	out := make([]float64, length)
	for _, s := range spikes {
		i := int(math.Round(s.Time / delta))
		if i >= 0 && i < length {
			out[i] += s.Amp
		}
	}
	return out
}

// ConvolveFull computes the full linear convolution of a and b directly.
// Slow but obviously correct, for building reference responses in tests.
func ConvolveFull(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i := range a {
		for j := range b {
			out[i+j] += a[i] * b[j]
		}
	}
	return out
}

// SyntheticRF builds a receiver function for a one-layer crust over a
// half space: Gaussian pulses at the Ps conversion and the PpPs and
// PpSs+PsPs multiples for crustal thickness h (km), Vp/Vs ratio k,
// P velocity vp (km/s) and ray parameter p (s/km). The trace starts at
// the direct-P arrival (time zero).
func SyntheticRF(h, k, vp, p, delta float64, length int) []float64 {
	vs := vp / k
	qp := math.Sqrt(1/(vp*vp) - p*p)
	qs := math.Sqrt(1/(vs*vs) - p*p)

	spikes := []Spike{
		{Time: h * (qs - qp), Amp: 0.5},
		{Time: h * (qs + qp), Amp: 0.25},
		{Time: 2 * h * qs, Amp: -0.2},
	}

	out := make([]float64, length)
	const width = 0.35
	for _, s := range spikes {
		for i := range out {
			t := float64(i)*delta - s.Time
			out[i] += s.Amp * math.Exp(-t*t/(2*width*width))
		}
	}
	return out
}
