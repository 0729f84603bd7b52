// Package moveout normalizes receiver functions to a common source-receiver
// geometry. Converted-phase delay times depend on the ray parameter; a
// 1-D layered velocity model maps each sample's delay to the delay it
// would have at a reference ray parameter, and the trace is resampled
// onto the stretched time axis.
package moveout

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by model evaluation and moveout correction.
var (
	ErrInvalidModel = errors.New("moveout: invalid velocity model")

	// ErrTraceTruncated reports that the ray turns (horizontal slowness
	// exceeds 1/v) before reaching the deepest depth implied by the
	// trace; the correction zero-fills the unreachable part instead of
	// extrapolating, and the truncated trace is still returned.
	ErrTraceTruncated = errors.New("moveout: ray does not reach requested depth")

	ErrMissingHeader = errors.New("moveout: slowness header missing")
)

// kmPerDeg converts great-circle degrees to kilometers on a spherical
// earth of radius 6371 km.
const kmPerDeg = 6371 * math.Pi / 180

// SlownessPerKm converts a slowness in s/deg to s/km.
func SlownessPerKm(secPerDeg float64) float64 { return secPerDeg / kmPerDeg }

// Layer is one constant-velocity layer of a 1-D model.
type Layer struct {
	// Thickness in km.
	Thickness float64

	// Vp is the P velocity in km/s.
	Vp float64

	// Vs is the S velocity in km/s.
	Vs float64
}

// Model is a stack of layers from the surface down. Rays that pass the
// bottom layer continue through a half space with the bottom layer's
// velocities.
type Model struct {
	Name   string
	Layers []Layer
}

// IASP91 returns a coarse layered approximation of the iasp91 reference
// earth down to 410 km, sufficient for crustal and upper-mantle
// converted-phase delay times.
func IASP91() Model {
	return Model{
		Name: "iasp91",
		Layers: []Layer{
			{Thickness: 20, Vp: 5.80, Vs: 3.36},
			{Thickness: 15, Vp: 6.50, Vs: 3.75},
			{Thickness: 85, Vp: 8.045, Vs: 4.485},
			{Thickness: 90, Vp: 8.175, Vs: 4.51},
			{Thickness: 200, Vp: 8.66, Vs: 4.696},
		},
	}
}

// Validate checks layer geometry and velocity ordering.
func (m Model) Validate() error {
	if len(m.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrInvalidModel)
	}
	for i, l := range m.Layers {
		if l.Thickness <= 0 {
			return fmt.Errorf("%w: layer %d thickness %v", ErrInvalidModel, i, l.Thickness)
		}
		if l.Vs <= 0 || l.Vp <= l.Vs {
			return fmt.Errorf("%w: layer %d velocities vp=%v vs=%v", ErrInvalidModel, i, l.Vp, l.Vs)
		}
	}
	return nil
}

// Depth returns the total model thickness in km.
func (m Model) Depth() float64 {
	var d float64
	for _, l := range m.Layers {
		d += l.Thickness
	}
	return d
}

// layerAt returns the layer containing the given depth, extending the
// bottom layer as a half space.
func (m Model) layerAt(depth float64) Layer {
	var top float64
	for _, l := range m.Layers {
		if depth < top+l.Thickness {
			return l
		}
		top += l.Thickness
	}
	return m.Layers[len(m.Layers)-1]
}

// Phase enumerates the converted phases with distinct delay-time
// expressions.
type Phase int

const (
	// PhasePs is the direct P-to-S conversion.
	PhasePs Phase = iota

	// PhasePpps is the first surface multiple (PpPs).
	PhasePpps

	// PhasePpss covers the second surface multiples (PpSs and PsPs),
	// which share one arrival time.
	PhasePpss
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhasePs:
		return "Ps"
	case PhasePpps:
		return "Ppps"
	case PhasePpss:
		return "Ppss"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// layerDelay returns the per-km delay of the phase inside the layer for
// horizontal slowness p in s/km, or ErrTraceTruncated when the ray is
// evanescent in the layer.
func layerDelay(l Layer, phase Phase, p float64) (float64, error) {
	qsSq := 1/(l.Vs*l.Vs) - p*p
	if qsSq <= 0 {
		return 0, fmt.Errorf("%w: slowness %.4f s/km turns in layer (vs=%.2f)", ErrTraceTruncated, p, l.Vs)
	}
	qs := math.Sqrt(qsSq)

	if phase == PhasePpss {
		return 2 * qs, nil
	}

	qpSq := 1/(l.Vp*l.Vp) - p*p
	if qpSq <= 0 {
		return 0, fmt.Errorf("%w: slowness %.4f s/km turns in layer (vp=%.2f)", ErrTraceTruncated, p, l.Vp)
	}
	qp := math.Sqrt(qpSq)

	switch phase {
	case PhasePs:
		return qs - qp, nil
	case PhasePpps:
		return qs + qp, nil
	default:
		return 0, fmt.Errorf("moveout: unknown phase %d", int(phase))
	}
}

// Delay returns the delay time of the converted phase relative to the
// direct P arrival for a conversion at the given depth (km) and
// horizontal slowness p (s/km).
func Delay(m Model, phase Phase, p, depth float64) (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}

	var t, top float64
	for _, l := range m.Layers {
		if depth <= top {
			break
		}
		h := math.Min(l.Thickness, depth-top)
		d, err := layerDelay(l, phase, p)
		if err != nil {
			return 0, err
		}
		t += h * d
		top += l.Thickness
	}
	if depth > top {
		// Half-space continuation below the model.
		d, err := layerDelay(m.Layers[len(m.Layers)-1], phase, p)
		if err != nil {
			return 0, err
		}
		t += (depth - top) * d
	}
	return t, nil
}

// PiercingPoint returns the horizontal offset in km at which the
// up-going S leg (or P leg, for sWave) of a conversion at the given depth
// pierces, for horizontal slowness p in s/km.
func PiercingPoint(m Model, p, depth float64, sWave bool) (float64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}

	var x, top float64
	for _, l := range m.Layers {
		if depth <= top {
			break
		}
		h := math.Min(l.Thickness, depth-top)
		v := l.Vs
		if !sWave {
			v = l.Vp
		}
		qSq := 1/(v*v) - p*p
		if qSq <= 0 {
			return 0, fmt.Errorf("%w: slowness %.4f s/km turns at depth %.1f km", ErrTraceTruncated, p, top)
		}
		x += h * p / math.Sqrt(qSq)
		top += l.Thickness
	}
	return x, nil
}
