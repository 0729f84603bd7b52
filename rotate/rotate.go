// Package rotate projects three-component seismograms into ray-oriented
// coordinate systems prior to deconvolution.
//
// Supported transforms:
//
//   - ZNE -> RTZ: horizontal rotation into radial/transverse using the
//     back azimuth
//   - ZNE -> LQT: full rotation into ray coordinates using back azimuth
//     and incidence angle
//   - free-surface transform: ZNE -> P/SV/SH wave modes using ray
//     parameter and near-surface velocities
//
// All transforms are deterministic, allocate new traces, and never modify
// their inputs.
package rotate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/algo-rf/trace"
)

// Errors returned by rotation functions.
var (
	ErrUnknownSystem = errors.New("rotate: unknown coordinate system")
	ErrMissingHeader = errors.New("rotate: required header field missing")
	ErrNumerical     = errors.New("rotate: matrix is singular or evanescent")
)

// kmPerDeg converts great-circle degrees to kilometers on a spherical
// earth of radius 6371 km.
const kmPerDeg = 6371 * math.Pi / 180

// System enumerates the target coordinate systems.
type System int

const (
	// ZNE2RTZ rotates horizontals into radial/transverse from the back
	// azimuth. Output components: "R", "T", "Z".
	ZNE2RTZ System = iota

	// ZNE2LQT rotates into ray coordinates from back azimuth and
	// incidence angle. Output components: "L", "Q", "T".
	ZNE2LQT

	// FreeSurface applies the P-SV-SH free-surface transfer matrix from
	// the ray parameter and near-surface velocities. Output components:
	// "P", "SV", "SH".
	FreeSurface
)

// String returns the conventional name of the transform.
func (s System) String() string {
	switch s {
	case ZNE2RTZ:
		return "ZNE->RTZ"
	case ZNE2LQT:
		return "ZNE->LQT"
	case FreeSurface:
		return "ZNE->PVH"
	default:
		return fmt.Sprintf("System(%d)", int(s))
	}
}

func (s System) outputCodes() [3]string {
	switch s {
	case ZNE2LQT:
		return [3]string{"L", "Q", "T"}
	case FreeSurface:
		return [3]string{"P", "SV", "SH"}
	default:
		return [3]string{"R", "T", "Z"}
	}
}

// Options configures the free-surface transform. RTZ and LQT rotations
// ignore it.
type Options struct {
	// Vp is the near-surface P velocity in km/s.
	Vp float64

	// Vs is the near-surface S velocity in km/s.
	Vs float64
}

// DefaultOptions returns near-surface velocities typical for continental
// crust.
func DefaultOptions() Options {
	return Options{Vp: 6.0, Vs: 3.5}
}

// Matrix builds the 3x3 transform matrix mapping the column vector
// (Z, N, E) to the target system. The row order matches the component
// codes of the rotated group: (R,T,Z), (L,Q,T) or (P,SV,SH).
func Matrix(sys System, hdr trace.Header, opts Options) (*mat.Dense, error) {
	switch sys {
	case ZNE2RTZ:
		return rtzMatrix(hdr)
	case ZNE2LQT:
		return lqtMatrix(hdr)
	case FreeSurface:
		return freeSurfaceMatrix(hdr, opts)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSystem, int(sys))
	}
}

func rtzMatrix(hdr trace.Header) (*mat.Dense, error) {
	ba := hdr.BackAzimuth * math.Pi / 180
	sin, cos := math.Sin(ba), math.Cos(ba)

	// Rows: R, T, Z. Columns: Z, N, E.
	return mat.NewDense(3, 3, []float64{
		0, -cos, -sin,
		0, sin, -cos,
		1, 0, 0,
	}), nil
}

func lqtMatrix(hdr trace.Header) (*mat.Dense, error) {
	if hdr.Incidence <= 0 {
		return nil, fmt.Errorf("%w: incidence angle", ErrMissingHeader)
	}
	ba := hdr.BackAzimuth * math.Pi / 180
	inc := hdr.Incidence * math.Pi / 180
	sinb, cosb := math.Sin(ba), math.Cos(ba)
	sini, cosi := math.Sin(inc), math.Cos(inc)

	// Rows: L, Q, T. Columns: Z, N, E. L points along the ray, away from
	// the event.
	return mat.NewDense(3, 3, []float64{
		cosi, -sini * cosb, -sini * sinb,
		sini, cosi * cosb, cosi * sinb,
		0, sinb, -cosb,
	}), nil
}

func freeSurfaceMatrix(hdr trace.Header, opts Options) (*mat.Dense, error) {
	if hdr.Slowness <= 0 {
		return nil, fmt.Errorf("%w: slowness", ErrMissingHeader)
	}
	vp, vs := opts.Vp, opts.Vs
	if vp <= 0 || vs <= 0 {
		def := DefaultOptions()
		vp, vs = def.Vp, def.Vs
	}

	p := hdr.Slowness / kmPerDeg // s/km
	qpSq := 1/(vp*vp) - p*p
	qsSq := 1/(vs*vs) - p*p
	if qpSq <= 0 || qsSq <= 0 {
		return nil, fmt.Errorf("%w: slowness %.4f s/km exceeds 1/v at the surface", ErrNumerical, p)
	}
	qp := math.Sqrt(qpSq)
	qs := math.Sqrt(qsSq)

	// Free-surface transfer coefficients for incident P and SV waves
	// (Kennett 1991). c relates to the SV critical term 1 - 2 vs^2 p^2.
	c := 1 - 2*vs*vs*p*p
	m11 := p * vs * vs / vp
	m12 := -c / (2 * vp * qp)
	m21 := c / (2 * vs * qs)
	m22 := p * vs

	rtz, err := rtzMatrix(hdr)
	if err != nil {
		return nil, err
	}

	// P/SV from the (R, Z) pair, SH from T halved for the free-surface
	// doubling. Rows: P, SV, SH. Columns: R, T, Z.
	fs := mat.NewDense(3, 3, []float64{
		-m11, 0, m12,
		-m21, 0, m22,
		0, 0.5, 0,
	})

	var out mat.Dense
	out.Mul(fs, rtz)
	return &out, nil
}

// Rotate projects the group into the target coordinate system and returns
// a new group whose traces carry the rotated component codes and a
// provenance record. The input group must contain components "Z", "N" and
// "E".
func Rotate(g *trace.TraceGroup, sys System, opts Options) (*trace.TraceGroup, error) {
	z, err := g.Component("Z")
	if err != nil {
		return nil, err
	}
	n, err := g.Component("N")
	if err != nil {
		return nil, err
	}
	e, err := g.Component("E")
	if err != nil {
		return nil, err
	}

	m, err := Matrix(sys, z.Header(), opts)
	if err != nil {
		return nil, err
	}

	return apply(g, m, z, n, e, sys.outputCodes(), trace.Step{
		Op:     "rotate",
		Detail: fmt.Sprintf("system=%s", sys),
	})
}

// Unrotate applies the inverse transform, mapping a rotated group back to
// ZNE. For the orthonormal RTZ and LQT systems the inverse is the
// transpose; for the free-surface transform a general matrix inverse is
// used. Returns ErrNumerical when the matrix cannot be inverted.
func Unrotate(g *trace.TraceGroup, sys System, opts Options) (*trace.TraceGroup, error) {
	codes := sys.outputCodes()
	a, err := g.Component(codes[0])
	if err != nil {
		return nil, err
	}
	b, err := g.Component(codes[1])
	if err != nil {
		return nil, err
	}
	c, err := g.Component(codes[2])
	if err != nil {
		return nil, err
	}

	m, err := Matrix(sys, a.Header(), opts)
	if err != nil {
		return nil, err
	}

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNumerical, err)
	}

	return apply(g, &inv, a, b, c, [3]string{"Z", "N", "E"}, trace.Step{
		Op:     "unrotate",
		Detail: fmt.Sprintf("system=%s", sys),
	})
}

// apply multiplies the matrix into the sample triples of (a, b, c) and
// assembles a new group with the given output component codes.
func apply(g *trace.TraceGroup, m *mat.Dense, a, b, c *trace.Trace, codes [3]string, step trace.Step) (*trace.TraceGroup, error) {
	length := g.Len()
	sa, sb, sc := a.Samples(), b.Samples(), c.Samples()

	out := [3]*trace.Trace{}
	buf := make([]float64, length)
	for row := 0; row < 3; row++ {
		m0, m1, m2 := m.At(row, 0), m.At(row, 1), m.At(row, 2)
		for i := 0; i < length; i++ {
			buf[i] = m0*sa[i] + m1*sb[i] + m2*sc[i]
		}
		tr := a.WithData(buf, step)
		hdr := tr.Header()
		hdr.Component = codes[row]
		out[row] = tr.WithHeader(hdr)
	}

	return trace.NewTraceGroup(out[0], out[1], out[2])
}

// FlipTransverse negates every component of the group except the one with
// the given source code. After deconvolution the Q/R and T components
// point towards the event; flipping them makes a Moho-like positive
// velocity contrast appear as a positive pulse.
func FlipTransverse(g *trace.TraceGroup, sourceCode string) (*trace.TraceGroup, error) {
	traces := g.Traces()
	out := [3]*trace.Trace{}
	for i, tr := range traces {
		if tr.Header().Component == sourceCode {
			out[i] = tr
			continue
		}
		d := tr.Data()
		for j := range d {
			d[j] = -d[j]
		}
		out[i] = tr.WithData(d, trace.Step{Op: "polarity", Detail: "flip=-1"})
	}
	return trace.NewTraceGroup(out[0], out[1], out[2])
}
