// Package rf computes teleseismic receiver functions from three-component
// seismograms. It glues the stage packages together: rotate into a
// ray-oriented system, deconvolve the source wavelet from every
// component, fix the polarity convention and optionally correct for
// moveout. Each stage is also usable on its own through its package.
package rf

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-rf/deconv"
	"github.com/cwbudde/algo-rf/moveout"
	"github.com/cwbudde/algo-rf/rotate"
	"github.com/cwbudde/algo-rf/trace"
)

// Options assembles the per-stage settings of the pipeline. The zero
// value rotates into RTZ and deconvolves with the default method.
type Options struct {
	// Rotation selects the output coordinate system.
	Rotation rotate.System

	// Rotate carries the velocities used by the LQT and free-surface
	// rotations.
	Rotate rotate.Options

	// Deconvolution selects the deconvolution method and its settings.
	Deconvolution deconv.Options

	// Source overrides the component the others are deconvolved by.
	// When empty the natural source of the rotation system is used:
	// Z for RTZ, L for LQT, P for the free-surface transform.
	Source string

	// Moveout, when set, corrects the receiver functions to the
	// reference slowness after deconvolution.
	Moveout *MoveoutOptions

	// SWave computes S receiver functions: the rotated traces are
	// time-reversed around the onset before deconvolution, the source
	// component switches to the SV-carrying one, and the outputs are
	// reversed back so that conversions appear at positive delay.
	SWave bool
}

// MoveoutOptions configures the optional moveout stage.
type MoveoutOptions struct {
	Model moveout.Model

	// ReferenceSlowness in s/deg. Defaults to
	// moveout.DefaultReferenceSlowness.
	ReferenceSlowness float64

	Correct moveout.Options
}

// DefaultOptions returns the standard P receiver-function pipeline:
// RTZ rotation and the default deconvolution method.
func DefaultOptions() Options {
	return Options{
		Rotation:      rotate.ZNE2RTZ,
		Rotate:        rotate.DefaultOptions(),
		Deconvolution: deconv.DefaultOptions(),
	}
}

// Compute runs the receiver-function pipeline on one event group of Z,
// N and E traces and returns a group of receiver functions carrying the
// rotated component codes. Traces must share shape, sampling and start
// time, and the headers must provide back azimuth plus whatever the
// chosen rotation needs.
//
// When the moveout stage reports a ray turning inside the model the
// truncated group is returned together with an error wrapping
// moveout.ErrTraceTruncated.
func Compute(g *trace.TraceGroup, opts Options) (*trace.TraceGroup, error) {
	rot, err := rotate.Rotate(g, opts.Rotation, opts.Rotate)
	if err != nil {
		return nil, fmt.Errorf("rf: rotate: %w", err)
	}

	srcCode := opts.Source
	if srcCode == "" {
		srcCode = sourceComponent(opts.Rotation, opts.SWave)
	}

	traces := rot.Traces()
	if opts.SWave {
		for i := range traces {
			traces[i] = traces[i].MirrorAtOnset()
		}
	}

	var src *trace.Trace
	for _, tr := range traces {
		if tr.Header().Component == srcCode {
			src = tr
			break
		}
	}
	if src == nil {
		return nil, fmt.Errorf("rf: %w: %q", trace.ErrMissingComponent, srcCode)
	}

	outs := [3]*trace.Trace{}
	for i, tr := range traces {
		res, err := deconv.Deconvolve(tr, src, opts.Deconvolution)
		if err != nil {
			return nil, fmt.Errorf("rf: deconvolve %s: %w", tr.Header().Component, err)
		}
		rf := res.RF
		if opts.SWave {
			rf = rf.MirrorAtOnset()
		}
		outs[i] = rf
	}

	grp, err := trace.NewTraceGroup(outs[0], outs[1], outs[2])
	if err != nil {
		return nil, fmt.Errorf("rf: %w", err)
	}
	grp, err = rotate.FlipTransverse(grp, srcCode)
	if err != nil {
		return nil, fmt.Errorf("rf: %w", err)
	}

	if opts.Moveout != nil {
		return correctGroup(grp, opts.Moveout)
	}
	return grp, nil
}

func correctGroup(g *trace.TraceGroup, mo *MoveoutOptions) (*trace.TraceGroup, error) {
	ref := mo.ReferenceSlowness
	if ref == 0 {
		ref = moveout.DefaultReferenceSlowness
	}

	truncated := false
	outs := [3]*trace.Trace{}
	for i, tr := range g.Traces() {
		corrected, err := moveout.Correct(tr, mo.Model, ref, mo.Correct)
		switch {
		case errors.Is(err, moveout.ErrTraceTruncated):
			truncated = true
		case err != nil:
			return nil, fmt.Errorf("rf: moveout %s: %w", tr.Header().Component, err)
		}
		outs[i] = corrected
	}

	grp, err := trace.NewTraceGroup(outs[0], outs[1], outs[2])
	if err != nil {
		return nil, fmt.Errorf("rf: %w", err)
	}
	if truncated {
		return grp, fmt.Errorf("rf: moveout: %w", moveout.ErrTraceTruncated)
	}
	return grp, nil
}

// sourceComponent returns the component carrying the incident wave for
// the given rotation system.
func sourceComponent(sys rotate.System, sWave bool) string {
	if sWave {
		switch sys {
		case rotate.ZNE2LQT:
			return "Q"
		case rotate.FreeSurface:
			return "SV"
		default:
			return "R"
		}
	}
	switch sys {
	case rotate.ZNE2LQT:
		return "L"
	case rotate.FreeSurface:
		return "P"
	default:
		return "Z"
	}
}
