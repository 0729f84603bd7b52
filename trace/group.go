package trace

import (
	"errors"
	"fmt"
)

// ErrMissingComponent is returned when a component lookup finds no trace
// with the requested orientation code.
var ErrMissingComponent = errors.New("trace: component not present in group")

// TraceGroup bundles the three orthogonal component traces of one
// event-station pair. All three traces are co-sampled and time-aligned;
// NewTraceGroup enforces this.
type TraceGroup struct {
	traces [3]*Trace
}

// NewTraceGroup creates a group from three component traces. All traces
// must share sample count and sampling interval (ErrShapeMismatch
// otherwise) and their start times must agree within half a sample
// (ErrAlignment otherwise).
func NewTraceGroup(a, b, c *Trace) (*TraceGroup, error) {
	traces := [3]*Trace{a, b, c}
	for i, tr := range traces {
		if tr == nil {
			return nil, fmt.Errorf("%w: trace %d is nil", ErrEmptyTrace, i)
		}
	}

	for _, tr := range traces[1:] {
		if err := SameShape(a, tr); err != nil {
			return nil, err
		}
		skew := tr.Start().Sub(a.Start()).Seconds()
		if skew < 0 {
			skew = -skew
		}
		if skew > a.Delta()/2 {
			return nil, fmt.Errorf("%w: start times differ by %.6fs", ErrAlignment, skew)
		}
	}

	return &TraceGroup{traces: traces}, nil
}

// Traces returns the three component traces in construction order.
func (g *TraceGroup) Traces() [3]*Trace { return g.traces }

// Len returns the common sample count.
func (g *TraceGroup) Len() int { return g.traces[0].Len() }

// Delta returns the common sampling interval in seconds.
func (g *TraceGroup) Delta() float64 { return g.traces[0].Delta() }

// Component returns the trace whose header carries the given component
// code, or ErrMissingComponent.
func (g *TraceGroup) Component(code string) (*Trace, error) {
	for _, tr := range g.traces {
		if tr.Header().Component == code {
			return tr, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrMissingComponent, code)
}
