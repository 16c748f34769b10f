package integrators

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/physlink/internal/dynamo"
)

// ErrStepSize is returned when step size control cannot meet its tolerance.
var ErrStepSize = errors.New("integrators: step size underflow")

// Adaptive integrators estimate their local error.
type Adaptive interface {
	Integrator
	Attempt(sys System, x dynamo.Vector, t, dt float64) (xNew dynamo.Vector, ratio, next float64)
}

// Stats counts the trial steps of an Advance call.
type Stats struct {
	Accepted int
	Rejected int
}

func (s *Stats) Add(o Stats) {
	s.Accepted += o.Accepted
	s.Rejected += o.Rejected
}

// minStepFraction bounds how far below the interval a trial step may shrink.
const minStepFraction = 1e-9

// Advance integrates x over [t, t+span]. Fixed-step integrators take one step.
// Adaptive ones start from *hint (span when unset), retry every step whose
// error ratio exceeds one with the smaller proposed size, and leave the last
// proposal in *hint for the next call.
func Advance(in Integrator, sys System, x dynamo.Vector, t, span float64, hint *float64) (dynamo.Vector, Stats, error) {
	ad, ok := in.(Adaptive)
	if !ok {
		return in.Step(sys, x, t, span), Stats{Accepted: 1}, nil
	}

	var st Stats
	dt := span
	if hint != nil && *hint > 0 {
		dt = min(*hint, span)
	}
	for done := 0.0; done < span; {
		dt = min(dt, span-done)
		if dt < span*minStepFraction {
			return x, st, fmt.Errorf("%w: step %g at t=%g", ErrStepSize, dt, t+done)
		}
		xNew, ratio, next := ad.Attempt(sys, x, t+done, dt)
		if math.IsNaN(ratio) || !xNew.IsValid() {
			st.Rejected++
			dt *= 0.5
			continue
		}
		if ratio > 1 {
			st.Rejected++
			dt = next
			continue
		}
		st.Accepted++
		x = xNew
		done += dt
		dt = next
		if span-done <= span*minStepFraction {
			break
		}
	}
	if hint != nil {
		*hint = dt
	}
	return x, st, nil
}
