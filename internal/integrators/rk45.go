package integrators

import (
	"math"

	"github.com/san-kum/physlink/internal/dynamo"
)

// DefaultTolerance is the RK45 local error tolerance, relative to the state.
const DefaultTolerance = 1e-6

// RK45 is the Dormand-Prince 5(4) method with step size control. Step
// integrates the whole interval, substepping as the error estimate demands.
type RK45 struct {
	explicitRK
	Tolerance float64

	safety   float64
	minScale float64
	maxScale float64
}

func NewRK45() *RK45 {
	return &RK45{
		explicitRK: newExplicitRK(dormandPrince),
		Tolerance:  DefaultTolerance,
		safety:     0.9,
		minScale:   0.2,
		maxScale:   5,
	}
}

func (r *RK45) Step(sys System, x dynamo.Vector, t, dt float64) dynamo.Vector {
	hint := dt
	out, _, err := Advance(r, sys, x, t, dt, &hint)
	if err != nil {
		return dynamo.Filled(len(x), math.NaN())
	}
	return out
}

// Attempt takes one trial step of dt. ratio is the error estimate over the
// tolerance; the step is acceptable when ratio <= 1. next is the step size to
// try after this one, accepted or not.
func (r *RK45) Attempt(sys System, x dynamo.Vector, t, dt float64) (dynamo.Vector, float64, float64) {
	r.stages(sys, x, t, dt)
	xNew := r.combine(x, dt, r.tab.b)

	worst := 0.0
	for i := range x {
		est := 0.0
		for s, w := range r.tab.e {
			est += w * r.k[s][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*r.k[0][i]) + 1e-10
		worst = math.Max(worst, math.Abs(dt*est)/scale)
	}
	ratio := worst / r.Tolerance

	// The estimate is fourth order, so the error scales with dt^5.
	grow := r.maxScale
	if ratio > 0 {
		grow = math.Min(r.maxScale, math.Max(r.minScale, r.safety*math.Pow(ratio, -0.2)))
	}
	return xNew, ratio, dt * grow
}
