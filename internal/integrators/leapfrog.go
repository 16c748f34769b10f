package integrators

import "github.com/san-kum/physlink/internal/dynamo"

// Leapfrog is a kick-drift-kick scheme for Mechanical systems. Positions
// drift with the derivative evaluated at the half-step velocity, so
// quaternion-valued positions work as long as Derive maps velocities to
// position rates.
type Leapfrog struct {
	scratch dynamo.Vector
}

func NewLeapfrog() *Leapfrog {
	return &Leapfrog{}
}

func (l *Leapfrog) Step(sys System, x dynamo.Vector, t, dt float64) dynamo.Vector {
	n := len(x)
	np := split(sys, n)

	if len(l.scratch) != n {
		l.scratch = make(dynamo.Vector, n)
	}

	halfDt := dt * 0.5
	dx := sys.Derive(x, t)

	copy(l.scratch[:np], x[:np])
	for i := np; i < n; i++ {
		l.scratch[i] = x[i] + dx[i]*halfDt
	}

	drift := sys.Derive(l.scratch, t+halfDt)
	result := make(dynamo.Vector, n)
	for i := 0; i < np; i++ {
		result[i] = x[i] + drift[i]*dt
		l.scratch[i] = result[i]
	}

	dxNew := sys.Derive(l.scratch, t+dt)
	for i := np; i < n; i++ {
		result[i] = l.scratch[i] + dxNew[i]*halfDt
	}

	return result
}
