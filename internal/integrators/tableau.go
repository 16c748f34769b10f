package integrators

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/physlink/internal/dynamo"
)

// tableau is an explicit Runge-Kutta scheme in Butcher form. Row i of a holds
// the weights of stages 0..i-1 used to build stage i.
type tableau struct {
	c []float64
	a [][]float64
	b []float64
	// e is b minus the weights of the embedded lower-order solution. Nil for
	// schemes without an error estimate.
	e []float64
}

var (
	forwardEuler = &tableau{
		c: []float64{0},
		a: [][]float64{nil},
		b: []float64{1},
	}

	classicRK4 = &tableau{
		c: []float64{0, 0.5, 0.5, 1},
		a: [][]float64{
			nil,
			{0.5},
			{0, 0.5},
			{0, 0, 1},
		},
		b: []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
	}

	// dormandPrince is the 5(4) pair. Its last stage is evaluated at the new
	// state, so it doubles as the error stage.
	dormandPrince = &tableau{
		c: []float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1},
		a: [][]float64{
			nil,
			{1.0 / 5},
			{3.0 / 40, 9.0 / 40},
			{44.0 / 45, -56.0 / 15, 32.0 / 9},
			{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
			{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
			{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
		},
		b: []float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0},
		e: []float64{
			35.0/384 - 5179.0/57600,
			0,
			500.0/1113 - 7571.0/16695,
			125.0/192 - 393.0/640,
			-2187.0/6784 + 92097.0/339200,
			11.0/84 - 187.0/2100,
			-1.0 / 40,
		},
	}
)

// explicitRK evaluates a tableau, reusing its stage buffers between steps.
type explicitRK struct {
	tab *tableau
	k   []dynamo.Vector
	y   dynamo.Vector
}

func newExplicitRK(tab *tableau) explicitRK {
	return explicitRK{tab: tab}
}

func (r *explicitRK) resize(n int) {
	if r.k != nil && len(r.y) == n {
		return
	}
	r.k = make([]dynamo.Vector, len(r.tab.b))
	for i := range r.k {
		r.k[i] = make(dynamo.Vector, n)
	}
	r.y = make(dynamo.Vector, n)
}

// stages fills every stage derivative for a step of dt from x.
func (r *explicitRK) stages(sys System, x dynamo.Vector, t, dt float64) {
	r.resize(len(x))
	for i, row := range r.tab.a {
		copy(r.y, x)
		for j, w := range row {
			if w != 0 {
				floats.AddScaled(r.y, dt*w, r.k[j])
			}
		}
		copy(r.k[i], sys.Derive(r.y, t+r.tab.c[i]*dt))
	}
}

// combine returns x + dt * sum(w[i] * k[i]) in a fresh vector.
func (r *explicitRK) combine(x dynamo.Vector, dt float64, w []float64) dynamo.Vector {
	out := x.Clone()
	for i, wi := range w {
		if wi != 0 {
			floats.AddScaled(out, dt*wi, r.k[i])
		}
	}
	return out
}

func (r *explicitRK) Step(sys System, x dynamo.Vector, t, dt float64) dynamo.Vector {
	r.stages(sys, x, t, dt)
	return r.combine(x, dt, r.tab.b)
}

// Euler is the forward Euler method.
type Euler struct{ explicitRK }

func NewEuler() *Euler { return &Euler{newExplicitRK(forwardEuler)} }

// RK4 is the classic fourth-order Runge-Kutta method.
type RK4 struct{ explicitRK }

func NewRK4() *RK4 { return &RK4{newExplicitRK(classicRK4)} }
