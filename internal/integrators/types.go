package integrators

import (
	"fmt"
	"sort"

	"github.com/san-kum/physlink/internal/dynamo"
)

// System is a first-order ODE over a flat state vector.
type System interface {
	Derive(x dynamo.Vector, t float64) dynamo.Vector
}

// Mechanical systems keep their generalized positions at the head of the
// state vector and velocities after them. The two halves may differ in
// length when positions carry quaternions.
type Mechanical interface {
	System
	Positions() int
}

type Integrator interface {
	Step(sys System, x dynamo.Vector, t, dt float64) dynamo.Vector
}

var registry = map[string]func() Integrator{
	"euler":    func() Integrator { return NewEuler() },
	"rk4":      func() Integrator { return NewRK4() },
	"rk45":     func() Integrator { return NewRK45() },
	"leapfrog": func() Integrator { return NewLeapfrog() },
}

// New returns a fresh integrator by name.
func New(name string) (Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func split(sys System, n int) int {
	if m, ok := sys.(Mechanical); ok {
		return m.Positions()
	}
	return n / 2
}
