package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/dynamo"
)

// Velocity is the spatial velocity of a link's center of mass in world coordinates.
type Velocity struct {
	Linear  mgl64.Vec3
	Angular mgl64.Vec3
}

func VelocityFromArrays(linear, angular []float64) (Velocity, error) {
	l, err := Vec3FromSlice(linear)
	if err != nil {
		return Velocity{}, err
	}
	a, err := Vec3FromSlice(angular)
	if err != nil {
		return Velocity{}, err
	}
	return Velocity{Linear: l, Angular: a}, nil
}

// VelocityFromArray reads linear then angular components.
func VelocityFromArray(a []float64) (Velocity, error) {
	if len(a) != 6 {
		return Velocity{}, dynamo.Mismatch("velocity", len(a), 6)
	}
	return VelocityFromArrays(a[:3], a[3:])
}

func (v Velocity) Array() [6]float64 {
	return [6]float64{
		v.Linear[0], v.Linear[1], v.Linear[2],
		v.Angular[0], v.Angular[1], v.Angular[2],
	}
}

func (v Velocity) Slice() []float64 {
	a := v.Array()
	return a[:]
}

// ApproxEqual compares every component with an absolute tolerance.
func (v Velocity) ApproxEqual(other Velocity, tol float64) bool {
	a, b := v.Array(), other.Array()
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}
