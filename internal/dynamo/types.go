package dynamo

import "math"

// BodyID is the engine's handle for one rigid body or multi-body.
type BodyID int

// StateID is the engine's handle for an in-memory snapshot.
type StateID int

// JointState is the instantaneous state of one joint.
type JointState struct {
	Position           float64    `json:"position"`
	Velocity           float64    `json:"velocity"`
	ReactionForces     [6]float64 `json:"reaction_forces"`
	AppliedMotorTorque float64    `json:"applied_motor_torque"`
}

// Vector is a generalized coordinate or velocity vector.
type Vector []float64

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (v Vector) Norm() float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func (v Vector) Sub(other Vector) Vector {
	result := make(Vector, len(v))
	for i := range v {
		if i < len(other) {
			result[i] = v[i] - other[i]
		} else {
			result[i] = v[i]
		}
	}
	return result
}

func (v Vector) Scale(factor float64) Vector {
	result := make(Vector, len(v))
	for i := range v {
		result[i] = v[i] * factor
	}
	return result
}

// Filled returns a vector of length n with every entry set to x.
func Filled(n int, x float64) Vector {
	v := make(Vector, n)
	for i := range v {
		v[i] = x
	}
	return v
}
