package joint

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/geom"
)

// Type is the kind of a joint. Values match the engine's wire codes.
type Type int

const (
	Revolute Type = iota
	Prismatic
	Spherical
	Planar
	Fixed
	Point2Point
	Gear
)

// dof lists position and velocity slots per joint type.
var dof = [...]struct {
	name string
	q, u int
}{
	Revolute:    {"revolute", 1, 1},
	Prismatic:   {"prismatic", 1, 1},
	Spherical:   {"spherical", 4, 3},
	Planar:      {"planar", 3, 3},
	Fixed:       {"fixed", 0, 0},
	Point2Point: {"point2point", 0, 0},
	Gear:        {"gear", 0, 0},
}

func (t Type) Valid() bool { return t >= 0 && int(t) < len(dof) }

// PositionDOF is the number of q slots the joint occupies.
func (t Type) PositionDOF() int {
	if !t.Valid() {
		return 0
	}
	return dof[t].q
}

// VelocityDOF is the number of u slots the joint occupies.
func (t Type) VelocityDOF() int {
	if !t.Valid() {
		return 0
	}
	return dof[t].u
}

// Movable reports whether the joint contributes generalized coordinates.
func (t Type) Movable() bool { return t.PositionDOF() > 0 }

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("joint(%d)", int(t))
	}
	return dof[t].name
}

func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, d := range dof {
		if d.name == name {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("unknown joint type: %s", s)
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown joint type: %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Flags are engine-reported joint capabilities.
type Flags int

const (
	// ChangeMaxForce marks a joint whose max force was set explicitly.
	ChangeMaxForce Flags = 1 << iota
)

// Info is the engine's metadata for one joint.
type Info struct {
	Index       int
	Name        string
	Type        Type
	QIndex      int
	UIndex      int
	Flags       Flags
	Damping     float64
	Friction    float64
	LowerLimit  float64
	UpperLimit  float64
	MaxForce    float64
	MaxVelocity float64
	LinkName    string
	Axis        mgl64.Vec3
	// ParentFramePose is the joint frame relative to the parent link frame.
	ParentFramePose geom.Pose
	// ParentIndex is the parent link, -1 for the base.
	ParentIndex int
}

// HasLimits reports whether the joint range is meaningful. The engine marks an
// unlimited joint with lower > upper.
func (i Info) HasLimits() bool {
	return i.Type.Movable() && i.LowerLimit <= i.UpperLimit
}
