package refengine

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/body"
	"github.com/san-kum/physlink/internal/geom"
	"github.com/san-kum/physlink/internal/joint"
)

// Model is a body template. Joint q/u indices are filled in at load time,
// when the base kind is known.
type Model struct {
	Name        string
	BaseName    string
	BaseMass    float64
	BaseInertia mgl64.Vec3
	// Static bodies never move, whatever the load options say.
	Static bool
	Joints []joint.Info
	Links  []body.Link
}

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	axisZ = mgl64.Vec3{0, 0, 1}
)

var catalog = map[string]func() *Model{
	"plane":           newPlane,
	"cube":            newCube,
	"pendulum":        newPendulum,
	"double_pendulum": newDoublePendulum,
	"two_joint_arm":   newTwoJointArm,
	"slider_arm":      newSliderArm,
	"ball_pendulum":   newBallPendulum,
	"planar_puck":     newPlanarPuck,
	"rover":           newRover,
}

func lookupModel(name string) (*Model, error) {
	fn, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", errInvalidArgument, name)
	}
	return fn(), nil
}

// Models lists the catalog.
func Models() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type jointSpec struct {
	name   string
	typ    joint.Type
	axis   mgl64.Vec3
	parent int
	frame  geom.Pose
	lower  float64
	upper  float64
}

type linkSpec struct {
	name    string
	mass    float64
	com     mgl64.Vec3
	inertia mgl64.Vec3
}

// build pairs joint i with its child link i.
func build(m *Model, joints []jointSpec, links []linkSpec) *Model {
	for i, js := range joints {
		ls := links[i]
		m.Joints = append(m.Joints, joint.Info{
			Index:           i,
			Name:            js.name,
			Type:            js.typ,
			QIndex:          -1,
			UIndex:          -1,
			LowerLimit:      js.lower,
			UpperLimit:      js.upper,
			MaxForce:        500,
			MaxVelocity:     20,
			LinkName:        ls.name,
			Axis:            js.axis,
			ParentFramePose: js.frame,
			ParentIndex:     js.parent,
		})
		m.Links = append(m.Links, body.Link{
			Index:                i,
			Name:                 ls.name,
			Mass:                 ls.mass,
			LocalInertialPose:    geom.Translation(ls.com[0], ls.com[1], ls.com[2]),
			LocalInertiaDiagonal: ls.inertia,
		})
	}
	return m
}

// unlimited marks a joint range the way the engine reports "no limits".
const (
	unlimitedLower = 0.0
	unlimitedUpper = -1.0
)

func rod(length, mass float64) mgl64.Vec3 {
	i := mass * length * length / 12
	return mgl64.Vec3{0.001, i, i}
}

func newPlane() *Model {
	return &Model{Name: "plane", BaseName: "planeLink", Static: true}
}

func newCube() *Model {
	return &Model{
		Name:        "cube",
		BaseName:    "baseLink",
		BaseMass:    1,
		BaseInertia: mgl64.Vec3{1.0 / 6, 1.0 / 6, 1.0 / 6},
	}
}

// newPendulum is a point mass on a massless rod swinging about y.
func newPendulum() *Model {
	m := &Model{Name: "pendulum", BaseName: "pivot", BaseMass: 10, BaseInertia: mgl64.Vec3{1, 1, 1}}
	return build(m,
		[]jointSpec{
			{name: "hinge", typ: joint.Revolute, axis: axisY, parent: -1, frame: geom.Identity(), lower: unlimitedLower, upper: unlimitedUpper},
		},
		[]linkSpec{
			{name: "bob", mass: 1, com: mgl64.Vec3{0, 0, -1}},
		})
}

func newDoublePendulum() *Model {
	m := &Model{Name: "double_pendulum", BaseName: "pivot", BaseMass: 10, BaseInertia: mgl64.Vec3{1, 1, 1}}
	return build(m,
		[]jointSpec{
			{name: "hinge1", typ: joint.Revolute, axis: axisY, parent: -1, frame: geom.Identity(), lower: unlimitedLower, upper: unlimitedUpper},
			{name: "hinge2", typ: joint.Revolute, axis: axisY, parent: 0, frame: geom.Translation(0, 0, -1), lower: unlimitedLower, upper: unlimitedUpper},
		},
		[]linkSpec{
			{name: "bob1", mass: 1, com: mgl64.Vec3{0, 0, -1}},
			{name: "bob2", mass: 1, com: mgl64.Vec3{0, 0, -1}},
		})
}

// newTwoJointArm is a planar arm with two fixed brackets between its
// revolute joints.
func newTwoJointArm() *Model {
	m := &Model{Name: "two_joint_arm", BaseName: "base_link", BaseMass: 5, BaseInertia: mgl64.Vec3{0.1, 0.1, 0.1}}
	return build(m,
		[]jointSpec{
			{name: "joint1", typ: joint.Revolute, axis: axisZ, parent: -1, frame: geom.Translation(0, 0, 0.125), lower: -math.Pi, upper: math.Pi},
			{name: "bracket1", typ: joint.Fixed, axis: axisZ, parent: 0, frame: geom.Translation(1, 0, 0)},
			{name: "bracket2", typ: joint.Fixed, axis: axisZ, parent: 1, frame: geom.Identity()},
			{name: "joint2", typ: joint.Revolute, axis: axisZ, parent: 2, frame: geom.Identity(), lower: -math.Pi, upper: math.Pi},
		},
		[]linkSpec{
			{name: "link1", mass: 1, com: mgl64.Vec3{0.5, 0, 0}, inertia: rod(1, 1)},
			{name: "bracket_a", mass: 0.1, inertia: mgl64.Vec3{1e-4, 1e-4, 1e-4}},
			{name: "bracket_b", mass: 0.1, inertia: mgl64.Vec3{1e-4, 1e-4, 1e-4}},
			{name: "link2", mass: 1, com: mgl64.Vec3{1, 0, 0}, inertia: rod(1, 1)},
		})
}

func newSliderArm() *Model {
	m := &Model{Name: "slider_arm", BaseName: "rail", BaseMass: 5, BaseInertia: mgl64.Vec3{0.1, 0.1, 0.1}}
	return build(m,
		[]jointSpec{
			{name: "slide", typ: joint.Prismatic, axis: axisX, parent: -1, frame: geom.Identity(), lower: -1, upper: 1},
			{name: "swing", typ: joint.Revolute, axis: axisZ, parent: 0, frame: geom.Translation(0, 0, 0.1), lower: -math.Pi, upper: math.Pi},
		},
		[]linkSpec{
			{name: "carriage", mass: 2, inertia: mgl64.Vec3{0.01, 0.01, 0.01}},
			{name: "boom", mass: 0.5, com: mgl64.Vec3{0.5, 0, 0}, inertia: rod(1, 0.5)},
		})
}

func newBallPendulum() *Model {
	m := &Model{Name: "ball_pendulum", BaseName: "mount", BaseMass: 10, BaseInertia: mgl64.Vec3{1, 1, 1}}
	return build(m,
		[]jointSpec{
			{name: "ball", typ: joint.Spherical, parent: -1, frame: geom.Translation(0, 0, 2), lower: unlimitedLower, upper: unlimitedUpper},
			{name: "tip", typ: joint.Fixed, parent: 0, frame: geom.Translation(0, 0, -1)},
		},
		[]linkSpec{
			{name: "arm", mass: 1, com: mgl64.Vec3{0, 0, -0.5}, inertia: mgl64.Vec3{0.08, 0.08, 0.01}},
			{name: "tip_link", mass: 0.2, inertia: mgl64.Vec3{1e-3, 1e-3, 1e-3}},
		})
}

func newPlanarPuck() *Model {
	m := &Model{Name: "planar_puck", BaseName: "table", BaseMass: 20, BaseInertia: mgl64.Vec3{1, 1, 1}}
	return build(m,
		[]jointSpec{
			{name: "glide", typ: joint.Planar, axis: axisZ, parent: -1, frame: geom.Translation(0, 0, 0.05), lower: unlimitedLower, upper: unlimitedUpper},
		},
		[]linkSpec{
			{name: "puck", mass: 0.5, com: mgl64.Vec3{0.1, 0, 0}, inertia: mgl64.Vec3{0.002, 0.002, 0.004}},
		})
}

// newRover is a free-floating body whose first two joints are fixed legs,
// so its first movable coordinate sits right after the base block.
func newRover() *Model {
	m := &Model{Name: "rover", BaseName: "chassis", BaseMass: 8, BaseInertia: mgl64.Vec3{0.3, 0.3, 0.5}}
	return build(m,
		[]jointSpec{
			{name: "chassis_to_left_leg", typ: joint.Fixed, parent: -1, frame: geom.Translation(0, 0.25, 0)},
			{name: "chassis_to_right_leg", typ: joint.Fixed, parent: -1, frame: geom.Translation(0, -0.25, 0)},
			{name: "left_wheel", typ: joint.Revolute, axis: axisY, parent: 0, frame: geom.Translation(0, 0.05, -0.3), lower: unlimitedLower, upper: unlimitedUpper},
			{name: "right_wheel", typ: joint.Revolute, axis: axisY, parent: 1, frame: geom.Translation(0, -0.05, -0.3), lower: unlimitedLower, upper: unlimitedUpper},
		},
		[]linkSpec{
			{name: "left_leg", mass: 0.5, com: mgl64.Vec3{0, 0, -0.15}, inertia: mgl64.Vec3{0.004, 0.004, 0.001}},
			{name: "right_leg", mass: 0.5, com: mgl64.Vec3{0, 0, -0.15}, inertia: mgl64.Vec3{0.004, 0.004, 0.001}},
			{name: "left_wheel_link", mass: 0.3, inertia: mgl64.Vec3{0.002, 0.004, 0.002}},
			{name: "right_wheel_link", mass: 0.3, inertia: mgl64.Vec3{0.002, 0.004, 0.002}},
		})
}
