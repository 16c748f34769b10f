package channel

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/body"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
	"github.com/san-kum/physlink/internal/joint"
)

// Poses travel as [x y z qx qy qz qw], velocities as [vx vy vz wx wy wz].

type EngineInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type LoadModelArgs struct {
	Name      string      `json:"name"`
	BasePose  *[7]float64 `json:"base_pose,omitempty"`
	FixedBase bool        `json:"fixed_base"`
}

type BodyArgs struct {
	Body int `json:"body"`
}

type BodyList struct {
	Bodies []int `json:"bodies"`
}

type JointInfo struct {
	Index           int        `json:"index"`
	Name            string     `json:"name"`
	Type            int        `json:"type"`
	QIndex          int        `json:"q_index"`
	UIndex          int        `json:"u_index"`
	Flags           int        `json:"flags"`
	Damping         float64    `json:"damping"`
	Friction        float64    `json:"friction"`
	LowerLimit      float64    `json:"lower_limit"`
	UpperLimit      float64    `json:"upper_limit"`
	MaxForce        float64    `json:"max_force"`
	MaxVelocity     float64    `json:"max_velocity"`
	LinkName        string     `json:"link_name"`
	Axis            [3]float64 `json:"axis"`
	ParentFramePose [7]float64 `json:"parent_frame_pose"`
	ParentIndex     int        `json:"parent_index"`
}

func JointInfoOf(i joint.Info) JointInfo {
	return JointInfo{
		Index:           i.Index,
		Name:            i.Name,
		Type:            int(i.Type),
		QIndex:          i.QIndex,
		UIndex:          i.UIndex,
		Flags:           int(i.Flags),
		Damping:         i.Damping,
		Friction:        i.Friction,
		LowerLimit:      i.LowerLimit,
		UpperLimit:      i.UpperLimit,
		MaxForce:        i.MaxForce,
		MaxVelocity:     i.MaxVelocity,
		LinkName:        i.LinkName,
		Axis:            i.Axis,
		ParentFramePose: i.ParentFramePose.Array(),
		ParentIndex:     i.ParentIndex,
	}
}

func (w JointInfo) Info() (joint.Info, error) {
	pose, err := geom.PoseFromArray(w.ParentFramePose[:])
	if err != nil {
		return joint.Info{}, err
	}
	return joint.Info{
		Index:           w.Index,
		Name:            w.Name,
		Type:            joint.Type(w.Type),
		QIndex:          w.QIndex,
		UIndex:          w.UIndex,
		Flags:           joint.Flags(w.Flags),
		Damping:         w.Damping,
		Friction:        w.Friction,
		LowerLimit:      w.LowerLimit,
		UpperLimit:      w.UpperLimit,
		MaxForce:        w.MaxForce,
		MaxVelocity:     w.MaxVelocity,
		LinkName:        w.LinkName,
		Axis:            mgl64.Vec3(w.Axis),
		ParentFramePose: pose,
		ParentIndex:     w.ParentIndex,
	}, nil
}

type LinkInfo struct {
	Index             int        `json:"index"`
	Name              string     `json:"name"`
	Mass              float64    `json:"mass"`
	LocalInertialPose [7]float64 `json:"local_inertial_pose"`
	LocalInertia      [3]float64 `json:"local_inertia"`
}

func LinkInfoOf(l body.Link) LinkInfo {
	return LinkInfo{
		Index:             l.Index,
		Name:              l.Name,
		Mass:              l.Mass,
		LocalInertialPose: l.LocalInertialPose.Array(),
		LocalInertia:      l.LocalInertiaDiagonal,
	}
}

func (w LinkInfo) Link() (body.Link, error) {
	pose, err := geom.PoseFromArray(w.LocalInertialPose[:])
	if err != nil {
		return body.Link{}, err
	}
	return body.Link{
		Index:                w.Index,
		Name:                 w.Name,
		Mass:                 w.Mass,
		LocalInertialPose:    pose,
		LocalInertiaDiagonal: mgl64.Vec3(w.LocalInertia),
	}, nil
}

// BodyReply is the metadata of one loaded body.
type BodyReply struct {
	Body      int         `json:"body"`
	Name      string      `json:"name"`
	BaseName  string      `json:"base_name"`
	FixedBase bool        `json:"fixed_base"`
	Joints    []JointInfo `json:"joints"`
	Links     []LinkInfo  `json:"links"`
}

// Entry converts the reply into a resolved registry entry.
func (r *BodyReply) Entry() (*body.Entry, error) {
	joints := make([]joint.Info, len(r.Joints))
	for i, w := range r.Joints {
		info, err := w.Info()
		if err != nil {
			return nil, err
		}
		joints[i] = info
	}
	links := make([]body.Link, len(r.Links))
	for i, w := range r.Links {
		l, err := w.Link()
		if err != nil {
			return nil, err
		}
		links[i] = l
	}
	e, err := body.NewEntry(dynamo.BodyID(r.Body), r.Name, joint.Base{Fixed: r.FixedBase}, joints, links)
	if err != nil {
		return nil, err
	}
	e.BaseName = r.BaseName
	return e, nil
}

type JointStatesArgs struct {
	Body   int   `json:"body"`
	Joints []int `json:"joints"`
}

type JointStatesReply struct {
	States []dynamo.JointState `json:"states"`
}

type ResetJointArgs struct {
	Body     int     `json:"body"`
	Joint    int     `json:"joint"`
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity"`
}

// ControlMode selects how a motor drives its joint.
type ControlMode int

const (
	ControlPosition ControlMode = iota + 1
	ControlVelocity
	ControlTorque
)

func (m ControlMode) String() string {
	switch m {
	case ControlPosition:
		return "position"
	case ControlVelocity:
		return "velocity"
	case ControlTorque:
		return "torque"
	default:
		return "none"
	}
}

type MotorControlArgs struct {
	Body             int         `json:"body"`
	Mode             ControlMode `json:"mode"`
	Joints           []int       `json:"joints"`
	TargetPositions  []float64   `json:"target_positions,omitempty"`
	TargetVelocities []float64   `json:"target_velocities,omitempty"`
	Forces           []float64   `json:"forces,omitempty"`
	PositionGains    []float64   `json:"position_gains,omitempty"`
	VelocityGains    []float64   `json:"velocity_gains,omitempty"`
}

type LinkStatesArgs struct {
	Body            int   `json:"body"`
	Links           []int `json:"links"`
	ComputeVelocity bool  `json:"compute_velocity"`
	ComputeFK       bool  `json:"compute_fk"`
}

type LinkState struct {
	WorldPose          [7]float64 `json:"world_pose"`
	LocalInertialPose  [7]float64 `json:"local_inertial_pose"`
	WorldLinkFramePose [7]float64 `json:"world_link_frame_pose"`
	Velocity           []float64  `json:"velocity,omitempty"`
}

type LinkStatesReply struct {
	States []LinkState `json:"states"`
}

type BaseState struct {
	Pose     [7]float64 `json:"pose"`
	Velocity [6]float64 `json:"velocity"`
}

type BasePoseArgs struct {
	Body int        `json:"body"`
	Pose [7]float64 `json:"pose"`
}

type BaseVelocityArgs struct {
	Body    int         `json:"body"`
	Linear  *[3]float64 `json:"linear,omitempty"`
	Angular *[3]float64 `json:"angular,omitempty"`
}

// ChangeDynamicsArgs updates only the fields that are set. Link -1 is the base.
type ChangeDynamicsArgs struct {
	Body           int      `json:"body"`
	Link           int      `json:"link"`
	Mass           *float64 `json:"mass,omitempty"`
	LinearDamping  *float64 `json:"linear_damping,omitempty"`
	AngularDamping *float64 `json:"angular_damping,omitempty"`
	JointDamping   *float64 `json:"joint_damping,omitempty"`
	MaxJointForce  *float64 `json:"max_joint_force,omitempty"`
}

type StepArgs struct {
	Steps int `json:"steps"`
}

type StepReply struct {
	Time float64 `json:"time"`
}

// Parameters are the engine's world settings.
type Parameters struct {
	TimeStep         float64    `json:"time_step"`
	Gravity          [3]float64 `json:"gravity"`
	SubSteps         int        `json:"sub_steps"`
	SolverIterations int        `json:"solver_iterations"`
	Integrator       string     `json:"integrator"`
	Time             float64    `json:"time"`
}

// ParameterUpdate changes only the fields that are set.
type ParameterUpdate struct {
	TimeStep         *float64    `json:"time_step,omitempty"`
	Gravity          *[3]float64 `json:"gravity,omitempty"`
	SubSteps         *int        `json:"sub_steps,omitempty"`
	SolverIterations *int        `json:"solver_iterations,omitempty"`
	Integrator       *string     `json:"integrator,omitempty"`
}

type JacobianArgs struct {
	Body          int        `json:"body"`
	Link          int        `json:"link"`
	LocalPosition [3]float64 `json:"local_position"`
	Q             []float64  `json:"q"`
	QDot          []float64  `json:"qdot"`
	QDDot         []float64  `json:"qddot"`
}

// Matrix is a row-major dense matrix.
type Matrix struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type JacobianReply struct {
	Linear  Matrix `json:"linear"`
	Angular Matrix `json:"angular"`
}

type MassMatrixArgs struct {
	Body int       `json:"body"`
	Q    []float64 `json:"q"`
}

type InverseDynamicsArgs struct {
	Body  int       `json:"body"`
	Q     []float64 `json:"q"`
	QDot  []float64 `json:"qdot"`
	QDDot []float64 `json:"qddot"`
}

type VectorReply struct {
	Values []float64 `json:"values"`
}

type IKArgs struct {
	Body              int         `json:"body"`
	EndEffector       int         `json:"end_effector"`
	TargetPosition    [3]float64  `json:"target_position"`
	TargetOrientation *[4]float64 `json:"target_orientation,omitempty"`
	MaxIterations     int         `json:"max_iterations"`
	ResidualThreshold float64     `json:"residual_threshold"`
	JointDamping      []float64   `json:"joint_damping,omitempty"`
	LowerLimits       []float64   `json:"lower_limits,omitempty"`
	UpperLimits       []float64   `json:"upper_limits,omitempty"`
	JointRanges       []float64   `json:"joint_ranges,omitempty"`
	RestPoses         []float64   `json:"rest_poses,omitempty"`
	CurrentPositions  []float64   `json:"current_positions,omitempty"`
}

type IKReply struct {
	Positions  []float64 `json:"positions"`
	Iterations int       `json:"iterations"`
	Residual   float64   `json:"residual"`
	Converged  bool      `json:"converged"`
}

type StateArgs struct {
	State int `json:"state"`
}

// StateBlob is an engine-serialized world.
type StateBlob struct {
	EngineVersion string `json:"engine_version"`
	Blob          []byte `json:"blob"`
}
