package refengine

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
	"github.com/san-kum/physlink/internal/integrators"
	"github.com/san-kum/physlink/internal/joint"
	"gonum.org/v1/gonum/mat"
)

// Default motor gains when a command leaves them at zero.
const (
	defaultPositionGain = 100.0
	defaultVelocityGain = 20.0
)

type motor struct {
	Mode           channel.ControlMode `json:"mode"`
	Target         float64             `json:"target"`
	TargetVelocity float64             `json:"target_velocity"`
	Force          float64             `json:"force"`
	PositionGain   float64             `json:"position_gain"`
	VelocityGain   float64             `json:"velocity_gain"`
}

type bodyState struct {
	id      int
	model   *Model
	fixed   bool
	index   *joint.IndexMap
	qOffset []int
	uOffset []int

	base    geom.Pose
	baseVel geom.Velocity
	q, u    []float64
	motors  []motor
	torques []float64

	linearDamping  float64
	angularDamping float64

	// stepHint is the step size an adaptive integrator proposed last.
	stepHint float64
}

func newBodyState(id int, m *Model, fixed bool) *bodyState {
	fixed = fixed || m.Static
	types := make([]joint.Type, len(m.Joints))
	for i, j := range m.Joints {
		types[i] = j.Type
	}
	idx := joint.Derive(types, joint.Base{Fixed: fixed})

	b := &bodyState{
		id:      id,
		model:   m,
		fixed:   fixed,
		index:   idx,
		qOffset: make([]int, len(types)),
		uOffset: make([]int, len(types)),
		base:    geom.Identity(),
		q:       make([]float64, idx.NumPositions()),
		u:       make([]float64, idx.NumVelocities()),
		motors:  make([]motor, len(types)),
		torques: make([]float64, len(types)),
	}
	for i := range m.Joints {
		m.Joints[i].QIndex, _ = idx.QIndex(i)
		m.Joints[i].UIndex, _ = idx.UIndex(i)
		b.qOffset[i], _ = idx.PositionOffset(i)
		b.uOffset[i], _ = idx.VelocityOffset(i)
		if types[i] == joint.Spherical {
			b.q[b.qOffset[i]+3] = 1
		}
	}
	return b
}

func (b *bodyState) reply() *channel.BodyReply {
	r := &channel.BodyReply{
		Body:      b.id,
		Name:      b.model.Name,
		BaseName:  b.model.BaseName,
		FixedBase: b.fixed,
		Joints:    make([]channel.JointInfo, len(b.model.Joints)),
		Links:     make([]channel.LinkInfo, len(b.model.Links)),
	}
	for i, j := range b.model.Joints {
		r.Joints[i] = channel.JointInfoOf(j)
	}
	for i, l := range b.model.Links {
		r.Links[i] = channel.LinkInfoOf(l)
	}
	return r
}

func (b *bodyState) dynamic() bool {
	return !b.fixed && b.model.BaseMass > 0
}

// checkJoint validates j and returns its offsets.
func (b *bodyState) checkJoint(j int) (int, int, error) {
	if err := b.index.CheckJoint(j); err != nil {
		return 0, 0, err
	}
	return b.qOffset[j], b.uOffset[j], nil
}

func (b *bodyState) checkLink(i int) error {
	if i < 0 || i >= len(b.model.Links) {
		return dynamo.OutOfRange("link", i, len(b.model.Links))
	}
	return nil
}

// controlForces evaluates every motor at (q, u).
func (b *bodyState) controlForces(q, u []float64, out []float64) {
	for i, j := range b.model.Joints {
		out[i] = 0
		qo, uo := b.qOffset[i], b.uOffset[i]
		if qo < 0 || j.Type.VelocityDOF() != 1 {
			continue
		}
		m := b.motors[i]
		limit := m.Force
		if limit <= 0 {
			limit = j.MaxForce
		}
		kp, kd := m.PositionGain, m.VelocityGain
		if kp <= 0 {
			kp = defaultPositionGain
		}
		if kd <= 0 {
			kd = defaultVelocityGain
		}
		switch m.Mode {
		case channel.ControlPosition:
			out[i] = clamp(kp*(m.Target-q[qo])+kd*(m.TargetVelocity-u[uo]), limit)
		case channel.ControlVelocity:
			out[i] = clamp(kd*(m.TargetVelocity-u[uo]), limit)
		case channel.ControlTorque:
			out[i] = m.Force
		}
	}
}

func clamp(x, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, x))
}

// accelerations solves M a = tau - G - D u at the given state.
func (b *bodyState) accelerations(base geom.Pose, q, u []float64, gravity mgl64.Vec3) []float64 {
	nu := len(u)
	if nu == 0 {
		return nil
	}
	f := b.forward(base, q)
	m := b.massMatrix(f, q)
	g := b.gravityForces(f, q, gravity)

	tau := make([]float64, len(b.model.Joints))
	b.controlForces(q, u, tau)

	rhs := mat.NewVecDense(nu, nil)
	for i, j := range b.model.Joints {
		uo := b.uOffset[i]
		if uo < 0 {
			continue
		}
		for k := 0; k < j.Type.VelocityDOF(); k++ {
			rhs.SetVec(uo+k, -j.Damping*u[uo+k])
		}
		if j.Type.VelocityDOF() == 1 {
			rhs.SetVec(uo, rhs.AtVec(uo)+tau[i])
		}
	}
	rhs.SubVec(rhs, g)

	var chol mat.Cholesky
	if !chol.Factorize(m) {
		return make([]float64, nu)
	}
	var a mat.VecDense
	if err := chol.SolveVecTo(&a, rhs); err != nil {
		return make([]float64, nu)
	}
	return a.RawVector().Data
}

// system adapts a body to the integrators. The state is
// [base position, base quaternion, q, base linear, base angular, u].
type system struct {
	b       *bodyState
	gravity mgl64.Vec3
}

func (s *system) Positions() int { return geom.PoseLen + len(s.b.q) }

func (s *system) pack() dynamo.Vector {
	b := s.b
	x := make(dynamo.Vector, 0, geom.PoseLen+len(b.q)+6+len(b.u))
	x = append(x, b.base.Slice()...)
	x = append(x, b.q...)
	x = append(x, b.baseVel.Slice()...)
	x = append(x, b.u...)
	return x
}

func (s *system) unpack(x dynamo.Vector) {
	b := s.b
	np := s.Positions()
	base := geom.NewPose(
		mgl64.Vec3{x[0], x[1], x[2]},
		geom.QuatXYZW(x[3], x[4], x[5], x[6]).Normalize(),
	)
	b.base = base
	copy(b.q, x[geom.PoseLen:np])
	b.baseVel = geom.Velocity{
		Linear:  mgl64.Vec3{x[np], x[np+1], x[np+2]},
		Angular: mgl64.Vec3{x[np+3], x[np+4], x[np+5]},
	}
	copy(b.u, x[np+6:])
	b.normalizeJoints()
}

func (s *system) Derive(x dynamo.Vector, t float64) dynamo.Vector {
	b := s.b
	np := s.Positions()
	dx := make(dynamo.Vector, len(x))

	base := geom.NewPose(mgl64.Vec3{x[0], x[1], x[2]}, geom.QuatXYZW(x[3], x[4], x[5], x[6]))
	q := x[geom.PoseLen:np]
	lin := mgl64.Vec3{x[np], x[np+1], x[np+2]}
	ang := mgl64.Vec3{x[np+3], x[np+4], x[np+5]}
	u := x[np+6:]

	if b.dynamic() {
		copy(dx[0:3], lin[:])
		qd := geom.QuatArray(quatDerivative(base.Rotation, ang))
		copy(dx[3:7], qd[:])
		acc := s.gravity.Sub(lin.Mul(b.linearDamping))
		copy(dx[np:np+3], acc[:])
		alpha := ang.Mul(-b.angularDamping)
		copy(dx[np+3:np+6], alpha[:])
	}

	for i, j := range b.model.Joints {
		qo, uo := b.qOffset[i], b.uOffset[i]
		if qo < 0 {
			continue
		}
		if j.Type == joint.Spherical {
			r := geom.QuatXYZW(q[qo], q[qo+1], q[qo+2], q[qo+3])
			w := mgl64.Vec3{u[uo], u[uo+1], u[uo+2]}
			qd := geom.QuatArray(quatDerivative(r, w))
			copy(dx[geom.PoseLen+qo:], qd[:])
			continue
		}
		copy(dx[geom.PoseLen+qo:geom.PoseLen+qo+j.Type.PositionDOF()], u[uo:uo+j.Type.VelocityDOF()])
	}

	copy(dx[np+6:], b.accelerations(base, q, u, s.gravity))
	return dx
}

func (b *bodyState) normalizeJoints() {
	for i, j := range b.model.Joints {
		if j.Type != joint.Spherical {
			continue
		}
		qo := b.qOffset[i]
		r := geom.QuatXYZW(b.q[qo], b.q[qo+1], b.q[qo+2], b.q[qo+3])
		if r.Len() == 0 {
			r = mgl64.QuatIdent()
		}
		a := geom.QuatArray(r.Normalize())
		copy(b.q[qo:qo+4], a[:])
	}
}

// enforceLimits clamps single-DOF joints into their range and stops them there.
func (b *bodyState) enforceLimits() {
	for i, j := range b.model.Joints {
		if !j.HasLimits() || j.Type.PositionDOF() != 1 {
			continue
		}
		qo, uo := b.qOffset[i], b.uOffset[i]
		switch {
		case b.q[qo] < j.LowerLimit:
			b.q[qo] = j.LowerLimit
			b.u[uo] = math.Max(b.u[uo], 0)
		case b.q[qo] > j.UpperLimit:
			b.q[qo] = j.UpperLimit
			b.u[uo] = math.Min(b.u[uo], 0)
		}
	}
}

type world struct {
	time     float64
	params   channel.Parameters
	bodies   map[int]*bodyState
	nextBody int
	// stats counts integrator trial steps since the world was created.
	stats integrators.Stats
}

func defaultParameters() channel.Parameters {
	return channel.Parameters{
		TimeStep:         1.0 / 240,
		SubSteps:         1,
		SolverIterations: 50,
		Integrator:       "rk4",
	}
}

func newWorld(params channel.Parameters) *world {
	return &world{
		params: params,
		bodies: make(map[int]*bodyState),
	}
}

func (w *world) body(id int) (*bodyState, error) {
	b, ok := w.bodies[id]
	if !ok {
		return nil, fmt.Errorf("%w: body %d", dynamo.ErrUnknownHandle, id)
	}
	return b, nil
}

func (w *world) ids() []int {
	ids := make([]int, 0, len(w.bodies))
	for id := range w.bodies {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (w *world) load(name string, pose *geom.Pose, fixed bool) (*bodyState, error) {
	m, err := lookupModel(name)
	if err != nil {
		return nil, err
	}
	b := newBodyState(w.nextBody, m, fixed)
	if pose != nil {
		b.base = *pose
	}
	w.bodies[b.id] = b
	w.nextBody++
	return b, nil
}

// step advances every body by one time step.
func (w *world) step() error {
	integ, err := integrators.New(w.params.Integrator)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidArgument, err)
	}
	sub := max(w.params.SubSteps, 1)
	h := w.params.TimeStep / float64(sub)
	g := mgl64.Vec3(w.params.Gravity)

	for _, id := range w.ids() {
		b := w.bodies[id]
		if b.fixed && len(b.u) == 0 {
			continue
		}
		sys := &system{b: b, gravity: g}
		x := sys.pack()
		for k := 0; k < sub; k++ {
			var st integrators.Stats
			x, st, err = integrators.Advance(integ, sys, x, w.time+float64(k)*h, h, &b.stepHint)
			w.stats.Add(st)
			if err != nil {
				return fmt.Errorf("%w: body %d: %v", dynamo.ErrEngineFailure, id, err)
			}
		}
		if !finite(x) {
			return fmt.Errorf("%w: body %d diverged", dynamo.ErrEngineFailure, id)
		}
		sys.unpack(x)
		b.enforceLimits()
		b.controlForces(b.q, b.u, b.torques)
	}
	w.time += w.params.TimeStep
	return nil
}
