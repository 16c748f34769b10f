package refengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-logr/logr"
	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
	"github.com/san-kum/physlink/internal/integrators"
	"gonum.org/v1/gonum/mat"
)

const (
	EngineName    = "physlink-refengine"
	EngineVersion = "refengine/1"
)

var (
	errInvalidArgument = dynamo.ErrInvalidArgument
	errUnknownState    = fmt.Errorf("%w: state", dynamo.ErrUnknownHandle)
)

func codeFor(err error) channel.Code {
	switch {
	case errors.Is(err, errUnknownState):
		return channel.UnknownState
	case errors.Is(err, errInvalidArgument):
		return channel.InvalidArgument
	default:
		return channel.CodeOf(err)
	}
}

type Option func(*Engine)

func WithLogger(log logr.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithParameters sets the world parameters used at start and after a reset.
func WithParameters(p channel.Parameters) Option {
	return func(e *Engine) { e.world.params = p }
}

// Engine executes channel commands against an in-memory world. All commands
// are serialized.
type Engine struct {
	mu        sync.Mutex
	log       logr.Logger
	world     *world
	saved     map[int][]byte
	nextState int
	handlers  map[channel.Command]func(*channel.Request) *channel.Status
}

func New(opts ...Option) *Engine {
	e := &Engine{
		log:   logr.Discard(),
		world: newWorld(defaultParameters()),
		saved: make(map[int][]byte),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = map[channel.Command]func(*channel.Request) *channel.Status{
		channel.CmdEngineInfo:        handle(e.engineInfo),
		channel.CmdLoadModel:         handle(e.loadModel),
		channel.CmdRemoveBody:        handle(e.removeBody),
		channel.CmdListBodies:        handle(e.listBodies),
		channel.CmdBodyInfo:          handle(e.bodyInfo),
		channel.CmdJointStates:       handle(e.jointStates),
		channel.CmdResetJointState:   handle(e.resetJointState),
		channel.CmdMotorControl:      handle(e.motorControl),
		channel.CmdLinkStates:        handle(e.linkStates),
		channel.CmdBaseState:         handle(e.baseState),
		channel.CmdResetBasePose:     handle(e.resetBasePose),
		channel.CmdResetBaseVelocity: handle(e.resetBaseVelocity),
		channel.CmdChangeDynamics:    handle(e.changeDynamics),
		channel.CmdStep:              handle(e.step),
		channel.CmdResetSimulation:   handle(e.resetSimulation),
		channel.CmdGetParameters:     handle(e.getParameters),
		channel.CmdSetParameters:     handle(e.setParameters),
		channel.CmdJacobian:          handle(e.jacobian),
		channel.CmdMassMatrix:        handle(e.massMatrix),
		channel.CmdInverseDynamics:   handle(e.inverseDynamics),
		channel.CmdInverseKinematics: handle(e.inverseKinematics),
		channel.CmdSaveState:         handle(e.saveState),
		channel.CmdRestoreState:      handle(e.restoreState),
		channel.CmdRemoveState:       handle(e.removeState),
		channel.CmdExportState:       handle(e.exportState),
		channel.CmdImportState:       handle(e.importState),
	}
	return e
}

// Handle implements channel.Handler.
func (e *Engine) Handle(ctx context.Context, req *channel.Request) *channel.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, ok := e.handlers[req.Command]
	if !ok {
		return channel.Fail(req, channel.UnknownCommand, fmt.Sprintf("unknown command %q", req.Command))
	}
	st := h(req)
	if st.Code != channel.OK {
		e.log.V(1).Info("command failed", "command", req.Command, "code", st.Code, "message", st.Message)
	} else {
		e.log.V(2).Info("command", "command", req.Command, "seq", req.Seq)
	}
	return st
}

type none struct{}

func handle[A any](fn func(*A) (any, error)) func(*channel.Request) *channel.Status {
	return func(req *channel.Request) *channel.Status {
		var args A
		if err := req.Decode(&args); err != nil {
			return channel.Fail(req, channel.InvalidArgument, "decode: "+err.Error())
		}
		out, err := fn(&args)
		if err != nil {
			return channel.Fail(req, codeFor(err), err.Error())
		}
		return channel.Reply(req, out)
	}
}

func (e *Engine) engineInfo(*none) (any, error) {
	return &channel.EngineInfo{Name: EngineName, Version: EngineVersion}, nil
}

func (e *Engine) loadModel(a *channel.LoadModelArgs) (any, error) {
	var pose *geom.Pose
	if a.BasePose != nil {
		p, err := geom.PoseFromArray(a.BasePose[:])
		if err != nil {
			return nil, err
		}
		pose = &p
	}
	b, err := e.world.load(a.Name, pose, a.FixedBase)
	if err != nil {
		return nil, err
	}
	e.log.V(1).Info("loaded model", "model", a.Name, "body", b.id)
	return b.reply(), nil
}

func (e *Engine) removeBody(a *channel.BodyArgs) (any, error) {
	if _, err := e.world.body(a.Body); err != nil {
		return nil, err
	}
	delete(e.world.bodies, a.Body)
	return nil, nil
}

func (e *Engine) listBodies(*none) (any, error) {
	return &channel.BodyList{Bodies: e.world.ids()}, nil
}

func (e *Engine) bodyInfo(a *channel.BodyArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	return b.reply(), nil
}

// jointStates reports every joint when no indices are given. Joints with more
// than one coordinate report their first.
func (e *Engine) jointStates(a *channel.JointStatesArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	joints := a.Joints
	if len(joints) == 0 {
		joints = make([]int, len(b.model.Joints))
		for i := range joints {
			joints[i] = i
		}
	}
	out := &channel.JointStatesReply{States: make([]dynamo.JointState, len(joints))}
	for k, j := range joints {
		qo, uo, err := b.checkJoint(j)
		if err != nil {
			return nil, err
		}
		st := dynamo.JointState{AppliedMotorTorque: b.torques[j]}
		if qo >= 0 {
			st.Position = b.q[qo]
			st.Velocity = b.u[uo]
		}
		out.States[k] = st
	}
	return out, nil
}

func (e *Engine) resetJointState(a *channel.ResetJointArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	qo, uo, err := b.checkJoint(a.Joint)
	if err != nil {
		return nil, err
	}
	if qo < 0 {
		return nil, nil
	}
	if t := b.model.Joints[a.Joint].Type; t.PositionDOF() != 1 {
		return nil, fmt.Errorf("%w: joint %d is %s with %d coordinates", errInvalidArgument, a.Joint, t, t.PositionDOF())
	}
	b.q[qo] = a.Position
	b.u[uo] = a.Velocity
	return nil, nil
}

func (e *Engine) motorControl(a *channel.MotorControlArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	if a.Mode < channel.ControlPosition || a.Mode > channel.ControlTorque {
		return nil, fmt.Errorf("%w: control mode %d", errInvalidArgument, int(a.Mode))
	}
	n := len(a.Joints)
	for name, v := range map[string][]float64{
		"target positions":  a.TargetPositions,
		"target velocities": a.TargetVelocities,
		"forces":            a.Forces,
		"position gains":    a.PositionGains,
		"velocity gains":    a.VelocityGains,
	} {
		if v != nil && len(v) != n {
			return nil, dynamo.Mismatch(name, len(v), n)
		}
	}
	for _, j := range a.Joints {
		if _, _, err := b.checkJoint(j); err != nil {
			return nil, err
		}
	}
	at := func(v []float64, k int) float64 {
		if v == nil {
			return 0
		}
		return v[k]
	}
	for k, j := range a.Joints {
		b.motors[j] = motor{
			Mode:           a.Mode,
			Target:         at(a.TargetPositions, k),
			TargetVelocity: at(a.TargetVelocities, k),
			Force:          at(a.Forces, k),
			PositionGain:   at(a.PositionGains, k),
			VelocityGain:   at(a.VelocityGains, k),
		}
	}
	return nil, nil
}

func (e *Engine) linkStates(a *channel.LinkStatesArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	for _, l := range a.Links {
		if err := b.checkLink(l); err != nil {
			return nil, err
		}
	}
	f := b.forward(b.base, b.q)
	out := &channel.LinkStatesReply{States: make([]channel.LinkState, len(a.Links))}
	for k, l := range a.Links {
		st := channel.LinkState{
			WorldPose:          f.com[l].Array(),
			LocalInertialPose:  b.model.Links[l].LocalInertialPose.Array(),
			WorldLinkFramePose: f.link[l].Array(),
		}
		if a.ComputeVelocity {
			v := b.linkVelocity(f, l)
			st.Velocity = v.Slice()
		}
		out.States[k] = st
	}
	return out, nil
}

// linkVelocity is the velocity of link l's center of mass: the base motion
// plus J u.
func (b *bodyState) linkVelocity(f *frames, l int) geom.Velocity {
	p := f.com[l].Translation
	v := geom.Velocity{
		Linear:  b.baseVel.Linear.Add(b.baseVel.Angular.Cross(p.Sub(b.base.Translation))),
		Angular: b.baseVel.Angular,
	}
	lin, ang := b.jacobian(f, b.q, l, p)
	if lin == nil {
		return v
	}
	u := mat.NewVecDense(len(b.u), b.u)
	var jl, ja mat.VecDense
	jl.MulVec(lin, u)
	ja.MulVec(ang, u)
	for r := 0; r < 3; r++ {
		v.Linear[r] += jl.AtVec(r)
		v.Angular[r] += ja.AtVec(r)
	}
	return v
}

func (e *Engine) baseState(a *channel.BodyArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	return &channel.BaseState{Pose: b.base.Array(), Velocity: b.baseVel.Array()}, nil
}

func (e *Engine) resetBasePose(a *channel.BasePoseArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	p, err := geom.PoseFromArray(a.Pose[:])
	if err != nil {
		return nil, err
	}
	b.base = p
	return nil, nil
}

// resetBaseVelocity is ignored for fixed bodies.
func (e *Engine) resetBaseVelocity(a *channel.BaseVelocityArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	if !b.dynamic() {
		return nil, nil
	}
	if a.Linear != nil {
		b.baseVel.Linear = *a.Linear
	}
	if a.Angular != nil {
		b.baseVel.Angular = *a.Angular
	}
	return nil, nil
}

func (e *Engine) changeDynamics(a *channel.ChangeDynamicsArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	if a.Mass != nil && *a.Mass < 0 {
		return nil, fmt.Errorf("%w: negative mass %g", errInvalidArgument, *a.Mass)
	}
	if a.Link == -1 {
		if a.Mass != nil {
			b.model.BaseMass = *a.Mass
		}
		if a.LinearDamping != nil {
			b.linearDamping = *a.LinearDamping
		}
		if a.AngularDamping != nil {
			b.angularDamping = *a.AngularDamping
		}
		return nil, nil
	}
	if err := b.checkLink(a.Link); err != nil {
		return nil, err
	}
	if a.Mass != nil {
		b.model.Links[a.Link].Mass = *a.Mass
	}
	if a.JointDamping != nil {
		b.model.Joints[a.Link].Damping = *a.JointDamping
	}
	if a.MaxJointForce != nil {
		b.model.Joints[a.Link].MaxForce = *a.MaxJointForce
	}
	return nil, nil
}

func (e *Engine) step(a *channel.StepArgs) (any, error) {
	if a.Steps < 1 {
		return nil, fmt.Errorf("%w: steps must be at least 1, got %d", errInvalidArgument, a.Steps)
	}
	for i := 0; i < a.Steps; i++ {
		if err := e.world.step(); err != nil {
			return nil, err
		}
	}
	return &channel.StepReply{Time: e.world.time}, nil
}

// resetSimulation removes every body. Parameters and saved states survive.
func (e *Engine) resetSimulation(*none) (any, error) {
	e.replace(newWorld(e.world.params))
	return nil, nil
}

// replace swaps in w. Body ids keep increasing across the swap so a handle
// from the old world never names a body of the new one.
func (e *Engine) replace(w *world) {
	w.nextBody = max(w.nextBody, e.world.nextBody)
	e.world = w
}

func (e *Engine) getParameters(*none) (any, error) {
	p := e.world.params
	p.Time = e.world.time
	return &p, nil
}

func (e *Engine) setParameters(a *channel.ParameterUpdate) (any, error) {
	p := e.world.params
	if a.TimeStep != nil {
		if *a.TimeStep <= 0 {
			return nil, fmt.Errorf("%w: time step %g", errInvalidArgument, *a.TimeStep)
		}
		p.TimeStep = *a.TimeStep
	}
	if a.Gravity != nil {
		p.Gravity = *a.Gravity
	}
	if a.SubSteps != nil {
		if *a.SubSteps < 1 {
			return nil, fmt.Errorf("%w: sub steps %d", errInvalidArgument, *a.SubSteps)
		}
		p.SubSteps = *a.SubSteps
	}
	if a.SolverIterations != nil {
		if *a.SolverIterations < 1 {
			return nil, fmt.Errorf("%w: solver iterations %d", errInvalidArgument, *a.SolverIterations)
		}
		p.SolverIterations = *a.SolverIterations
	}
	if a.Integrator != nil {
		if _, err := integrators.New(*a.Integrator); err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidArgument, err)
		}
		p.Integrator = *a.Integrator
	}
	e.world.params = p
	return nil, nil
}

func (e *Engine) jacobian(a *channel.JacobianArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	if err := b.checkLink(a.Link); err != nil {
		return nil, err
	}
	if err := b.checkState(a.Q, a.QDot, a.QDDot); err != nil {
		return nil, err
	}
	nu := len(b.u)
	out := &channel.JacobianReply{
		Linear:  channel.Matrix{Rows: 3, Cols: nu, Data: make([]float64, 3*nu)},
		Angular: channel.Matrix{Rows: 3, Cols: nu, Data: make([]float64, 3*nu)},
	}
	f := b.forward(b.base, a.Q)
	p := f.com[a.Link].Apply(a.LocalPosition)
	lin, ang := b.jacobian(f, a.Q, a.Link, p)
	if lin != nil {
		out.Linear = matrixOf(lin)
		out.Angular = matrixOf(ang)
	}
	return out, nil
}

func (e *Engine) massMatrix(a *channel.MassMatrixArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	if err := b.index.CheckPositions("q", a.Q); err != nil {
		return nil, err
	}
	nu := len(b.u)
	m := b.massMatrix(b.forward(b.base, a.Q), a.Q)
	if m == nil {
		return &channel.Matrix{Rows: nu, Cols: nu}, nil
	}
	out := matrixOf(m)
	return &out, nil
}

// inverseDynamics returns tau = M qddot + G + D qdot.
func (e *Engine) inverseDynamics(a *channel.InverseDynamicsArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	if err := b.checkState(a.Q, a.QDot, a.QDDot); err != nil {
		return nil, err
	}
	nu := len(b.u)
	if nu == 0 {
		return &channel.VectorReply{Values: []float64{}}, nil
	}
	g := mgl64.Vec3(e.world.params.Gravity)
	f := b.forward(b.base, a.Q)
	var tau mat.VecDense
	tau.MulVec(b.massMatrix(f, a.Q), mat.NewVecDense(nu, a.QDDot))
	tau.AddVec(&tau, b.gravityForces(f, a.Q, g))
	for i, j := range b.model.Joints {
		uo := b.uOffset[i]
		if uo < 0 {
			continue
		}
		for k := 0; k < j.Type.VelocityDOF(); k++ {
			tau.SetVec(uo+k, tau.AtVec(uo+k)+j.Damping*a.QDot[uo+k])
		}
	}
	return &channel.VectorReply{Values: tau.RawVector().Data}, nil
}

func (e *Engine) inverseKinematics(a *channel.IKArgs) (any, error) {
	b, err := e.world.body(a.Body)
	if err != nil {
		return nil, err
	}
	if err := b.checkLink(a.EndEffector); err != nil {
		return nil, err
	}
	nq, nu := len(b.q), len(b.u)
	for _, c := range []struct {
		name string
		v    []float64
		want int
	}{
		{"joint damping", a.JointDamping, nu},
		{"lower limits", a.LowerLimits, nq},
		{"upper limits", a.UpperLimits, nq},
		{"joint ranges", a.JointRanges, nu},
		{"rest poses", a.RestPoses, nq},
		{"current positions", a.CurrentPositions, nq},
	} {
		if c.v != nil && len(c.v) != c.want {
			return nil, dynamo.Mismatch(c.name, len(c.v), c.want)
		}
	}
	if a.TargetOrientation != nil {
		if _, err := geom.PoseFromParts([]float64{0, 0, 0}, a.TargetOrientation[:]); err != nil {
			return nil, err
		}
	}
	r := b.inverseKinematics(a)
	return &channel.IKReply{
		Positions:  r.q,
		Iterations: r.iterations,
		Residual:   r.residual,
		Converged:  r.converged,
	}, nil
}

func (e *Engine) saveState(*none) (any, error) {
	blob, err := e.world.encode()
	if err != nil {
		return nil, err
	}
	id := e.nextState
	e.nextState++
	e.saved[id] = blob
	return &channel.StateArgs{State: id}, nil
}

func (e *Engine) restoreState(a *channel.StateArgs) (any, error) {
	blob, ok := e.saved[a.State]
	if !ok {
		return nil, fmt.Errorf("%w %d", errUnknownState, a.State)
	}
	w, err := decodeWorld(blob)
	if err != nil {
		return nil, err
	}
	e.replace(w)
	return nil, nil
}

func (e *Engine) removeState(a *channel.StateArgs) (any, error) {
	if _, ok := e.saved[a.State]; !ok {
		return nil, fmt.Errorf("%w %d", errUnknownState, a.State)
	}
	delete(e.saved, a.State)
	return nil, nil
}

func (e *Engine) exportState(*none) (any, error) {
	blob, err := e.world.encode()
	if err != nil {
		return nil, err
	}
	return &channel.StateBlob{EngineVersion: EngineVersion, Blob: blob}, nil
}

func (e *Engine) importState(a *channel.StateBlob) (any, error) {
	if a.EngineVersion != EngineVersion {
		return nil, fmt.Errorf("%w: blob from %q, engine is %q",
			dynamo.ErrIncompatibleSnapshot, a.EngineVersion, EngineVersion)
	}
	w, err := decodeWorld(a.Blob)
	if err != nil {
		return nil, err
	}
	e.replace(w)
	return nil, nil
}

// checkState validates joint-space q, qdot and qddot.
func (b *bodyState) checkState(q, qd, qdd []float64) error {
	if err := b.index.CheckPositions("q", q); err != nil {
		return err
	}
	if err := b.index.CheckVelocities("qdot", qd); err != nil {
		return err
	}
	return b.index.CheckVelocities("qddot", qdd)
}

func matrixOf(m mat.Matrix) channel.Matrix {
	r, c := m.Dims()
	out := channel.Matrix{Rows: r, Cols: c, Data: make([]float64, 0, r*c)}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Data = append(out.Data, m.At(i, j))
		}
	}
	return out
}
