package refengine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
)

func newConn(t *testing.T, codec channel.Codec) *channel.Conn {
	t.Helper()
	c := channel.NewConn(channel.Direct(New()), channel.WithCodec(codec))
	t.Cleanup(func() { c.Close() })
	return c
}

func load(t *testing.T, c *channel.Conn, name string, fixed bool) *channel.BodyReply {
	t.Helper()
	var r channel.BodyReply
	if err := c.Call(context.Background(), channel.CmdLoadModel, &channel.LoadModelArgs{Name: name, FixedBase: fixed}, &r); err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return &r
}

func setGravity(t *testing.T, c *channel.Conn, g [3]float64) {
	t.Helper()
	if err := c.Call(context.Background(), channel.CmdSetParameters, &channel.ParameterUpdate{Gravity: &g}, nil); err != nil {
		t.Fatal(err)
	}
}

func TestPendulumGravity(t *testing.T) {
	w := newWorld(defaultParameters())
	b, err := w.load("pendulum", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	g := mgl64.Vec3{0, 0, -9.81}

	for _, theta := range []float64{0, 0.3, -1.2, math.Pi / 2} {
		b.q[0] = theta
		a := b.accelerations(b.base, b.q, b.u, g)
		want := -9.81 * math.Sin(theta)
		if math.Abs(a[0]-want) > 1e-9 {
			t.Errorf("theta=%v: expected alpha %f, got %f", theta, want, a[0])
		}
	}
}

func TestPendulumEnergyConserved(t *testing.T) {
	c := newConn(t, channel.JSON)
	r := load(t, c, "pendulum", true)
	setGravity(t, c, [3]float64{0, 0, -9.81})
	ctx := context.Background()
	if err := c.Call(ctx, channel.CmdResetJointState, &channel.ResetJointArgs{Body: r.Body, Joint: 0, Position: 1}, nil); err != nil {
		t.Fatal(err)
	}

	energy := func() float64 {
		var s channel.JointStatesReply
		if err := c.Call(ctx, channel.CmdJointStates, &channel.JointStatesArgs{Body: r.Body, Joints: []int{0}}, &s); err != nil {
			t.Fatal(err)
		}
		st := s.States[0]
		return 0.5*st.Velocity*st.Velocity - 9.81*math.Cos(st.Position)
	}

	e0 := energy()
	if err := c.Call(ctx, channel.CmdStep, &channel.StepArgs{Steps: 480}, nil); err != nil {
		t.Fatal(err)
	}
	if e1 := energy(); math.Abs(e1-e0) > 1e-4 {
		t.Errorf("energy drifted from %f to %f", e0, e1)
	}
}

func TestAdaptiveStepRejectsAndCarriesStepSize(t *testing.T) {
	p := defaultParameters()
	p.Integrator = "rk45"
	p.TimeStep = 0.5
	p.Gravity = [3]float64{0, 0, -9.81}
	w := newWorld(p)
	b, err := w.load("pendulum", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	b.q[0] = 1
	energy := func() float64 { return 0.5*b.u[0]*b.u[0] - 9.81*math.Cos(b.q[0]) }
	e0 := energy()

	for i := 0; i < 4; i++ {
		if err := w.step(); err != nil {
			t.Fatal(err)
		}
	}
	if w.stats.Rejected == 0 {
		t.Error("expected rejected trial steps at a 0.5 s time step")
	}
	if w.stats.Accepted <= 4 {
		t.Errorf("expected substeps, got %d accepted steps for 4 time steps", w.stats.Accepted)
	}
	if b.stepHint <= 0 || b.stepHint >= p.TimeStep {
		t.Errorf("carried step size %g outside (0, %g)", b.stepHint, p.TimeStep)
	}
	if math.Abs(w.time-2) > 1e-12 {
		t.Errorf("expected time 2, got %f", w.time)
	}
	if e1 := energy(); math.Abs(e1-e0) > 1e-3 {
		t.Errorf("energy drifted from %f to %f", e0, e1)
	}
}

func TestFloatingBaseFalls(t *testing.T) {
	c := newConn(t, channel.JSON)
	r := load(t, c, "cube", false)
	setGravity(t, c, [3]float64{0, 0, -9.81})
	ctx := context.Background()

	var step channel.StepReply
	if err := c.Call(ctx, channel.CmdStep, &channel.StepArgs{Steps: 240}, &step); err != nil {
		t.Fatal(err)
	}
	if math.Abs(step.Time-1) > 1e-9 {
		t.Errorf("expected time 1, got %f", step.Time)
	}
	var base channel.BaseState
	if err := c.Call(ctx, channel.CmdBaseState, &channel.BodyArgs{Body: r.Body}, &base); err != nil {
		t.Fatal(err)
	}
	if math.Abs(base.Pose[2]+4.905) > 1e-6 {
		t.Errorf("expected z -4.905, got %f", base.Pose[2])
	}
	if math.Abs(base.Velocity[2]+9.81) > 1e-6 {
		t.Errorf("expected vz -9.81, got %f", base.Velocity[2])
	}
}

func TestPositionControlSettles(t *testing.T) {
	c := newConn(t, channel.Msgpack)
	r := load(t, c, "pendulum", true)
	ctx := context.Background()

	args := &channel.MotorControlArgs{
		Body:            r.Body,
		Mode:            channel.ControlPosition,
		Joints:          []int{0},
		TargetPositions: []float64{0.5},
	}
	if err := c.Call(ctx, channel.CmdMotorControl, args, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Call(ctx, channel.CmdStep, &channel.StepArgs{Steps: 960}, nil); err != nil {
		t.Fatal(err)
	}
	var s channel.JointStatesReply
	if err := c.Call(ctx, channel.CmdJointStates, &channel.JointStatesArgs{Body: r.Body}, &s); err != nil {
		t.Fatal(err)
	}
	if math.Abs(s.States[0].Position-0.5) > 1e-3 {
		t.Errorf("expected joint at 0.5, got %f", s.States[0].Position)
	}
}

func TestMotorControlLengthMismatch(t *testing.T) {
	c := newConn(t, channel.JSON)
	r := load(t, c, "double_pendulum", true)
	args := &channel.MotorControlArgs{
		Body:   r.Body,
		Mode:   channel.ControlTorque,
		Joints: []int{0, 1},
		Forces: []float64{1},
	}
	err := c.Call(context.Background(), channel.CmdMotorControl, args, nil)
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
}

func TestMassMatrixSymmetric(t *testing.T) {
	w := newWorld(defaultParameters())
	for _, name := range []string{"double_pendulum", "two_joint_arm", "slider_arm", "ball_pendulum", "planar_puck", "rover"} {
		b, err := w.load(name, nil, true)
		if err != nil {
			t.Fatal(err)
		}
		for i := range b.q {
			b.q[i] += 0.1 * float64(i+1)
		}
		b.normalizeJoints()
		m := b.massMatrix(b.forward(b.base, b.q), b.q)
		n, _ := m.Dims()
		if n != len(b.u) {
			t.Fatalf("%s: expected %d x %d, got %d", name, len(b.u), len(b.u), n)
		}
		for r := 0; r < n; r++ {
			if m.At(r, r) <= 0 {
				t.Errorf("%s: non-positive diagonal %d: %f", name, r, m.At(r, r))
			}
			for c := 0; c < n; c++ {
				if math.Abs(m.At(r, c)-m.At(c, r)) > 1e-9 {
					t.Errorf("%s: M[%d][%d]=%f M[%d][%d]=%f", name, r, c, m.At(r, c), c, r, m.At(c, r))
				}
			}
		}
	}
}

func TestJacobianMatchesFiniteDifference(t *testing.T) {
	w := newWorld(defaultParameters())
	b, err := w.load("two_joint_arm", nil, true)
	if err != nil {
		t.Fatal(err)
	}
	q := []float64{0.3, -0.5}
	qd := []float64{0.7, 0.2}
	const h = 1e-6

	for link := range b.model.Links {
		f := b.forward(b.base, q)
		p := f.com[link].Translation
		lin, _ := b.jacobian(f, q, link, p)

		plus := make([]float64, 2)
		minus := make([]float64, 2)
		for i := range q {
			plus[i] = q[i] + h*qd[i]
			minus[i] = q[i] - h*qd[i]
		}
		pp := b.forward(b.base, plus).com[link].Translation
		pm := b.forward(b.base, minus).com[link].Translation
		fd := pp.Sub(pm).Mul(1 / (2 * h))

		for r := 0; r < 3; r++ {
			v := lin.At(r, 0)*qd[0] + lin.At(r, 1)*qd[1]
			if math.Abs(v-fd[r]) > 1e-6 {
				t.Errorf("link %d row %d: J qdot %f, finite difference %f", link, r, v, fd[r])
			}
		}
	}
}

func TestInverseDynamicsMatchesForward(t *testing.T) {
	c := newConn(t, channel.JSON)
	r := load(t, c, "double_pendulum", true)
	setGravity(t, c, [3]float64{0, 0, -9.81})
	ctx := context.Background()

	q := []float64{0.4, -0.3}
	qdd := []float64{1.5, -2}
	var tau channel.VectorReply
	args := &channel.InverseDynamicsArgs{Body: r.Body, Q: q, QDot: []float64{0, 0}, QDDot: qdd}
	if err := c.Call(ctx, channel.CmdInverseDynamics, args, &tau); err != nil {
		t.Fatal(err)
	}

	w := newWorld(defaultParameters())
	b, _ := w.load("double_pendulum", nil, true)
	b.motors[0] = motor{Mode: channel.ControlTorque, Force: tau.Values[0]}
	b.motors[1] = motor{Mode: channel.ControlTorque, Force: tau.Values[1]}
	a := b.accelerations(b.base, q, []float64{0, 0}, mgl64.Vec3{0, 0, -9.81})
	for i := range qdd {
		if math.Abs(a[i]-qdd[i]) > 1e-9 {
			t.Errorf("joint %d: expected qddot %f, got %f", i, qdd[i], a[i])
		}
	}
}

func TestJacobianRejectsBadInput(t *testing.T) {
	c := newConn(t, channel.JSON)
	r := load(t, c, "two_joint_arm", true)
	ctx := context.Background()

	tests := []struct {
		name string
		args channel.JacobianArgs
		want error
	}{
		{"link out of range", channel.JacobianArgs{Body: r.Body, Link: 4, Q: make([]float64, 2), QDot: make([]float64, 2), QDDot: make([]float64, 2)}, dynamo.ErrIndexOutOfRange},
		{"negative link", channel.JacobianArgs{Body: r.Body, Link: -1, Q: make([]float64, 2), QDot: make([]float64, 2), QDDot: make([]float64, 2)}, dynamo.ErrIndexOutOfRange},
		{"short q", channel.JacobianArgs{Body: r.Body, Link: 3, Q: make([]float64, 4), QDot: make([]float64, 2), QDDot: make([]float64, 2)}, dynamo.ErrDimensionMismatch},
		{"unknown body", channel.JacobianArgs{Body: 42, Link: 0}, dynamo.ErrUnknownHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Call(ctx, channel.CmdJacobian, &tt.args, nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestInverseKinematics(t *testing.T) {
	c := newConn(t, channel.JSON)
	r := load(t, c, "two_joint_arm", true)
	ctx := context.Background()

	target := [3]float64{math.Cos(0.4), math.Sin(0.4), 0.125}
	orient := [4]float64{0, 0, math.Sin(0.5), math.Cos(0.5)}
	args := &channel.IKArgs{
		Body:              r.Body,
		EndEffector:       3,
		TargetPosition:    target,
		TargetOrientation: &orient,
		MaxIterations:     100,
	}
	var ik channel.IKReply
	if err := c.Call(ctx, channel.CmdInverseKinematics, args, &ik); err != nil {
		t.Fatal(err)
	}
	if !ik.Converged {
		t.Fatalf("expected convergence, residual %g after %d iterations", ik.Residual, ik.Iterations)
	}
	if math.Abs(ik.Positions[0]-0.4) > 1e-3 || math.Abs(ik.Positions[1]-0.6) > 1e-3 {
		t.Errorf("expected [0.4 0.6], got %v", ik.Positions)
	}

	// The world itself is untouched.
	var s channel.JointStatesReply
	if err := c.Call(ctx, channel.CmdJointStates, &channel.JointStatesArgs{Body: r.Body}, &s); err != nil {
		t.Fatal(err)
	}
	for _, st := range s.States {
		if st.Position != 0 {
			t.Errorf("expected joints at rest, got %v", s.States)
		}
	}
}

func TestInverseKinematicsUnreachable(t *testing.T) {
	c := newConn(t, channel.JSON)
	r := load(t, c, "two_joint_arm", true)
	args := &channel.IKArgs{Body: r.Body, EndEffector: 3, TargetPosition: [3]float64{5, 5, 5}}
	var ik channel.IKReply
	if err := c.Call(context.Background(), channel.CmdInverseKinematics, args, &ik); err != nil {
		t.Fatal(err)
	}
	if ik.Converged {
		t.Errorf("expected no convergence, residual %g", ik.Residual)
	}
	if ik.Iterations != defaultIKIterations {
		t.Errorf("expected %d iterations, got %d", defaultIKIterations, ik.Iterations)
	}
}

func TestSaveRestoreState(t *testing.T) {
	c := newConn(t, channel.Msgpack)
	r := load(t, c, "rover", false)
	setGravity(t, c, [3]float64{0, 0, -9.81})
	ctx := context.Background()

	if err := c.Call(ctx, channel.CmdStep, &channel.StepArgs{Steps: 10}, nil); err != nil {
		t.Fatal(err)
	}
	var before channel.BaseState
	if err := c.Call(ctx, channel.CmdBaseState, &channel.BodyArgs{Body: r.Body}, &before); err != nil {
		t.Fatal(err)
	}
	var saved channel.StateArgs
	if err := c.Call(ctx, channel.CmdSaveState, nil, &saved); err != nil {
		t.Fatal(err)
	}
	if err := c.Call(ctx, channel.CmdStep, &channel.StepArgs{Steps: 10}, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Call(ctx, channel.CmdRestoreState, &saved, nil); err != nil {
		t.Fatal(err)
	}
	var after channel.BaseState
	if err := c.Call(ctx, channel.CmdBaseState, &channel.BodyArgs{Body: r.Body}, &after); err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Errorf("expected restored base %v, got %v", before, after)
	}

	if err := c.Call(ctx, channel.CmdRemoveState, &saved, nil); err != nil {
		t.Fatal(err)
	}
	err := c.Call(ctx, channel.CmdRestoreState, &saved, nil)
	if !errors.Is(err, dynamo.ErrUnknownHandle) {
		t.Errorf("expected unknown handle, got %v", err)
	}
	var se *dynamo.StatusError
	if !errors.As(err, &se) || se.Code != channel.UnknownState.String() {
		t.Errorf("expected unknown_state status, got %v", err)
	}
}

func TestImportRejectsOtherVersion(t *testing.T) {
	c := newConn(t, channel.JSON)
	load(t, c, "pendulum", true)
	ctx := context.Background()

	var blob channel.StateBlob
	if err := c.Call(ctx, channel.CmdExportState, nil, &blob); err != nil {
		t.Fatal(err)
	}
	if blob.EngineVersion != EngineVersion {
		t.Errorf("expected version %q, got %q", EngineVersion, blob.EngineVersion)
	}
	if err := c.Call(ctx, channel.CmdImportState, &blob, nil); err != nil {
		t.Fatalf("import own blob: %v", err)
	}

	blob.EngineVersion = "refengine/0"
	if err := c.Call(ctx, channel.CmdImportState, &blob, nil); !errors.Is(err, dynamo.ErrIncompatibleSnapshot) {
		t.Errorf("expected incompatible snapshot, got %v", err)
	}
	blob.EngineVersion = EngineVersion
	blob.Blob = []byte("{")
	if err := c.Call(ctx, channel.CmdImportState, &blob, nil); !errors.Is(err, dynamo.ErrIncompatibleSnapshot) {
		t.Errorf("expected incompatible snapshot, got %v", err)
	}
}

func TestResetSimulationKeepsParameters(t *testing.T) {
	c := newConn(t, channel.JSON)
	load(t, c, "cube", false)
	setGravity(t, c, [3]float64{0, 0, -1})
	ctx := context.Background()

	if err := c.Call(ctx, channel.CmdResetSimulation, nil, nil); err != nil {
		t.Fatal(err)
	}
	var list channel.BodyList
	if err := c.Call(ctx, channel.CmdListBodies, nil, &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Bodies) != 0 {
		t.Errorf("expected no bodies, got %v", list.Bodies)
	}
	var p channel.Parameters
	if err := c.Call(ctx, channel.CmdGetParameters, nil, &p); err != nil {
		t.Fatal(err)
	}
	if p.Gravity != [3]float64{0, 0, -1} {
		t.Errorf("expected gravity kept, got %v", p.Gravity)
	}
}

func TestBodyIDsNotReused(t *testing.T) {
	c := newConn(t, channel.JSON)
	ctx := context.Background()

	arm := load(t, c, "two_joint_arm", true)
	var saved channel.StateArgs
	if err := c.Call(ctx, channel.CmdSaveState, nil, &saved); err != nil {
		t.Fatal(err)
	}
	if err := c.Call(ctx, channel.CmdResetSimulation, nil, nil); err != nil {
		t.Fatal(err)
	}
	cube := load(t, c, "cube", false)
	if cube.Body == arm.Body {
		t.Fatalf("body id %d reused after reset", cube.Body)
	}
	err := c.Call(ctx, channel.CmdBodyInfo, &channel.BodyArgs{Body: arm.Body}, nil)
	if !errors.Is(err, dynamo.ErrUnknownHandle) {
		t.Errorf("stale handle after reset: expected ErrUnknownHandle, got %v", err)
	}

	if err := c.Call(ctx, channel.CmdRestoreState, &saved, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Call(ctx, channel.CmdBodyInfo, &channel.BodyArgs{Body: cube.Body}, nil); !errors.Is(err, dynamo.ErrUnknownHandle) {
		t.Errorf("handle from before restore: expected ErrUnknownHandle, got %v", err)
	}
	pendulum := load(t, c, "pendulum", true)
	if pendulum.Body == arm.Body || pendulum.Body == cube.Body {
		t.Errorf("body id %d reused after restore", pendulum.Body)
	}
}

func TestSetParametersValidates(t *testing.T) {
	c := newConn(t, channel.JSON)
	bogus := "bogus"
	zero := 0
	for _, u := range []channel.ParameterUpdate{{Integrator: &bogus}, {SubSteps: &zero}} {
		err := c.Call(context.Background(), channel.CmdSetParameters, &u, nil)
		var se *dynamo.StatusError
		if !errors.As(err, &se) || se.Code != channel.InvalidArgument.String() {
			t.Errorf("expected invalid argument, got %v", err)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	c := newConn(t, channel.JSON)
	err := c.Call(context.Background(), channel.Command("teleport"), nil, nil)
	if !errors.Is(err, dynamo.ErrEngineFailure) {
		t.Errorf("expected engine failure, got %v", err)
	}
}

func TestLoadResolvesIndices(t *testing.T) {
	c := newConn(t, channel.JSON)
	r := load(t, c, "rover", false)
	e, err := r.Entry()
	if err != nil {
		t.Fatal(err)
	}
	q, _ := e.Index.QIndex(2)
	u, _ := e.Index.UIndex(2)
	if q != 7 || u != 6 {
		t.Errorf("expected first wheel at q=7 u=6, got q=%d u=%d", q, u)
	}
	if e.Index.NumPositions() != 2 {
		t.Errorf("expected 2 positions, got %d", e.Index.NumPositions())
	}
}
