package client

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
	"gonum.org/v1/gonum/mat"
)

// Jacobian maps joint velocities to the spatial velocity of a point on a
// link. Both blocks are 3 x NumVelocities; they are nil for bodies without
// joint DOF. Floating-base columns are not included.
type Jacobian struct {
	Linear  *mat.Dense
	Angular *mat.Dense
}

// Velocity is J qdot.
func (j *Jacobian) Velocity(qdot []float64) (geom.Velocity, error) {
	var v geom.Velocity
	if j.Linear == nil {
		if len(qdot) != 0 {
			return v, dynamo.Mismatch("qdot", len(qdot), 0)
		}
		return v, nil
	}
	_, n := j.Linear.Dims()
	if len(qdot) != n {
		return v, dynamo.Mismatch("qdot", len(qdot), n)
	}
	u := mat.NewVecDense(n, qdot)
	var l, a mat.VecDense
	l.MulVec(j.Linear, u)
	a.MulVec(j.Angular, u)
	for r := 0; r < 3; r++ {
		v.Linear[r] = l.AtVec(r)
		v.Angular[r] = a.AtVec(r)
	}
	return v, nil
}

func denseOf(m channel.Matrix) (*mat.Dense, error) {
	if len(m.Data) != m.Rows*m.Cols {
		return nil, dynamo.Mismatch("matrix data", len(m.Data), m.Rows*m.Cols)
	}
	if m.Rows == 0 || m.Cols == 0 {
		return nil, nil
	}
	return mat.NewDense(m.Rows, m.Cols, m.Data), nil
}

// Jacobian computes the Jacobian of localPosition, given in the link's
// center of mass frame, at joint state q. q has NumPositions entries, qdot
// and qddot NumVelocities.
func (c *PhysicsClient) Jacobian(ctx context.Context, id dynamo.BodyID, link int, localPosition mgl64.Vec3, q, qdot, qddot []float64) (*Jacobian, error) {
	e, err := c.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.CheckLink(link); err != nil {
		return nil, err
	}
	if err := e.Index.CheckPositions("q", q); err != nil {
		return nil, err
	}
	if err := e.Index.CheckVelocities("qdot", qdot); err != nil {
		return nil, err
	}
	if err := e.Index.CheckVelocities("qddot", qddot); err != nil {
		return nil, err
	}

	args := &channel.JacobianArgs{
		Body:          int(id),
		Link:          link,
		LocalPosition: localPosition,
		Q:             q,
		QDot:          qdot,
		QDDot:         qddot,
	}
	var r channel.JacobianReply
	if err := c.conn.Call(ctx, channel.CmdJacobian, args, &r); err != nil {
		return nil, err
	}
	nu := e.Index.NumVelocities()
	for _, m := range []channel.Matrix{r.Linear, r.Angular} {
		if m.Rows != 3 || m.Cols != nu {
			return nil, dynamo.Mismatch("jacobian columns", m.Cols, nu)
		}
	}
	lin, err := denseOf(r.Linear)
	if err != nil {
		return nil, err
	}
	ang, err := denseOf(r.Angular)
	if err != nil {
		return nil, err
	}
	return &Jacobian{Linear: lin, Angular: ang}, nil
}

// MassMatrix returns the NumVelocities square joint-space mass matrix as the
// engine reports it, or nil for bodies without joint DOF.
func (c *PhysicsClient) MassMatrix(ctx context.Context, id dynamo.BodyID, q []float64) (*mat.Dense, error) {
	e, err := c.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.Index.CheckPositions("q", q); err != nil {
		return nil, err
	}
	var r channel.Matrix
	if err := c.conn.Call(ctx, channel.CmdMassMatrix, &channel.MassMatrixArgs{Body: int(id), Q: q}, &r); err != nil {
		return nil, err
	}
	nu := e.Index.NumVelocities()
	if r.Rows != nu || r.Cols != nu {
		return nil, dynamo.Mismatch("mass matrix size", r.Rows, nu)
	}
	return denseOf(r)
}

// InverseDynamics returns the joint forces that produce qddot at (q, qdot).
func (c *PhysicsClient) InverseDynamics(ctx context.Context, id dynamo.BodyID, q, qdot, qddot []float64) ([]float64, error) {
	e, err := c.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.Index.CheckPositions("q", q); err != nil {
		return nil, err
	}
	if err := e.Index.CheckVelocities("qdot", qdot); err != nil {
		return nil, err
	}
	if err := e.Index.CheckVelocities("qddot", qddot); err != nil {
		return nil, err
	}
	args := &channel.InverseDynamicsArgs{Body: int(id), Q: q, QDot: qdot, QDDot: qddot}
	var r channel.VectorReply
	if err := c.conn.Call(ctx, channel.CmdInverseDynamics, args, &r); err != nil {
		return nil, err
	}
	if err := e.Index.CheckVelocities("inverse dynamics reply", r.Values); err != nil {
		return nil, err
	}
	return r.Values, nil
}

// NullSpace biases the solution toward RestPoses within limits. Lower,
// Upper and Rest are joint-space positions; Ranges has one entry per
// velocity coordinate.
type NullSpace struct {
	Lower  []float64
	Upper  []float64
	Ranges []float64
	Rest   []float64
}

type IKOptions struct {
	EndEffector int
	Target      mgl64.Vec3
	// Orientation leaves the end effector orientation free when nil.
	Orientation       *mgl64.Quat
	MaxIterations     int
	ResidualThreshold float64
	JointDamping      []float64
	NullSpace         *NullSpace
	// CurrentPositions seeds the solver; the body's current state otherwise.
	CurrentPositions []float64
}

// IKResult reports the solution whether or not it converged.
type IKResult struct {
	// Positions has one entry per joint, 0 for joints without DOF. It is nil
	// for bodies with multi-coordinate joints; use DOF there.
	Positions  []float64
	DOF        []float64
	Iterations int
	Residual   float64
	Converged  bool
}

// InverseKinematics solves for joint positions that put the end effector
// link frame at opts.Target. Failing to converge is not an error.
func (c *PhysicsClient) InverseKinematics(ctx context.Context, id dynamo.BodyID, opts IKOptions) (*IKResult, error) {
	e, err := c.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.CheckLink(opts.EndEffector); err != nil {
		return nil, err
	}
	idx := e.Index
	if opts.JointDamping != nil {
		if err := idx.CheckVelocities("joint damping", opts.JointDamping); err != nil {
			return nil, err
		}
	}
	if opts.CurrentPositions != nil {
		if err := idx.CheckPositions("current positions", opts.CurrentPositions); err != nil {
			return nil, err
		}
	}

	args := &channel.IKArgs{
		Body:              int(id),
		EndEffector:       opts.EndEffector,
		TargetPosition:    opts.Target,
		MaxIterations:     opts.MaxIterations,
		ResidualThreshold: opts.ResidualThreshold,
		JointDamping:      opts.JointDamping,
		CurrentPositions:  opts.CurrentPositions,
	}
	if opts.Orientation != nil {
		o, err := geom.PoseFromParts([]float64{0, 0, 0}, quatSlice(*opts.Orientation))
		if err != nil {
			return nil, err
		}
		q := geom.QuatArray(o.Rotation)
		args.TargetOrientation = &q
	}
	if ns := opts.NullSpace; ns != nil {
		for _, v := range []struct {
			name string
			vals []float64
		}{{"lower limits", ns.Lower}, {"upper limits", ns.Upper}, {"rest poses", ns.Rest}} {
			if err := idx.CheckPositions(v.name, v.vals); err != nil {
				return nil, err
			}
		}
		if err := idx.CheckVelocities("joint ranges", ns.Ranges); err != nil {
			return nil, err
		}
		args.LowerLimits = ns.Lower
		args.UpperLimits = ns.Upper
		args.JointRanges = ns.Ranges
		args.RestPoses = ns.Rest
	}

	var r channel.IKReply
	if err := c.conn.Call(ctx, channel.CmdInverseKinematics, args, &r); err != nil {
		return nil, err
	}
	if err := idx.CheckPositions("inverse kinematics reply", r.Positions); err != nil {
		return nil, err
	}
	res := &IKResult{
		DOF:        r.Positions,
		Iterations: r.Iterations,
		Residual:   r.Residual,
		Converged:  r.Converged,
	}
	if idx.SingleDOF() {
		if res.Positions, err = idx.Expand(r.Positions, 0); err != nil {
			return nil, err
		}
	}
	if !r.Converged {
		c.log.V(1).Info("inverse kinematics did not converge", "body", id, "residual", r.Residual, "iterations", r.Iterations)
	}
	return res, nil
}

func quatSlice(q mgl64.Quat) []float64 {
	a := geom.QuatArray(q)
	return a[:]
}
