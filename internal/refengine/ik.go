package refengine

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
	"github.com/san-kum/physlink/internal/joint"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultIKIterations = 20
	defaultIKThreshold  = 1e-4
	ikDamping           = 1e-2
	restWeight          = 1e-3
)

type ikResult struct {
	q          []float64
	iterations int
	residual   float64
	converged  bool
}

// inverseKinematics runs damped least squares on a copy of the body's
// positions. The world is never modified.
func (b *bodyState) inverseKinematics(args *channel.IKArgs) *ikResult {
	q := append([]float64(nil), b.q...)
	if len(args.CurrentPositions) == len(q) && len(q) > 0 {
		copy(q, args.CurrentPositions)
	}
	iters := args.MaxIterations
	if iters <= 0 {
		iters = defaultIKIterations
	}
	threshold := args.ResidualThreshold
	if threshold <= 0 {
		threshold = defaultIKThreshold
	}

	target := mgl64.Vec3(args.TargetPosition)
	var orient *mgl64.Quat
	if args.TargetOrientation != nil {
		o := args.TargetOrientation
		r := geom.QuatXYZW(o[0], o[1], o[2], o[3]).Normalize()
		orient = &r
	}

	nu := b.index.NumVelocities()
	res := &ikResult{q: q}
	if nu == 0 {
		res.residual = b.ikError(q, args.EndEffector, target, orient).Norm()
		res.converged = res.residual <= threshold
		return res
	}

	for res.iterations < iters {
		e := b.ikError(q, args.EndEffector, target, orient)
		res.residual = e.Norm()
		if res.residual <= threshold {
			res.converged = true
			return res
		}
		res.iterations++

		f := b.forward(b.base, q)
		p := f.link[args.EndEffector].Translation
		lin, ang := b.jacobian(f, q, args.EndEffector, p)
		j := lin
		rows := 3
		if orient != nil {
			j = mat.NewDense(6, nu, nil)
			j.Stack(lin, ang)
			rows = 6
		}
		ev := mat.NewVecDense(rows, e)

		// (J'J + L) dq = J'e + W (rest - q)
		var a mat.Dense
		a.Mul(j.T(), j)
		var rhs mat.VecDense
		rhs.MulVec(j.T(), ev)
		for k := 0; k < nu; k++ {
			d := ikDamping * ikDamping
			if k < len(args.JointDamping) {
				d += args.JointDamping[k] * args.JointDamping[k]
			}
			a.Set(k, k, a.At(k, k)+d)
		}
		b.restBias(args, q, &a, &rhs)

		sym := mat.NewSymDense(nu, nil)
		for r := 0; r < nu; r++ {
			for c := r; c < nu; c++ {
				sym.SetSym(r, c, 0.5*(a.At(r, c)+a.At(c, r)))
			}
		}
		var chol mat.Cholesky
		if !chol.Factorize(sym) {
			break
		}
		var dq mat.VecDense
		if err := chol.SolveVecTo(&dq, &rhs); err != nil {
			break
		}
		b.advance(q, dq.RawVector().Data)
		b.clampIK(args, q)
	}

	res.residual = b.ikError(q, args.EndEffector, target, orient).Norm()
	res.converged = res.residual <= threshold
	return res
}

// ikError is the position error, followed by the orientation error as a
// rotation vector when a target orientation is given.
func (b *bodyState) ikError(q []float64, link int, target mgl64.Vec3, orient *mgl64.Quat) dynamo.Vector {
	f := b.forward(b.base, q)
	frame := f.link[link]
	d := target.Sub(frame.Translation)
	if orient == nil {
		return dynamo.Vector{d[0], d[1], d[2]}
	}
	qe := orient.Mul(frame.Rotation.Conjugate())
	if qe.W < 0 {
		qe = qe.Scale(-1)
	}
	w := qe.V.Mul(2)
	return dynamo.Vector{d[0], d[1], d[2], w[0], w[1], w[2]}
}

// restBias pulls single-DOF joints toward their rest pose, weighted by the
// inverse square of their range.
func (b *bodyState) restBias(args *channel.IKArgs, q []float64, a *mat.Dense, rhs *mat.VecDense) {
	if len(args.RestPoses) != len(q) {
		return
	}
	for i, j := range b.model.Joints {
		qo, uo := b.qOffset[i], b.uOffset[i]
		if qo < 0 || j.Type.PositionDOF() != 1 {
			continue
		}
		w := restWeight
		if uo < len(args.JointRanges) && args.JointRanges[uo] > 0 {
			w = restWeight / (args.JointRanges[uo] * args.JointRanges[uo])
		}
		a.Set(uo, uo, a.At(uo, uo)+w)
		rhs.SetVec(uo, rhs.AtVec(uo)+w*(args.RestPoses[qo]-q[qo]))
	}
}

// advance applies a velocity-space step dq to positions q in place.
func (b *bodyState) advance(q, dq []float64) {
	for i, j := range b.model.Joints {
		qo, uo := b.qOffset[i], b.uOffset[i]
		if qo < 0 {
			continue
		}
		if j.Type == joint.Spherical {
			r := geom.QuatXYZW(q[qo], q[qo+1], q[qo+2], q[qo+3])
			r = quatStep(r, mgl64.Vec3{dq[uo], dq[uo+1], dq[uo+2]})
			q[qo], q[qo+1], q[qo+2], q[qo+3] = r.V[0], r.V[1], r.V[2], r.W
			continue
		}
		for k := 0; k < j.Type.VelocityDOF(); k++ {
			q[qo+k] += dq[uo+k]
		}
	}
}

func (b *bodyState) clampIK(args *channel.IKArgs, q []float64) {
	custom := len(args.LowerLimits) == len(q) && len(args.UpperLimits) == len(q)
	for i, j := range b.model.Joints {
		qo := b.qOffset[i]
		if qo < 0 || j.Type.PositionDOF() != 1 {
			continue
		}
		lo, hi := j.LowerLimit, j.UpperLimit
		if custom {
			lo, hi = args.LowerLimits[qo], args.UpperLimits[qo]
		} else if !j.HasLimits() {
			continue
		}
		q[qo] = math.Max(lo, math.Min(hi, q[qo]))
	}
}
