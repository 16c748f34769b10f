package refengine

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/geom"
	"github.com/san-kum/physlink/internal/joint"
	"gonum.org/v1/gonum/mat"
)

// frames holds the world transforms of every link for one configuration.
type frames struct {
	base geom.Pose
	// joint is the world frame of joint i before its own motion.
	joint []geom.Pose
	link  []geom.Pose
	com   []geom.Pose
}

// motion is the transform a joint applies for its position slice.
func motion(t joint.Type, axis mgl64.Vec3, q []float64) geom.Pose {
	switch t {
	case joint.Revolute:
		return geom.Pose{Rotation: geom.QuatAxisAngle(unit(axis), q[0])}
	case joint.Prismatic:
		a := unit(axis).Mul(q[0])
		return geom.Translation(a[0], a[1], a[2])
	case joint.Spherical:
		r := geom.QuatXYZW(q[0], q[1], q[2], q[3])
		if n := r.Len(); n > 0 {
			r = r.Scale(1 / n)
		} else {
			r = mgl64.QuatIdent()
		}
		return geom.Pose{Rotation: r}
	case joint.Planar:
		return geom.Pose{
			Translation: mgl64.Vec3{q[0], q[1], 0},
			Rotation:    geom.QuatAxisAngle(axisZ, q[2]),
		}
	default:
		return geom.Identity()
	}
}

func unit(v mgl64.Vec3) mgl64.Vec3 {
	if l := v.Len(); l > 0 {
		return v.Mul(1 / l)
	}
	return axisZ
}

// forward computes link frames for joint-space positions q.
func (b *bodyState) forward(base geom.Pose, q []float64) *frames {
	n := len(b.model.Joints)
	f := &frames{
		base:  base,
		joint: make([]geom.Pose, n),
		link:  make([]geom.Pose, n),
		com:   make([]geom.Pose, n),
	}
	for i, j := range b.model.Joints {
		parent := base
		if j.ParentIndex >= 0 {
			parent = f.link[j.ParentIndex]
		}
		f.joint[i] = parent.Mul(j.ParentFramePose)
		m := geom.Identity()
		if off := b.qOffset[i]; off >= 0 {
			m = motion(j.Type, j.Axis, q[off:off+j.Type.PositionDOF()])
		}
		f.link[i] = f.joint[i].Mul(m)
		f.com[i] = f.link[i].Mul(b.model.Links[i].LocalInertialPose)
	}
	return f
}

// columns fills the linear and angular Jacobian of a world point p rigidly
// attached to link. Both matrices are 3 x numVelocities.
func (b *bodyState) columns(f *frames, q []float64, link int, p mgl64.Vec3, lin, ang *mat.Dense) {
	lin.Zero()
	ang.Zero()
	set := func(col int, l, a mgl64.Vec3) {
		for r := 0; r < 3; r++ {
			lin.Set(r, col, l[r])
			ang.Set(r, col, a[r])
		}
	}
	for i := link; i >= 0; i = b.model.Joints[i].ParentIndex {
		j := b.model.Joints[i]
		col := b.uOffset[i]
		if col < 0 {
			continue
		}
		frame := f.joint[i]
		o := frame.Translation
		switch j.Type {
		case joint.Revolute:
			a := frame.Rotation.Rotate(unit(j.Axis))
			set(col, a.Cross(p.Sub(o)), a)
		case joint.Prismatic:
			set(col, frame.Rotation.Rotate(unit(j.Axis)), mgl64.Vec3{})
		case joint.Spherical:
			for k, e := range []mgl64.Vec3{axisX, axisY, axisZ} {
				a := frame.Rotation.Rotate(e)
				set(col+k, a.Cross(p.Sub(o)), a)
			}
		case joint.Planar:
			qo := b.qOffset[i]
			set(col, frame.Rotation.Rotate(axisX), mgl64.Vec3{})
			set(col+1, frame.Rotation.Rotate(axisY), mgl64.Vec3{})
			z := frame.Rotation.Rotate(axisZ)
			pivot := frame.Apply(mgl64.Vec3{q[qo], q[qo+1], 0})
			set(col+2, z.Cross(p.Sub(pivot)), z)
		}
	}
}

func (b *bodyState) jacobian(f *frames, q []float64, link int, p mgl64.Vec3) (*mat.Dense, *mat.Dense) {
	nu := b.index.NumVelocities()
	if nu == 0 {
		return nil, nil
	}
	lin := mat.NewDense(3, nu, nil)
	ang := mat.NewDense(3, nu, nil)
	b.columns(f, q, link, p, lin, ang)
	return lin, ang
}

// massMatrix is sum over links of m Jv'Jv + Jw' I Jw, joint space only.
// It is nil for bodies without DOF.
func (b *bodyState) massMatrix(f *frames, q []float64) *mat.SymDense {
	nu := b.index.NumVelocities()
	if nu == 0 {
		return nil
	}
	m := mat.NewDense(nu, nu, nil)
	var tmp, ij mat.Dense
	for i, l := range b.model.Links {
		lin, ang := b.jacobian(f, q, i, f.com[i].Translation)

		tmp.Mul(lin.T(), lin)
		tmp.Scale(l.Mass, &tmp)
		m.Add(m, &tmp)

		iw := worldInertia(f.com[i].Rotation, l.LocalInertiaDiagonal)
		ij.Mul(iw, ang)
		tmp.Mul(ang.T(), &ij)
		m.Add(m, &tmp)
	}

	sym := mat.NewSymDense(nu, nil)
	for r := 0; r < nu; r++ {
		for c := r; c < nu; c++ {
			sym.SetSym(r, c, 0.5*(m.At(r, c)+m.At(c, r)))
		}
	}
	return sym
}

func worldInertia(r mgl64.Quat, diag mgl64.Vec3) *mat.Dense {
	rot := r.Mat4().Mat3()
	rm := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rm.Set(i, j, rot.At(i, j))
		}
	}
	dm := mat.NewDiagDense(3, []float64{diag[0], diag[1], diag[2]})
	var rd, out mat.Dense
	rd.Mul(rm, dm)
	out.Mul(&rd, rm.T())
	return &out
}

// gravityForces is the generalized force needed to hold q against gravity.
func (b *bodyState) gravityForces(f *frames, q []float64, g mgl64.Vec3) *mat.VecDense {
	nu := b.index.NumVelocities()
	if nu == 0 {
		return nil
	}
	out := mat.NewVecDense(nu, nil)
	gv := mat.NewVecDense(3, []float64{g[0], g[1], g[2]})
	var tmp mat.VecDense
	for i, l := range b.model.Links {
		lin, _ := b.jacobian(f, q, i, f.com[i].Translation)
		tmp.MulVec(lin.T(), gv)
		out.AddScaledVec(out, -l.Mass, &tmp)
	}
	return out
}

// quatDerivative is dq/dt for angular velocity w expressed on the left.
func quatDerivative(q mgl64.Quat, w mgl64.Vec3) mgl64.Quat {
	return mgl64.Quat{V: w}.Mul(q).Scale(0.5)
}

// quatStep rotates q by the rotation vector w, on the left.
func quatStep(q mgl64.Quat, w mgl64.Vec3) mgl64.Quat {
	angle := w.Len()
	if angle < 1e-12 {
		return q
	}
	return geom.QuatAxisAngle(w.Mul(1/angle), angle).Mul(q).Normalize()
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
