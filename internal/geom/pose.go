package geom

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/dynamo"
)

// PoseLen is the number of floats in a flat pose buffer.
const PoseLen = 7

// Pose is a rigid transform: rotate by Rotation, then translate by Translation.
type Pose struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
}

func Identity() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// Translation returns a pose with the given offset and no rotation.
func Translation(x, y, z float64) Pose {
	return Pose{Translation: mgl64.Vec3{x, y, z}, Rotation: mgl64.QuatIdent()}
}

func NewPose(t mgl64.Vec3, q mgl64.Quat) Pose {
	return Pose{Translation: t, Rotation: q}
}

// PoseFromArray reads translation (3) followed by quaternion x, y, z, w (4).
// The quaternion is renormalized; a zero or non-finite quaternion is rejected.
func PoseFromArray(a []float64) (Pose, error) {
	if len(a) != PoseLen {
		return Pose{}, dynamo.Mismatch("pose", len(a), PoseLen)
	}
	q, err := normalized(QuatXYZW(a[3], a[4], a[5], a[6]))
	if err != nil {
		return Pose{}, err
	}
	return Pose{Translation: mgl64.Vec3{a[0], a[1], a[2]}, Rotation: q}, nil
}

// PoseFromParts builds a pose from a 3-vector translation and a 4-vector xyzw quaternion.
func PoseFromParts(t, q []float64) (Pose, error) {
	if len(t) != 3 {
		return Pose{}, dynamo.Mismatch("translation", len(t), 3)
	}
	if len(q) != 4 {
		return Pose{}, dynamo.Mismatch("quaternion", len(q), 4)
	}
	return PoseFromArray([]float64{t[0], t[1], t[2], q[0], q[1], q[2], q[3]})
}

func (p Pose) Array() [PoseLen]float64 {
	q := QuatArray(p.Rotation)
	return [PoseLen]float64{
		p.Translation[0], p.Translation[1], p.Translation[2],
		q[0], q[1], q[2], q[3],
	}
}

// Slice is Array as a slice, for wire payloads.
func (p Pose) Slice() []float64 {
	a := p.Array()
	return a[:]
}

// Mul composes p then other: the result maps other's frame into p's parent frame.
func (p Pose) Mul(other Pose) Pose {
	return Pose{
		Translation: p.Translation.Add(p.Rotation.Rotate(other.Translation)),
		Rotation:    p.Rotation.Mul(other.Rotation),
	}
}

func (p Pose) Inverse() Pose {
	inv := p.Rotation.Conjugate()
	return Pose{
		Translation: inv.Rotate(p.Translation).Mul(-1),
		Rotation:    inv,
	}
}

// Apply transforms a point.
func (p Pose) Apply(v mgl64.Vec3) mgl64.Vec3 {
	return p.Translation.Add(p.Rotation.Rotate(v))
}

// ApproxEqual compares component-wise, including quaternion sign.
func (p Pose) ApproxEqual(other Pose, tol float64) bool {
	a, b := p.Array(), other.Array()
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// Homogeneous returns the 4x4 transform in mathgl's column-major storage.
func (p Pose) Homogeneous() mgl64.Mat4 {
	m := p.Rotation.Mat4()
	m.Set(0, 3, p.Translation[0])
	m.Set(1, 3, p.Translation[1])
	m.Set(2, 3, p.Translation[2])
	return m
}

// RowMajor returns the homogeneous transform as sixteen numbers, row by row.
func (p Pose) RowMajor() [16]float64 {
	m := p.Homogeneous()
	var out [16]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = m.At(r, c)
		}
	}
	return out
}

// PoseFromRowMajor reads a row-major homogeneous transform. The bottom row must
// be (0, 0, 0, 1).
func PoseFromRowMajor(a [16]float64) (Pose, error) {
	if a[12] != 0 || a[13] != 0 || a[14] != 0 || a[15] != 1 {
		return Pose{}, fmt.Errorf("%w: bottom row %v is not homogeneous", dynamo.ErrInvalidPose, a[12:])
	}
	var m mgl64.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, a[r*4+c])
		}
	}
	q, err := normalized(mgl64.Mat4ToQuat(m))
	if err != nil {
		return Pose{}, err
	}
	return Pose{Translation: mgl64.Vec3{a[3], a[7], a[11]}, Rotation: q}, nil
}

func (p Pose) String() string {
	a := p.Array()
	return fmt.Sprintf("pos(%.6g, %.6g, %.6g) quat(%.6g, %.6g, %.6g, %.6g)",
		a[0], a[1], a[2], a[3], a[4], a[5], a[6])
}
