package geom

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/dynamo"
)

// QuatXYZW builds a quaternion from engine component order.
func QuatXYZW(x, y, z, w float64) mgl64.Quat {
	return mgl64.Quat{W: w, V: mgl64.Vec3{x, y, z}}
}

// QuatArray returns the quaternion in engine component order x, y, z, w.
func QuatArray(q mgl64.Quat) [4]float64 {
	return [4]float64{q.V[0], q.V[1], q.V[2], q.W}
}

// QuatFromEuler builds the rotation Rz(yaw) * Ry(pitch) * Rx(roll).
func QuatFromEuler(roll, pitch, yaw float64) mgl64.Quat {
	sr, cr := math.Sincos(roll * 0.5)
	sp, cp := math.Sincos(pitch * 0.5)
	sy, cy := math.Sincos(yaw * 0.5)
	return QuatXYZW(
		sr*cp*cy-cr*sp*sy,
		cr*sp*cy+sr*cp*sy,
		cr*cp*sy-sr*sp*cy,
		cr*cp*cy+sr*sp*sy,
	)
}

// QuatAxisAngle rotates by angle radians around a unit axis.
func QuatAxisAngle(axis mgl64.Vec3, angle float64) mgl64.Quat {
	s, c := math.Sincos(angle * 0.5)
	return mgl64.Quat{W: c, V: axis.Mul(s)}
}

// Vec3FromSlice reads exactly three numbers.
func Vec3FromSlice(a []float64) (mgl64.Vec3, error) {
	if len(a) != 3 {
		return mgl64.Vec3{}, dynamo.Mismatch("vector", len(a), 3)
	}
	return mgl64.Vec3{a[0], a[1], a[2]}, nil
}

// normalized scales q to unit length without touching its sign.
func normalized(q mgl64.Quat) (mgl64.Quat, error) {
	n := q.Len()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return mgl64.Quat{}, fmt.Errorf("%w: quaternion %v has norm %g", dynamo.ErrInvalidPose, QuatArray(q), n)
	}
	if n == 1 {
		return q, nil
	}
	return mgl64.Quat{W: q.W / n, V: q.V.Mul(1 / n)}, nil
}
