package geom

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"
)

// ViewMatrix is a camera view matrix, sixteen values in column-major order.
type ViewMatrix [16]float32

// ProjectionMatrix is a camera projection matrix, sixteen values in column-major order.
type ProjectionMatrix [16]float32

// At returns the element in row r, column c.
func (m ViewMatrix) At(r, c int) float32 { return m[c*4+r] }

// At returns the element in row r, column c.
func (m ProjectionMatrix) At(r, c int) float32 { return m[c*4+r] }

// ComputeViewMatrix looks from eye toward target with the given up direction.
func ComputeViewMatrix(eye, target, up [3]float32) ViewMatrix {
	return ViewMatrix(mgl32.LookAtV(mgl32.Vec3(eye), mgl32.Vec3(target), mgl32.Vec3(up)))
}

// ComputeViewMatrixFromYawPitchRoll orbits target at distance. Angles are in
// degrees. The roll slot is unused, as in the engine. zUp selects the z axis as
// up, otherwise y.
func ComputeViewMatrixFromYawPitchRoll(target [3]float32, distance, yaw, pitch, _ float32, zUp bool) ViewMatrix {
	yawRad := float64(mgl32.DegToRad(yaw))
	pitchRad := float64(mgl32.DegToRad(pitch))

	var eyeRot mgl64.Quat
	var up, eye mgl64.Vec3
	if zUp {
		eyeRot = QuatFromEuler(pitchRad, 0, yawRad)
		up = mgl64.Vec3{0, 0, 1}
		eye[1] = -float64(distance)
	} else {
		eyeRot = QuatFromEuler(-pitchRad, yawRad, 0)
		up = mgl64.Vec3{0, 1, 0}
		eye[2] = -float64(distance)
	}
	eye = eyeRot.Rotate(eye)
	up = eyeRot.Rotate(up)

	t := mgl64.Vec3{float64(target[0]), float64(target[1]), float64(target[2])}
	camPos := eye.Add(t)
	return ComputeViewMatrix(
		[3]float32{float32(camPos[0]), float32(camPos[1]), float32(camPos[2])},
		target,
		[3]float32{float32(up[0]), float32(up[1]), float32(up[2])},
	)
}

// ComputeProjectionMatrix builds a perspective frustum projection.
func ComputeProjectionMatrix(left, right, bottom, top, near, far float32) ProjectionMatrix {
	return ProjectionMatrix(mgl32.Frustum(left, right, bottom, top, near, far))
}

// ComputeProjectionMatrixFOV builds a perspective projection from a vertical
// field of view in degrees.
func ComputeProjectionMatrixFOV(fov, aspect, near, far float32) ProjectionMatrix {
	return ProjectionMatrix(mgl32.Perspective(mgl32.DegToRad(fov), aspect, near, far))
}
