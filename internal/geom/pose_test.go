package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoseFromArrayRoundTrip(t *testing.T) {
	raw := []float64{0.2, 0.3, 0.4, 0.0, 0.7070904020014416, 0.0, 0.7071231599922604}
	p, err := PoseFromArray(raw)
	require.NoError(t, err)

	out := p.Array()
	for i := range raw {
		assert.InDelta(t, raw[i], out[i], 1e-12, "component %d", i)
	}
}

func TestPoseFromArrayKeepsQuaternionSign(t *testing.T) {
	// w < 0 describes the same rotation as its negation; it must survive as-is.
	p, err := PoseFromArray([]float64{0, 0, 0, 0, 0, 0.6, -0.8})
	require.NoError(t, err)

	q := QuatArray(p.Rotation)
	assert.InDelta(t, 0.6, q[2], 1e-15)
	assert.InDelta(t, -0.8, q[3], 1e-15)
}

func TestPoseFromArrayRenormalizes(t *testing.T) {
	p, err := PoseFromArray([]float64{1, 2, 3, 0, 0, 2, 0})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, p.Rotation.Len(), 1e-15)
	assert.Equal(t, [4]float64{0, 0, 1, 0}, QuatArray(p.Rotation))
}

func TestPoseFromArrayErrors(t *testing.T) {
	_, err := PoseFromArray([]float64{1, 2, 3})
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)

	_, err = PoseFromArray([]float64{1, 2, 3, 0, 0, 0, 0})
	assert.ErrorIs(t, err, dynamo.ErrInvalidPose)

	_, err = PoseFromArray([]float64{1, 2, 3, math.NaN(), 0, 0, 1})
	assert.ErrorIs(t, err, dynamo.ErrInvalidPose)
}

func TestPoseMulInverse(t *testing.T) {
	p := NewPose(mgl64.Vec3{0.2, 0.3, 0.4}, QuatFromEuler(0.1, 0.2, 0.3))
	id := p.Mul(p.Inverse())

	assert.True(t, id.ApproxEqual(Identity(), 1e-12), "got %v", id)
}

func TestPoseApply(t *testing.T) {
	p := NewPose(mgl64.Vec3{1, 0, 0}, QuatAxisAngle(mgl64.Vec3{0, 0, 1}, math.Pi/2))
	v := p.Apply(mgl64.Vec3{1, 0, 0})

	assert.InDelta(t, 1.0, v[0], 1e-12)
	assert.InDelta(t, 1.0, v[1], 1e-12)
	assert.InDelta(t, 0.0, v[2], 1e-12)
}

func TestRowMajorRoundTrip(t *testing.T) {
	p := NewPose(mgl64.Vec3{3.7, -0.23, 10.4}, QuatFromEuler(1.1, -0.2, 2.3))
	m := p.RowMajor()

	assert.Equal(t, 3.7, m[3])
	assert.Equal(t, -0.23, m[7])
	assert.Equal(t, 10.4, m[11])
	assert.Equal(t, [4]float64{0, 0, 0, 1}, [4]float64{m[12], m[13], m[14], m[15]})

	back, err := PoseFromRowMajor(m)
	require.NoError(t, err)

	// Matrix to quaternion may pick either sign; compare the rotation it applies.
	v := mgl64.Vec3{0.3, -1.2, 0.5}
	got, want := back.Apply(v), p.Apply(v)
	assert.InDeltaSlice(t, want[:], got[:], 1e-12)
}

func TestPoseFromRowMajorRejectsProjective(t *testing.T) {
	m := Identity().RowMajor()
	m[14] = -1
	_, err := PoseFromRowMajor(m)
	assert.ErrorIs(t, err, dynamo.ErrInvalidPose)
}

func TestQuatFromEulerComposition(t *testing.T) {
	roll, pitch, yaw := 0.1, 0.2, 0.3
	q := QuatFromEuler(roll, pitch, yaw)

	rx := QuatAxisAngle(mgl64.Vec3{1, 0, 0}, roll)
	ry := QuatAxisAngle(mgl64.Vec3{0, 1, 0}, pitch)
	rz := QuatAxisAngle(mgl64.Vec3{0, 0, 1}, yaw)
	want := rz.Mul(ry).Mul(rx)

	wantArr, gotArr := QuatArray(want), QuatArray(q)
	assert.InDeltaSlice(t, wantArr[:], gotArr[:], 1e-12)
}

func TestVelocityFromArray(t *testing.T) {
	v, err := VelocityFromArray([]float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	assert.Equal(t, mgl64.Vec3{1, 2, 3}, v.Linear)
	assert.Equal(t, mgl64.Vec3{4, 5, 6}, v.Angular)
	assert.Equal(t, [6]float64{1, 2, 3, 4, 5, 6}, v.Array())

	_, err = VelocityFromArray([]float64{1, 2})
	assert.ErrorIs(t, err, dynamo.ErrDimensionMismatch)
}
