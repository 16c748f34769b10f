package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func assertMatrix(t *testing.T, want []float32, got []float32, tol float64) {
	t.Helper()
	if !assert.Len(t, got, len(want)) {
		return
	}
	for i := range want {
		assert.InDelta(t, want[i], got[i], tol, "element %d", i)
	}
}

func TestComputeViewMatrix(t *testing.T) {
	m := ComputeViewMatrix([3]float32{1, 1, 1}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0})
	want := []float32{
		0.99999994, 0.0, -0.0, 0.0,
		-0.0, 0.7071067, 0.70710677, 0.0,
		0.0, -0.7071067, 0.70710677, 0.0,
		-0.99999994, -0.0, -1.4142135, 1.0,
	}
	assertMatrix(t, want, m[:], 1e-6)
}

func TestComputeViewMatrixFromYawPitchRoll(t *testing.T) {
	m := ComputeViewMatrixFromYawPitchRoll([3]float32{1, 0, 0}, 0.6, 0.2, 0.3, 0.5, false)
	want := []float32{
		-0.999994, -1.8276924e-5, -0.0034906466, 0.0,
		2.237357e-10, 0.9999864, -0.0052359635, 0.0,
		0.0034906943, -0.005235932, -0.9999803, 0.0,
		0.999994, 1.8277206e-5, -0.5965094, 1.0,
	}
	assertMatrix(t, want, m[:], 1e-5)

	rolled := ComputeViewMatrixFromYawPitchRoll([3]float32{1, 0, 0}, 0.6, 0.2, 0.3, 45, false)
	assert.Equal(t, m, rolled)
}

func TestComputeProjectionMatrixFOV(t *testing.T) {
	m := ComputeProjectionMatrixFOV(0.4, 0.6, 0.2, 0.6)
	want := []float32{
		477.46286, 0, 0, 0,
		0, 286.47772, 0, 0,
		0, 0, -1.9999999, -1,
		0, 0, -0.59999996, 0,
	}
	assertMatrix(t, want, m[:], 1e-2)
	assert.InDelta(t, -1.0, m.At(3, 2), 1e-7)
}

func TestComputeProjectionMatrix(t *testing.T) {
	m := ComputeProjectionMatrix(0.1, 0.2, 0.3, 0.4, 0.2, 0.6)
	want := []float32{
		4.0, 0, 0, 0,
		0, 4.0000005, 0, 0,
		3.0, 7.000001, -1.9999999, -1,
		0, 0, -0.59999996, 0,
	}
	assertMatrix(t, want, m[:], 1e-5)
}
