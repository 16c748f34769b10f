package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// PowerSpectrum returns the magnitude of each non-negative frequency bin of
// data with its mean removed. Bin k is k/(len(data)*dt) Hz.
func PowerSpectrum(data []float64) []float64 {
	n := len(data)
	if n < 2 {
		return nil
	}
	var mean float64
	for _, v := range data {
		mean += v
	}
	mean /= float64(n)
	centered := make([]float64, n)
	for i, v := range data {
		centered[i] = v - mean
	}

	coeff := fourier.NewFFT(n).Coefficients(nil, centered)
	ps := make([]float64, len(coeff))
	for i, c := range coeff {
		ps[i] = cmplx.Abs(c)
	}
	return ps
}

// DominantFrequency is the strongest non-zero frequency in Hz of samples
// taken every dt, refined by parabolic interpolation between bins. It is 0
// for constant or too short data.
func DominantFrequency(data []float64, dt float64) float64 {
	ps := PowerSpectrum(data)
	if len(ps) < 3 || dt <= 0 {
		return 0
	}
	peak := 1
	for k := 2; k < len(ps); k++ {
		if ps[k] > ps[peak] {
			peak = k
		}
	}
	if ps[peak] == 0 {
		return 0
	}

	offset := 0.0
	if peak+1 < len(ps) {
		a, b, c := ps[peak-1], ps[peak], ps[peak+1]
		if d := a - 2*b + c; d != 0 {
			offset = 0.5 * (a - c) / d
		}
	}
	if math.IsNaN(offset) || math.Abs(offset) > 0.5 {
		offset = 0
	}
	return (float64(peak) + offset) / (float64(len(data)) * dt)
}
