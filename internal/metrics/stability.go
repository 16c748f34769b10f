package metrics

import "math"

// Stability is the fraction of samples whose coordinates are all finite
// and within threshold.
type Stability struct {
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{threshold: threshold}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Observe(x Sample) {
	s.samples++
	for _, vals := range [][]float64{x.Q, x.U} {
		for _, v := range vals {
			if math.IsNaN(v) || math.Abs(v) > s.threshold {
				s.violations++
				return
			}
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
