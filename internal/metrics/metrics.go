package metrics

// Sample is one observation of a body's joint-space state.
type Sample struct {
	Time    float64
	Q       []float64
	U       []float64
	Torques []float64
	// Energy is only meaningful to energy metrics.
	Energy float64
}

// Metric accumulates a scalar over a run.
type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

// Collect returns the current value of every metric by name.
func Collect(ms ...Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}
