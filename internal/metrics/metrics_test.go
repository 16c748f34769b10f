package metrics

import (
	"math"
	"testing"
)

func TestEnergy(t *testing.T) {
	m := NewEnergy()
	if m.Value() != 0 {
		t.Error("expected zero energy before any sample")
	}
	m.Observe(Sample{Energy: 2})
	m.Observe(Sample{Energy: 4})
	if m.Value() != 3 {
		t.Errorf("mean energy = %v, want 3", m.Value())
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero energy after reset")
	}
}

func TestEnergyDrift(t *testing.T) {
	tests := []struct {
		name     string
		energies []float64
		want     float64
	}{
		{"constant", []float64{-5, -5, -5}, 0},
		{"relative", []float64{-4, -5, -3}, 0.25},
		{"from zero", []float64{0, 0.5, -0.25}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewEnergyDrift()
			for _, e := range tt.energies {
				m.Observe(Sample{Energy: e})
			}
			if math.Abs(m.Value()-tt.want) > 1e-12 {
				t.Errorf("drift = %v, want %v", m.Value(), tt.want)
			}
		})
	}
}

func TestStability(t *testing.T) {
	m := NewStability(10)
	if m.Value() != 1 {
		t.Error("expected stable with no samples")
	}
	m.Observe(Sample{Q: []float64{1, 2}, U: []float64{0, 0}})
	m.Observe(Sample{Q: []float64{1, 2}, U: []float64{11, 0}})
	m.Observe(Sample{Q: []float64{math.NaN()}, U: []float64{0}})
	m.Observe(Sample{Q: []float64{-9}, U: []float64{9}})
	if m.Value() != 0.5 {
		t.Errorf("stability = %v, want 0.5", m.Value())
	}
}

func TestControlEffort(t *testing.T) {
	m := NewControlEffort()
	m.Observe(Sample{Torques: []float64{1, -2}})
	m.Observe(Sample{Torques: []float64{0, 1}})
	if m.Value() != 2 {
		t.Errorf("effort = %v, want 2", m.Value())
	}

	got := Collect(m, NewStability(1))
	if got["control_effort"] != 2 || got["stability"] != 1 {
		t.Errorf("Collect() = %v", got)
	}
}
