package config

import "sort"

var Presets = map[string]*WorldConfig{
	"default": {
		TimeStep: 1.0 / 240, Gravity: [3]float64{0, 0, -9.81},
		SubSteps: 1, SolverIterations: 50, Integrator: "rk4",
	},
	"precise": {
		TimeStep: 1.0 / 1000, Gravity: [3]float64{0, 0, -9.81},
		SubSteps: 4, SolverIterations: 150, Integrator: "rk45",
	},
	"fast": {
		TimeStep: 1.0 / 60, Gravity: [3]float64{0, 0, -9.81},
		SubSteps: 1, SolverIterations: 10, Integrator: "euler",
	},
	"zero_g": {
		TimeStep: 1.0 / 240,
		SubSteps: 1, SolverIterations: 50, Integrator: "leapfrog",
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *WorldConfig {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	c := *p
	return &c
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
