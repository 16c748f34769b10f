package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/gcfg.v1"
)

// iniFile is the gcfg layout:
//
//	[engine]
//	transport = tcp
//	address = 127.0.0.1:7460
//	timeout = 2s
//
//	[world]
//	preset = precise
//	gravity = 0 0 -9.81
//
//	[storage]
//	data-dir = snapshots
type iniFile struct {
	Engine struct {
		Transport string
		Address   string
		Codec     string
		Timeout   string
	}
	World struct {
		Preset           string
		TimeStep         float64 `gcfg:"time-step"`
		Gravity          string
		SubSteps         int `gcfg:"sub-steps"`
		SolverIterations int `gcfg:"solver-iterations"`
		Integrator       string
	}
	Storage struct {
		DataDir string `gcfg:"data-dir"`
	}
}

func loadINI(path string) (*Config, error) {
	var f iniFile
	if err := gcfg.ReadFileInto(&f, path); err != nil {
		return nil, err
	}
	return f.config()
}

// ParseINI reads a gcfg document.
func ParseINI(text string) (*Config, error) {
	var f iniFile
	if err := gcfg.ReadStringInto(&f, text); err != nil {
		return nil, err
	}
	return f.config()
}

// config overlays the variables that were set on the defaults.
func (f *iniFile) config() (*Config, error) {
	cfg := DefaultConfig()
	if f.World.Preset != "" {
		if err := cfg.ApplyPreset(f.World.Preset); err != nil {
			return nil, err
		}
	}

	e := f.Engine
	if e.Transport != "" {
		cfg.Engine.Transport = e.Transport
	}
	if e.Address != "" {
		cfg.Engine.Address = e.Address
	}
	if e.Codec != "" {
		cfg.Engine.Codec = e.Codec
	}
	if e.Timeout != "" {
		d, err := time.ParseDuration(e.Timeout)
		if err != nil {
			return nil, fmt.Errorf("engine.timeout: %w", err)
		}
		cfg.Engine.Timeout = d
	}

	w := f.World
	if w.TimeStep != 0 {
		cfg.World.TimeStep = w.TimeStep
	}
	if w.Gravity != "" {
		g, err := parseVec3(w.Gravity)
		if err != nil {
			return nil, fmt.Errorf("world.gravity: %w", err)
		}
		cfg.World.Gravity = g
	}
	if w.SubSteps != 0 {
		cfg.World.SubSteps = w.SubSteps
	}
	if w.SolverIterations != 0 {
		cfg.World.SolverIterations = w.SolverIterations
	}
	if w.Integrator != "" {
		cfg.World.Integrator = w.Integrator
	}
	if f.Storage.DataDir != "" {
		cfg.DataDir = f.Storage.DataDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseVec3(s string) ([3]float64, error) {
	var v [3]float64
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) != 3 {
		return v, fmt.Errorf("want 3 numbers, got %q", s)
	}
	for i, field := range fields {
		x, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return v, err
		}
		v[i] = x
	}
	return v, nil
}
