package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/integrators"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTransport = channel.TransportDirect
	DefaultAddress   = "127.0.0.1:7460"
	DefaultCodec     = "json"
	DefaultTimeout   = 5 * time.Second
	DefaultPreset    = "default"
	DefaultDataDir   = "snapshots"
)

type Config struct {
	Engine  EngineConfig `yaml:"engine"`
	World   WorldConfig  `yaml:"world"`
	Preset  string       `yaml:"preset"`
	DataDir string       `yaml:"data_dir"`
}

type EngineConfig struct {
	Transport string        `yaml:"transport"`
	Address   string        `yaml:"address"`
	Codec     string        `yaml:"codec"`
	Timeout   time.Duration `yaml:"timeout"`
}

// WorldConfig holds the engine parameters pushed at connect time.
type WorldConfig struct {
	TimeStep         float64    `yaml:"time_step"`
	Gravity          [3]float64 `yaml:"gravity,flow"`
	SubSteps         int        `yaml:"sub_steps"`
	SolverIterations int        `yaml:"solver_iterations"`
	Integrator       string     `yaml:"integrator"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Transport: DefaultTransport,
			Address:   DefaultAddress,
			Codec:     DefaultCodec,
			Timeout:   DefaultTimeout,
		},
		World:   *GetPreset(DefaultPreset),
		Preset:  DefaultPreset,
		DataDir: DefaultDataDir,
	}
}

// Load reads YAML, or gcfg INI for .ini and .gcfg files. A preset named in
// the file provides the world settings the file leaves out.
func Load(path string) (*Config, error) {
	switch filepath.Ext(path) {
	case ".ini", ".gcfg":
		return loadINI(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse reads a YAML document.
func Parse(data []byte) (*Config, error) {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if head.Preset != "" {
		if err := cfg.ApplyPreset(head.Preset); err != nil {
			return nil, err
		}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) ApplyPreset(name string) error {
	p := GetPreset(name)
	if p == nil {
		return fmt.Errorf("unknown preset: %s", name)
	}
	c.World = *p
	c.Preset = name
	return nil
}

func (c *Config) Validate() error {
	switch c.Engine.Transport {
	case channel.TransportDirect, channel.TransportTCP, channel.TransportHTTP, channel.TransportGRPC:
	default:
		return fmt.Errorf("unknown transport: %s", c.Engine.Transport)
	}
	if c.Engine.Transport != channel.TransportDirect && c.Engine.Address == "" {
		return fmt.Errorf("transport %s needs an address", c.Engine.Transport)
	}
	if _, err := channel.CodecByName(c.Engine.Codec); err != nil {
		return err
	}
	if c.Engine.Timeout < 0 {
		return fmt.Errorf("negative timeout: %s", c.Engine.Timeout)
	}
	return c.World.Validate()
}

func (w *WorldConfig) Validate() error {
	if w.TimeStep <= 0 {
		return fmt.Errorf("time_step must be positive, got %g", w.TimeStep)
	}
	if w.SubSteps < 1 {
		return fmt.Errorf("sub_steps must be at least 1, got %d", w.SubSteps)
	}
	if w.SolverIterations < 1 {
		return fmt.Errorf("solver_iterations must be at least 1, got %d", w.SolverIterations)
	}
	if !slices.Contains(integrators.Names(), w.Integrator) {
		return fmt.Errorf("unknown integrator: %s", w.Integrator)
	}
	return nil
}

// Update is the parameter change that applies w to an engine.
func (w *WorldConfig) Update() *channel.ParameterUpdate {
	ws := *w
	return &channel.ParameterUpdate{
		TimeStep:         &ws.TimeStep,
		Gravity:          &ws.Gravity,
		SubSteps:         &ws.SubSteps,
		SolverIterations: &ws.SolverIterations,
		Integrator:       &ws.Integrator,
	}
}
