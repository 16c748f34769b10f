package automation

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/go-logr/logr"
	"github.com/san-kum/physlink/internal/client"
	"github.com/san-kum/physlink/internal/config"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
	"github.com/san-kum/physlink/internal/metrics"
	"github.com/san-kum/physlink/internal/storage"
	"gopkg.in/yaml.v3"
)

// Scenario defines a scripted sequence of runs. Every step starts from an
// empty world with the scenario's engine parameters.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Preset      string         `yaml:"preset"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep loads one model and runs it for Duration seconds.
type ScenarioStep struct {
	Model     string    `yaml:"model"`
	FixedBase bool      `yaml:"fixed_base"`
	BasePose  []float64 `yaml:"base_pose"`
	// InitState and InitVelocity have one entry per movable joint.
	InitState    []float64          `yaml:"init_state"`
	InitVelocity []float64          `yaml:"init_velocity"`
	Control      *Control           `yaml:"control"`
	Params       map[string]float64 `yaml:"params"`
	Duration     float64            `yaml:"duration"`
	SampleEvery  int                `yaml:"sample_every"`
	SaveAs       string             `yaml:"save_as"`
}

// Control drives every movable joint. Slices have one entry per movable
// joint; zero gains select the engine defaults.
type Control struct {
	Mode       string    `yaml:"mode"`
	Targets    []float64 `yaml:"targets"`
	Velocities []float64 `yaml:"velocities"`
	Forces     []float64 `yaml:"forces"`
	Kp         float64   `yaml:"kp"`
	Kd         float64   `yaml:"kd"`
}

// StepResult is the sampled trajectory of one scenario step.
type StepResult struct {
	Model      string
	Body       dynamo.BodyID
	Steps      int
	Time       float64
	Trajectory *storage.Trajectory
	Metrics    map[string]float64
}

// Final returns the last sampled positions.
func (r *StepResult) Final() []float64 {
	if len(r.Trajectory.Positions) == 0 {
		return nil
	}
	return r.Trajectory.Positions[len(r.Trajectory.Positions)-1]
}

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, err
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	for i, step := range scenario.Steps {
		if step.Model == "" {
			return nil, fmt.Errorf("step %d: model is required", i+1)
		}
		if step.Duration < 0 {
			return nil, fmt.Errorf("step %d: negative duration", i+1)
		}
	}
	return &scenario, nil
}

// Runner executes scenarios against one client.
type Runner struct {
	c   *client.PhysicsClient
	log logr.Logger
}

func NewRunner(c *client.PhysicsClient, log logr.Logger) *Runner {
	return &Runner{c: c, log: log}
}

// RunScenario executes all steps in a scenario. Results of the steps that
// completed are returned with the error.
func (r *Runner) RunScenario(ctx context.Context, scenario *Scenario) ([]StepResult, error) {
	base, err := r.worldParameters(ctx, scenario.Preset)
	if err != nil {
		return nil, err
	}

	results := make([]StepResult, 0, len(scenario.Steps))
	for i, step := range scenario.Steps {
		r.log.Info("running step", "scenario", scenario.Name, "step", i+1, "of", len(scenario.Steps), "model", step.Model)

		result, err := r.runStep(ctx, base, &step)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		if step.SaveAs != "" {
			if err := result.Trajectory.ExportFile(step.SaveAs); err != nil {
				return results, fmt.Errorf("step %d save: %w", i+1, err)
			}
		}
		results = append(results, *result)
	}
	return results, nil
}

// worldParameters returns the update every step starts from: the preset
// when one is named, the engine's current parameters otherwise.
func (r *Runner) worldParameters(ctx context.Context, preset string) (*config.WorldConfig, error) {
	if preset != "" {
		w := config.GetPreset(preset)
		if w == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		return w, nil
	}
	p, err := r.c.PhysicsEngineParameters(ctx)
	if err != nil {
		return nil, err
	}
	return &config.WorldConfig{
		TimeStep:         p.TimeStep,
		Gravity:          p.Gravity,
		SubSteps:         p.SubSteps,
		SolverIterations: p.SolverIterations,
		Integrator:       p.Integrator,
	}, nil
}

var worldParams = map[string]func(w *config.WorldConfig, v float64){
	"time_step":         func(w *config.WorldConfig, v float64) { w.TimeStep = v },
	"gravity_x":         func(w *config.WorldConfig, v float64) { w.Gravity[0] = v },
	"gravity_y":         func(w *config.WorldConfig, v float64) { w.Gravity[1] = v },
	"gravity_z":         func(w *config.WorldConfig, v float64) { w.Gravity[2] = v },
	"sub_steps":         func(w *config.WorldConfig, v float64) { w.SubSteps = int(v) },
	"solver_iterations": func(w *config.WorldConfig, v float64) { w.SolverIterations = int(v) },
}

// applyParams overlays step parameters on the scenario's world settings.
func applyParams(base *config.WorldConfig, params map[string]float64) (*config.WorldConfig, error) {
	w := *base
	for k, v := range params {
		set, ok := worldParams[k]
		if !ok {
			return nil, fmt.Errorf("unknown parameter: %s", k)
		}
		set(&w, v)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// setup resets the world and loads the step's model in its initial state.
func (r *Runner) setup(ctx context.Context, world *config.WorldConfig, step *ScenarioStep) (dynamo.BodyID, []int, error) {
	if err := r.c.ResetSimulation(ctx); err != nil {
		return 0, nil, err
	}
	if err := r.c.SetPhysicsEngineParameters(ctx, world.Update()); err != nil {
		return 0, nil, err
	}

	opts := client.LoadOptions{FixedBase: step.FixedBase}
	if step.BasePose != nil {
		pose, err := geom.PoseFromArray(step.BasePose)
		if err != nil {
			return 0, nil, err
		}
		opts.BasePose = &pose
	}
	id, err := r.c.LoadModel(ctx, step.Model, opts)
	if err != nil {
		return 0, nil, err
	}
	e, err := r.c.BodyInfo(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	movable := e.Index.Movable()

	for _, v := range []struct {
		name string
		vals []float64
	}{{"init_state", step.InitState}, {"init_velocity", step.InitVelocity}} {
		if v.vals != nil && len(v.vals) != len(movable) {
			return 0, nil, dynamo.Mismatch(v.name, len(v.vals), len(movable))
		}
	}
	if step.InitState != nil || step.InitVelocity != nil {
		for k, j := range movable {
			var q, u float64
			if step.InitState != nil {
				q = step.InitState[k]
			}
			if step.InitVelocity != nil {
				u = step.InitVelocity[k]
			}
			if err := r.c.ResetJointState(ctx, id, j, q, u); err != nil {
				return 0, nil, err
			}
		}
	}

	if step.Control != nil {
		cmd, err := step.Control.command(movable)
		if err != nil {
			return 0, nil, err
		}
		if err := r.c.SetJointMotorControlArray(ctx, id, cmd); err != nil {
			return 0, nil, err
		}
	}
	return id, movable, nil
}

func (r *Runner) runStep(ctx context.Context, base *config.WorldConfig, step *ScenarioStep) (*StepResult, error) {
	world, err := applyParams(base, step.Params)
	if err != nil {
		return nil, err
	}
	id, movable, err := r.setup(ctx, world, step)
	if err != nil {
		return nil, err
	}
	e, err := r.c.BodyInfo(ctx, id)
	if err != nil {
		return nil, err
	}

	traj := &storage.Trajectory{Model: step.Model, Body: int(id)}
	for _, j := range movable {
		traj.Joints = append(traj.Joints, e.Joints[j].Name)
	}

	every := step.SampleEvery
	if every <= 0 {
		every = 1
	}
	n := int(math.Round(step.Duration / world.TimeStep))

	effort := metrics.NewControlEffort()
	stability := metrics.NewStability(stableBound)
	sample := func(t float64) error {
		s, err := r.sample(ctx, id, movable, t)
		if err != nil {
			return err
		}
		traj.Append(t, s.Q, s.U)
		effort.Observe(s)
		stability.Observe(s)
		return nil
	}

	p, err := r.c.PhysicsEngineParameters(ctx)
	if err != nil {
		return nil, err
	}
	t := p.Time
	if err := sample(t); err != nil {
		return nil, err
	}
	for done := 0; done < n; {
		k := min(every, n-done)
		if t, err = r.c.StepSimulation(ctx, k); err != nil {
			return nil, err
		}
		done += k
		if err := sample(t); err != nil {
			return nil, err
		}
	}

	return &StepResult{
		Model:      step.Model,
		Body:       id,
		Steps:      n,
		Time:       t,
		Trajectory: traj,
		Metrics:    metrics.Collect(effort, stability),
	}, nil
}

// stableBound is the largest coordinate magnitude a stable run reaches.
const stableBound = 1e6

func (r *Runner) sample(ctx context.Context, id dynamo.BodyID, movable []int, t float64) (metrics.Sample, error) {
	states, err := r.c.JointStates(ctx, id, movable)
	if err != nil {
		return metrics.Sample{}, err
	}
	s := metrics.Sample{
		Time:    t,
		Q:       make([]float64, len(states)),
		U:       make([]float64, len(states)),
		Torques: make([]float64, len(states)),
	}
	for k, st := range states {
		s.Q[k], s.U[k], s.Torques[k] = st.Position, st.Velocity, st.AppliedMotorTorque
	}
	return s, nil
}

func parseMode(s string) (client.ControlMode, error) {
	switch s {
	case "position":
		return client.ControlPosition, nil
	case "velocity":
		return client.ControlVelocity, nil
	case "torque":
		return client.ControlTorque, nil
	default:
		return 0, fmt.Errorf("unknown control mode: %q", s)
	}
}

func (c *Control) command(joints []int) (client.MotorArrayCommand, error) {
	mode, err := parseMode(c.Mode)
	if err != nil {
		return client.MotorArrayCommand{}, err
	}
	cmd := client.MotorArrayCommand{
		Mode:             mode,
		Joints:           joints,
		TargetPositions:  c.Targets,
		TargetVelocities: c.Velocities,
		Forces:           c.Forces,
	}
	if c.Kp != 0 {
		cmd.PositionGains = fill(len(joints), c.Kp)
	}
	if c.Kd != 0 {
		cmd.VelocityGains = fill(len(joints), c.Kd)
	}
	return cmd, nil
}

func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
