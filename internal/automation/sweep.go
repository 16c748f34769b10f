package automation

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/client"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/metrics"
	"gonum.org/v1/gonum/mat"
)

// Energy returns the kinetic plus gravitational energy of a fixed-base
// body's links. The base does not contribute.
func Energy(ctx context.Context, c *client.PhysicsClient, id dynamo.BodyID) (float64, error) {
	e, err := c.BodyInfo(ctx, id)
	if err != nil {
		return 0, err
	}
	p, err := c.PhysicsEngineParameters(ctx)
	if err != nil {
		return 0, err
	}
	g := mgl64.Vec3(p.Gravity)

	var potential float64
	if n := e.NumLinks(); n > 0 {
		links := make([]int, n)
		for i := range links {
			links[i] = i
		}
		states, err := c.LinkStates(ctx, id, links, false, true)
		if err != nil {
			return 0, err
		}
		for i, st := range states {
			potential -= e.Links[i].Mass * g.Dot(st.WorldPose.Translation)
		}
	}

	movable := e.Index.Movable()
	if len(movable) == 0 || !e.Index.SingleDOF() {
		return potential, nil
	}
	states, err := c.JointStates(ctx, id, movable)
	if err != nil {
		return 0, err
	}
	q := make([]float64, len(states))
	u := make([]float64, len(states))
	for k, s := range states {
		q[k], u[k] = s.Position, s.Velocity
	}
	m, err := c.MassMatrix(ctx, id, q)
	if err != nil {
		return 0, err
	}
	uv := mat.NewVecDense(len(u), u)
	return potential + 0.5*mat.Inner(uv, m, uv), nil
}

// ParameterSweep runs one step per value of a world parameter or of a
// joint's initial position. ParamName is either a parameter accepted in
// ScenarioStep.Params or a joint name.
type ParameterSweep struct {
	Step      ScenarioStep
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

// SweepResult holds results from a parameter sweep
type SweepResult struct {
	ParamValue float64
	FinalState []float64
	MaxEnergy  float64
	MinEnergy  float64
	// Drift is the largest energy change relative to the initial energy.
	Drift float64
}

// RunSweep executes a parameter sweep. Energy is tracked at every sample.
func (r *Runner) RunSweep(ctx context.Context, sweep *ParameterSweep) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step, got %d", sweep.NumSteps)
	}
	base, err := r.worldParameters(ctx, "")
	if err != nil {
		return nil, err
	}

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	results := make([]SweepResult, 0, sweep.NumSteps)
	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep
		step := sweep.Step
		step.SaveAs = ""

		_, isParam := worldParams[sweep.ParamName]
		if isParam {
			step.Params = merge(step.Params, sweep.ParamName, paramVal)
		}
		world, err := applyParams(base, step.Params)
		if err != nil {
			return nil, err
		}
		id, movable, err := r.setup(ctx, world, &step)
		if err != nil {
			return nil, err
		}
		if !isParam {
			if err := r.setJointByName(ctx, id, sweep.ParamName, paramVal); err != nil {
				return nil, err
			}
		}

		res, err := r.trackEnergy(ctx, id, movable, world.TimeStep, step.Duration)
		if err != nil {
			return nil, err
		}
		res.ParamValue = paramVal
		results = append(results, *res)

		r.log.Info("sweep", "step", i+1, "of", sweep.NumSteps, "param", sweep.ParamName, "value", paramVal)
	}
	return results, nil
}

func merge(params map[string]float64, k string, v float64) map[string]float64 {
	out := make(map[string]float64, len(params)+1)
	for pk, pv := range params {
		out[pk] = pv
	}
	out[k] = v
	return out
}

func (r *Runner) setJointByName(ctx context.Context, id dynamo.BodyID, name string, position float64) error {
	e, err := r.c.BodyInfo(ctx, id)
	if err != nil {
		return err
	}
	j := e.JointByName(name)
	if j < 0 {
		return fmt.Errorf("%s is neither a parameter nor a joint of %s", name, e.Name)
	}
	st, err := r.c.JointState(ctx, id, j)
	if err != nil {
		return err
	}
	return r.c.ResetJointState(ctx, id, j, position, st.Velocity)
}

func (r *Runner) trackEnergy(ctx context.Context, id dynamo.BodyID, movable []int, dt, duration float64) (*SweepResult, error) {
	res := &SweepResult{MinEnergy: math.Inf(1), MaxEnergy: math.Inf(-1)}
	drift := metrics.NewEnergyDrift()
	n := int(math.Round(duration / dt))
	for i := 0; ; i++ {
		e, err := Energy(ctx, r.c, id)
		if err != nil {
			return nil, err
		}
		drift.Observe(metrics.Sample{Time: float64(i) * dt, Energy: e})
		res.MinEnergy = math.Min(res.MinEnergy, e)
		res.MaxEnergy = math.Max(res.MaxEnergy, e)
		if i == n {
			break
		}
		if _, err := r.c.StepSimulation(ctx, 1); err != nil {
			return nil, err
		}
	}
	res.Drift = drift.Value()

	final, err := r.sample(ctx, id, movable, 0)
	if err != nil {
		return nil, err
	}
	res.FinalState = final.Q
	return res, nil
}

// MonteCarloConfig perturbs the initial joint positions of Step.
type MonteCarloConfig struct {
	Step         ScenarioStep
	Perturbation float64
	NumTrials    int
	Seed         int64
	// Bound is the largest stable coordinate magnitude; 1e6 when zero.
	Bound float64
}

// MonteCarloResult holds statistics from Monte Carlo runs
type MonteCarloResult struct {
	TrialID    int
	InitState  []float64
	FinalState []float64
	Stable     bool // every coordinate finite and within Bound
}

// RunMonteCarlo executes multiple trials with random perturbations
func (r *Runner) RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig) ([]MonteCarloResult, error) {
	base, err := r.worldParameters(ctx, "")
	if err != nil {
		return nil, err
	}
	world, err := applyParams(base, cfg.Step.Params)
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	bound := cfg.Bound
	if bound == 0 {
		bound = stableBound
	}

	results := make([]MonteCarloResult, 0, cfg.NumTrials)
	for trial := 0; trial < cfg.NumTrials; trial++ {
		step := cfg.Step
		step.SaveAs = ""
		id, movable, err := r.setup(ctx, world, &step)
		if err != nil {
			return nil, err
		}

		initState := make([]float64, len(movable))
		for k, j := range movable {
			if cfg.Step.InitState != nil {
				initState[k] = cfg.Step.InitState[k]
			}
			initState[k] += (rng.Float64() - 0.5) * 2 * cfg.Perturbation
			if err := r.c.ResetJointState(ctx, id, j, initState[k], 0); err != nil {
				return nil, err
			}
		}
		if n := int(math.Round(step.Duration / world.TimeStep)); n > 0 {
			if _, err := r.c.StepSimulation(ctx, n); err != nil {
				return nil, err
			}
		}

		final, err := r.sample(ctx, id, movable, 0)
		if err != nil {
			return nil, err
		}
		stability := metrics.NewStability(bound)
		stability.Observe(final)

		results = append(results, MonteCarloResult{
			TrialID:    trial,
			InitState:  initState,
			FinalState: final.Q,
			Stable:     stability.Value() == 1,
		})

		if (trial+1)%10 == 0 {
			r.log.Info("monte carlo", "done", trial+1, "of", cfg.NumTrials)
		}
	}
	return results, nil
}

// MonteCarloStats computes summary statistics from Monte Carlo results
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
