package automation

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-logr/logr"
	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/client"
	"github.com/san-kum/physlink/internal/refengine"
	"github.com/san-kum/physlink/internal/storage"
)

func newRunner(t *testing.T) (*Runner, *client.PhysicsClient) {
	t.Helper()
	c := client.New(channel.Direct(refengine.New()))
	t.Cleanup(func() { c.Close() })
	return NewRunner(c, logr.Discard()), c
}

func TestParseScenario(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"valid", "name: swing\nsteps:\n  - model: pendulum\n    duration: 1\n", false},
		{"no steps", "name: empty\n", true},
		{"no model", "steps:\n  - duration: 1\n", true},
		{"negative duration", "steps:\n  - model: pendulum\n    duration: -1\n", true},
		{"bad yaml", "steps: [", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseScenario() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunScenarioSamples(t *testing.T) {
	r, _ := newRunner(t)
	sc, err := ParseScenario([]byte(`
name: swing
preset: default
steps:
  - model: pendulum
    fixed_base: true
    init_state: [0.5]
    duration: 1
    sample_every: 10
`))
	if err != nil {
		t.Fatal(err)
	}

	results, err := r.RunScenario(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if res.Steps != 240 {
		t.Errorf("steps = %d, want 240", res.Steps)
	}
	if math.Abs(res.Time-1) > 1e-9 {
		t.Errorf("time = %v, want 1", res.Time)
	}
	if n := len(res.Trajectory.Times); n != 25 {
		t.Errorf("samples = %d, want 25", n)
	}
	if res.Trajectory.Joints[0] != "hinge" {
		t.Errorf("joints = %v", res.Trajectory.Joints)
	}
	if q0 := res.Trajectory.Positions[0][0]; q0 != 0.5 {
		t.Errorf("first sample = %v, want 0.5", q0)
	}
	if final := res.Final()[0]; final >= 0.5 {
		t.Errorf("pendulum did not swing back: %v", final)
	}
}

func TestRunScenarioPositionControl(t *testing.T) {
	r, _ := newRunner(t)
	path := filepath.Join(t.TempDir(), "arm.csv")
	sc := &Scenario{
		Name: "reach",
		Steps: []ScenarioStep{{
			Model:     "two_joint_arm",
			FixedBase: true,
			Control: &Control{
				Mode:    "position",
				Targets: []float64{0.5, -0.3},
			},
			Duration:    4,
			SampleEvery: 60,
			SaveAs:      path,
		}},
	}

	results, err := r.RunScenario(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	final := results[0].Final()
	for k, want := range []float64{0.5, -0.3} {
		if math.Abs(final[k]-want) > 1e-3 {
			t.Errorf("joint %d settled at %v, want %v", k, final[k], want)
		}
	}

	if e := results[0].Metrics["control_effort"]; e <= 0 {
		t.Errorf("control effort = %v, want > 0", e)
	}
	if st := results[0].Metrics["stability"]; st != 1 {
		t.Errorf("stability = %v, want 1", st)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	traj, err := storage.ReadCSV(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(traj.Times) != len(results[0].Trajectory.Times) {
		t.Errorf("saved %d samples, ran %d", len(traj.Times), len(results[0].Trajectory.Times))
	}
	if traj.Joints[1] != "joint2" {
		t.Errorf("joints = %v", traj.Joints)
	}
}

func TestRunScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		step ScenarioStep
	}{
		{"unknown model", ScenarioStep{Model: "teapot", Duration: 1}},
		{"unknown parameter", ScenarioStep{Model: "pendulum", Params: map[string]float64{"wind": 1}}},
		{"bad time step", ScenarioStep{Model: "pendulum", Params: map[string]float64{"time_step": 0}}},
		{"init length", ScenarioStep{Model: "pendulum", InitState: []float64{1, 2}}},
		{"control mode", ScenarioStep{Model: "pendulum", Control: &Control{Mode: "servo"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRunner(t)
			sc := &Scenario{Name: tt.name, Steps: []ScenarioStep{tt.step}}
			results, err := r.RunScenario(context.Background(), sc)
			if err == nil {
				t.Fatal("expected error")
			}
			if len(results) != 0 {
				t.Errorf("got %d results", len(results))
			}
		})
	}
}

func TestRunScenarioUnknownPreset(t *testing.T) {
	r, _ := newRunner(t)
	sc := &Scenario{Preset: "heavy", Steps: []ScenarioStep{{Model: "pendulum"}}}
	if _, err := r.RunScenario(context.Background(), sc); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnergyOfPendulum(t *testing.T) {
	r, c := newRunner(t)
	ctx := context.Background()
	if err := c.SetGravity(ctx, mgl64.Vec3{0, 0, -9.81}); err != nil {
		t.Fatal(err)
	}
	id, err := c.LoadModel(ctx, "pendulum", client.LoadOptions{FixedBase: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.ResetJointState(ctx, id, 0, 0.5, 2); err != nil {
		t.Fatal(err)
	}

	e, err := Energy(ctx, r.c, id)
	if err != nil {
		t.Fatal(err)
	}
	want := -9.81*math.Cos(0.5) + 0.5*2*2
	if math.Abs(e-want) > 1e-9 {
		t.Errorf("energy = %v, want %v", e, want)
	}
}

func TestRunSweepJoint(t *testing.T) {
	r, c := newRunner(t)
	ctx := context.Background()
	if err := c.SetGravity(ctx, mgl64.Vec3{0, 0, -9.81}); err != nil {
		t.Fatal(err)
	}

	results, err := r.RunSweep(ctx, &ParameterSweep{
		Step:      ScenarioStep{Model: "pendulum", FixedBase: true, Duration: 0.5},
		ParamName: "hinge",
		ParamMin:  0.2,
		ParamMax:  0.8,
		NumSteps:  3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, res := range results {
		wantParam := 0.2 + 0.3*float64(i)
		if math.Abs(res.ParamValue-wantParam) > 1e-12 {
			t.Errorf("result %d param = %v, want %v", i, res.ParamValue, wantParam)
		}
		if drift := res.MaxEnergy - res.MinEnergy; drift > 1e-4 {
			t.Errorf("result %d energy drift %v", i, drift)
		}
		if res.Drift > 1e-4 {
			t.Errorf("result %d relative drift %v", i, res.Drift)
		}
		want := -9.81 * math.Cos(wantParam)
		if math.Abs(res.MaxEnergy-want) > 1e-4 {
			t.Errorf("result %d energy = %v, want %v", i, res.MaxEnergy, want)
		}
	}
}

func TestRunSweepParameter(t *testing.T) {
	r, _ := newRunner(t)
	results, err := r.RunSweep(context.Background(), &ParameterSweep{
		Step:      ScenarioStep{Model: "pendulum", FixedBase: true, InitState: []float64{0.5}, Duration: 0.1},
		ParamName: "gravity_z",
		ParamMin:  0,
		ParamMax:  -10,
		NumSteps:  2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].FinalState[0] != 0.5 {
		t.Errorf("pendulum moved without gravity: %v", results[0].FinalState)
	}
	if results[1].FinalState[0] >= 0.5 {
		t.Errorf("pendulum did not fall: %v", results[1].FinalState)
	}
}

func TestRunSweepUnknownName(t *testing.T) {
	r, _ := newRunner(t)
	_, err := r.RunSweep(context.Background(), &ParameterSweep{
		Step:      ScenarioStep{Model: "pendulum", FixedBase: true},
		ParamName: "elbow",
		NumSteps:  1,
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRunMonteCarlo(t *testing.T) {
	r, _ := newRunner(t)
	results, err := r.RunMonteCarlo(context.Background(), &MonteCarloConfig{
		Step: ScenarioStep{
			Model:     "double_pendulum",
			FixedBase: true,
			InitState: []float64{0.3, 0},
			Params:    map[string]float64{"gravity_z": -9.81},
			Duration:  0.25,
		},
		Perturbation: 0.1,
		NumTrials:    4,
		Seed:         7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for _, res := range results {
		if math.Abs(res.InitState[0]-0.3) > 0.1 || math.Abs(res.InitState[1]) > 0.1 {
			t.Errorf("trial %d init %v outside perturbation", res.TrialID, res.InitState)
		}
	}
	stable, unstable := MonteCarloStats(results)
	if stable != 4 || unstable != 0 {
		t.Errorf("stable %d unstable %d", stable, unstable)
	}
}
