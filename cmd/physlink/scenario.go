package main

import (
	"fmt"
	"strconv"

	"github.com/san-kum/physlink/internal/automation"
	"github.com/spf13/cobra"
)

func scenarioCmd() *cobra.Command {
	var plot bool
	cmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a YAML scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := automation.LoadScenario(args[0])
			if err != nil {
				return err
			}
			c, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			fmt.Println(title.Render(sc.Name))
			if sc.Description != "" {
				fmt.Println(subtle.Render(sc.Description))
			}
			results, err := automation.NewRunner(c, newLogger()).RunScenario(cmd.Context(), sc)
			rows := make([][]string, 0, len(results))
			for i, res := range results {
				rows = append(rows, []string{
					strconv.Itoa(i + 1), res.Model,
					strconv.Itoa(res.Steps), fmt.Sprintf("%.3f", res.Time),
					fmt.Sprintf("%.3f", res.Metrics["control_effort"]),
					fmt.Sprintf("%.2f", res.Metrics["stability"]),
					formatVec(res.Final()),
				})
			}
			fmt.Println(renderTable([]string{"STEP", "MODEL", "STEPS", "TIME", "EFFORT", "STABLE", "FINAL"}, rows))
			if err != nil {
				return err
			}
			if plot {
				for _, res := range results {
					plotTrajectory(res.Trajectory, 80, 10)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&plot, "plot", false, "plot every step's trajectory")
	return cmd
}

func sweepCmd() *cobra.Command {
	var (
		param    string
		lo, hi   float64
		steps    int
		duration float64
		q        []float64
	)
	cmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "sweep a world parameter or initial joint position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := automation.NewRunner(c, newLogger()).RunSweep(cmd.Context(), &automation.ParameterSweep{
				Step: automation.ScenarioStep{
					Model:     args[0],
					FixedBase: fixedBase,
					InitState: q,
					Duration:  duration,
				},
				ParamName: param,
				ParamMin:  lo,
				ParamMax:  hi,
				NumSteps:  steps,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(results))
			for _, res := range results {
				rows = append(rows, []string{
					fmt.Sprintf("%.4f", res.ParamValue),
					fmt.Sprintf("%.6f", res.MinEnergy),
					fmt.Sprintf("%.6f", res.MaxEnergy),
					fmt.Sprintf("%.2e", res.Drift),
					formatVec(res.FinalState),
				})
			}
			fmt.Println(renderTable([]string{param, "MIN E", "MAX E", "REL DRIFT", "FINAL"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&param, "param", "", "world parameter (time_step, gravity_z, ...) or joint name")
	cmd.Flags().Float64Var(&lo, "min", 0, "first value")
	cmd.Flags().Float64Var(&hi, "max", 1, "last value")
	cmd.Flags().IntVar(&steps, "steps", 5, "number of values")
	cmd.Flags().Float64Var(&duration, "time", 2.0, "duration of each run")
	cmd.Flags().Float64SliceVar(&q, "q", nil, "initial movable joint positions")
	cmd.MarkFlagRequired("param")
	addBodyFlags(cmd)
	return cmd
}

func monteCarloCmd() *cobra.Command {
	var (
		trials   int
		perturb  float64
		duration float64
		seed     int64
		q        []float64
	)
	cmd := &cobra.Command{
		Use:   "montecarlo [model]",
		Short: "run randomly perturbed trials and count the stable ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			results, err := automation.NewRunner(c, newLogger()).RunMonteCarlo(cmd.Context(), &automation.MonteCarloConfig{
				Step: automation.ScenarioStep{
					Model:     args[0],
					FixedBase: fixedBase,
					InitState: q,
					Duration:  duration,
				},
				Perturbation: perturb,
				NumTrials:    trials,
				Seed:         seed,
			})
			if err != nil {
				return err
			}
			stable, unstable := automation.MonteCarloStats(results)
			fmt.Println(field("trials", len(results)) + "  " +
				success.Render(fmt.Sprintf("%d stable", stable)) + "  " +
				warn.Render(fmt.Sprintf("%d unstable", unstable)))
			return nil
		},
	}
	cmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	cmd.Flags().Float64Var(&perturb, "perturb", 0.1, "largest initial position perturbation")
	cmd.Flags().Float64Var(&duration, "time", 2.0, "duration of each trial")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (time based when 0)")
	cmd.Flags().Float64SliceVar(&q, "q", nil, "nominal movable joint positions")
	addBodyFlags(cmd)
	return cmd
}
