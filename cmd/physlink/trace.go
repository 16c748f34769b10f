package main

import (
	"fmt"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/physlink/internal/analysis"
	"github.com/san-kum/physlink/internal/automation"
	"github.com/san-kum/physlink/internal/export"
	"github.com/san-kum/physlink/internal/storage"
	"github.com/spf13/cobra"
)

func traceCmd() *cobra.Command {
	var (
		q        []float64
		u        []float64
		duration float64
		every    int
		out      string
		width    int
		height   int
		phase    bool
		spectrum bool
		svgPath  string
	)
	cmd := &cobra.Command{
		Use:   "trace [model]",
		Short: "simulate a model and plot its joint trajectories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			sc := &automation.Scenario{
				Name: "trace",
				Steps: []automation.ScenarioStep{{
					Model:        args[0],
					FixedBase:    fixedBase,
					InitState:    q,
					InitVelocity: u,
					Duration:     duration,
					SampleEvery:  every,
					SaveAs:       out,
				}},
			}
			results, err := automation.NewRunner(c, newLogger()).RunScenario(cmd.Context(), sc)
			if err != nil {
				return err
			}
			res := results[0]
			fmt.Println(field("model", res.Model) + "  " +
				field("steps", res.Steps) + "  " +
				field("samples", len(res.Trajectory.Times)))
			fmt.Println()
			plotTrajectory(res.Trajectory, width, height)

			tr := res.Trajectory
			if spectrum && len(tr.Times) > 1 {
				dt := tr.Times[1] - tr.Times[0]
				for k, name := range tr.Joints {
					f := analysis.DominantFrequency(tr.Column(k), dt)
					period := "-"
					if f > 0 {
						period = fmt.Sprintf("%.4fs", 1/f)
					}
					fmt.Println(field(name, fmt.Sprintf("%.4f Hz, period %s", f, period)))
				}
			}
			if phase && len(tr.Joints) > 0 {
				p, err := analysis.PhasePortrait(tr, 0)
				if err != nil {
					return err
				}
				fmt.Println(title.Render(p.XLabel + " / " + p.YLabel))
				fmt.Print(analysis.PhasePortraitToASCII(p, width, 2*height))
			}
			if svgPath != "" && len(tr.Joints) > 0 {
				if err := export.WriteSVG(svgPath, tr, 0, 800, 400); err != nil {
					return err
				}
				fmt.Println(subtle.Render("saved " + svgPath))
			}
			if out != "" {
				fmt.Println(subtle.Render("saved " + out))
			}
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&q, "q", nil, "initial movable joint positions")
	cmd.Flags().Float64SliceVar(&u, "u", nil, "initial movable joint velocities")
	cmd.Flags().Float64Var(&duration, "time", 5.0, "duration in seconds")
	cmd.Flags().IntVar(&every, "every", 4, "steps between samples")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write the trajectory to a .csv or .json file")
	cmd.Flags().IntVar(&width, "width", 80, "plot width")
	cmd.Flags().IntVar(&height, "height", 10, "plot height")
	cmd.Flags().BoolVar(&phase, "phase", false, "draw the first joint's phase portrait")
	cmd.Flags().BoolVar(&spectrum, "spectrum", false, "report each joint's dominant frequency")
	cmd.Flags().StringVar(&svgPath, "svg", "", "write the first joint's position plot as SVG")
	addBodyFlags(cmd)
	return cmd
}

const maxPlots = 6

func plotTrajectory(t *storage.Trajectory, width, height int) {
	if len(t.Times) < 2 {
		fmt.Println(subtle.Render("nothing to plot"))
		return
	}
	for k, name := range t.Joints {
		if k == maxPlots {
			fmt.Println(subtle.Render(fmt.Sprintf("%d more joints not shown", len(t.Joints)-maxPlots)))
			break
		}
		graph := asciigraph.Plot(t.Column(k),
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption(fmt.Sprintf("%s position over %.2fs", name, t.Times[len(t.Times)-1]-t.Times[0])),
		)
		fmt.Println(graph)
		fmt.Println()
	}
}
