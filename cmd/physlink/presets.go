package main

import (
	"fmt"
	"strconv"

	"github.com/san-kum/physlink/internal/config"
	"github.com/spf13/cobra"
)

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "list engine parameter presets",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			names := config.ListPresets()
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				p := config.GetPreset(name)
				rows = append(rows, []string{
					name,
					fmt.Sprintf("%.5f", p.TimeStep),
					formatVec(p.Gravity[:]),
					strconv.Itoa(p.SubSteps),
					strconv.Itoa(p.SolverIterations),
					p.Integrator,
				})
			}
			fmt.Println(renderTable([]string{"PRESET", "DT", "GRAVITY", "SUBSTEPS", "ITERATIONS", "INTEGRATOR"}, rows))
		},
	}
}
