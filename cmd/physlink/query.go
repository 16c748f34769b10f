package main

import (
	"fmt"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/client"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
	"github.com/san-kum/physlink/internal/refengine"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "list the reference engine's models",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range refengine.Models() {
				fmt.Println("  " + name)
			}
		},
	}
}

func jointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "joints [model|body]",
		Short: "show joint metadata and resolved indices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := cmd.Context()

			id, err := resolveBody(ctx, c, args[0])
			if err != nil {
				return err
			}
			e, err := c.BodyInfo(ctx, id)
			if err != nil {
				return err
			}
			states, err := c.JointStates(ctx, id, allJoints(e.NumJoints()))
			if err != nil {
				return err
			}

			rows := make([][]string, 0, e.NumJoints())
			for i, j := range e.Joints {
				limits := "-"
				if j.HasLimits() {
					limits = fmt.Sprintf("[%.3f, %.3f]", j.LowerLimit, j.UpperLimit)
				}
				rows = append(rows, []string{
					strconv.Itoa(i), j.Name, j.Type.String(),
					strconv.Itoa(j.QIndex), strconv.Itoa(j.UIndex),
					j.LinkName, limits,
					fmt.Sprintf("%.5f", states[i].Position),
					fmt.Sprintf("%.5f", states[i].Velocity),
				})
			}

			fmt.Println(title.Render(fmt.Sprintf("%s (body %d)", e.Name, id)))
			fmt.Println(field("dof", e.Index.NumDOF()) + "  " +
				field("positions", e.Index.NumPositions()) + "  " +
				field("velocities", e.Index.NumVelocities()))
			fmt.Println(renderTable(
				[]string{"#", "NAME", "TYPE", "Q", "U", "LINK", "LIMITS", "POS", "VEL"}, rows))
			return nil
		},
	}
	addBodyFlags(cmd)
	return cmd
}

func allJoints(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func linkStateCmd() *cobra.Command {
	var (
		q        []float64
		velocity bool
	)
	cmd := &cobra.Command{
		Use:   "linkstate [model|body] [link]",
		Short: "show the world pose of a link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("link index: %w", err)
			}
			c, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := cmd.Context()

			id, err := resolveBody(ctx, c, args[0])
			if err != nil {
				return err
			}
			if err := setPositions(cmd, c, id, q); err != nil {
				return err
			}
			st, err := c.LinkState(ctx, id, link, velocity, true)
			if err != nil {
				return err
			}

			fmt.Println(field("center of mass", st.WorldPose))
			fmt.Println(field("link frame", st.WorldLinkFramePose))
			fmt.Println(field("inertial offset", st.LocalInertialPose))
			if st.Velocity != nil {
				fmt.Println(field("linear velocity", formatVec(st.Velocity.Linear[:])))
				fmt.Println(field("angular velocity", formatVec(st.Velocity.Angular[:])))
			}
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&q, "q", nil, "movable joint positions")
	cmd.Flags().BoolVar(&velocity, "velocity", false, "also report the link velocity")
	addBodyFlags(cmd)
	return cmd
}

// setPositions resets the movable joints to q, one entry each.
func setPositions(cmd *cobra.Command, c *client.PhysicsClient, id dynamo.BodyID, q []float64) error {
	if q == nil {
		return nil
	}
	ctx := cmd.Context()
	e, err := c.BodyInfo(ctx, id)
	if err != nil {
		return err
	}
	movable := e.Index.Movable()
	if len(q) != len(movable) {
		return fmt.Errorf("--q has %d values, body has %d movable joints", len(q), len(movable))
	}
	for k, j := range movable {
		if err := c.ResetJointState(ctx, id, j, q[k], 0); err != nil {
			return err
		}
	}
	return nil
}

func jacobianCmd() *cobra.Command {
	var (
		q     []float64
		point []float64
		mass  bool
	)
	cmd := &cobra.Command{
		Use:   "jacobian [model|body] [link]",
		Short: "print the link Jacobian at a configuration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("link index: %w", err)
			}
			var p mgl64.Vec3
			if point != nil {
				if p, err = geom.Vec3FromSlice(point); err != nil {
					return fmt.Errorf("--point: %w", err)
				}
			}

			c, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := cmd.Context()

			id, err := resolveBody(ctx, c, args[0])
			if err != nil {
				return err
			}
			e, err := c.BodyInfo(ctx, id)
			if err != nil {
				return err
			}
			n := e.Index.NumVelocities()
			if q == nil {
				q = make([]float64, e.Index.NumPositions())
			}
			zero := make([]float64, n)

			j, err := c.Jacobian(ctx, id, link, p, q, zero, zero)
			if err != nil {
				return err
			}
			if j.Linear == nil {
				fmt.Println(subtle.Render("body has no movable joints"))
				return nil
			}
			fmt.Println(title.Render("linear"))
			fmt.Printf("%v\n\n", mat.Formatted(j.Linear, mat.Squeeze()))
			fmt.Println(title.Render("angular"))
			fmt.Printf("%v\n", mat.Formatted(j.Angular, mat.Squeeze()))

			if mass {
				m, err := c.MassMatrix(ctx, id, q)
				if err != nil {
					return err
				}
				fmt.Println()
				fmt.Println(title.Render("mass matrix"))
				fmt.Printf("%v\n", mat.Formatted(m, mat.Squeeze()))
			}
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&q, "q", nil, "joint positions")
	cmd.Flags().Float64SliceVar(&point, "point", nil, "point in the link's center of mass frame, x,y,z")
	cmd.Flags().BoolVar(&mass, "mass", false, "also print the mass matrix")
	addBodyFlags(cmd)
	return cmd
}

func ikCmd() *cobra.Command {
	var (
		target     []float64
		iterations int
		threshold  float64
	)
	cmd := &cobra.Command{
		Use:   "ik [model|body] [link]",
		Short: "solve inverse kinematics for a link position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("link index: %w", err)
			}
			goal, err := geom.Vec3FromSlice(target)
			if err != nil {
				return fmt.Errorf("--target: %w", err)
			}

			c, _, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := cmd.Context()

			id, err := resolveBody(ctx, c, args[0])
			if err != nil {
				return err
			}
			res, err := c.InverseKinematics(ctx, id, client.IKOptions{
				EndEffector:       link,
				Target:            goal,
				MaxIterations:     iterations,
				ResidualThreshold: threshold,
			})
			if err != nil {
				return err
			}

			status := success.Render("converged")
			if !res.Converged {
				status = warn.Render("not converged")
			}
			fmt.Println(status)
			fmt.Println(field("positions", formatVec(res.DOF)))
			fmt.Println(field("iterations", res.Iterations))
			fmt.Println(field("residual", fmt.Sprintf("%.3g", res.Residual)))
			return nil
		},
	}
	cmd.Flags().Float64SliceVar(&target, "target", nil, "target link frame origin, x,y,z")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "iteration limit (engine default when 0)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "residual threshold (engine default when 0)")
	cmd.MarkFlagRequired("target")
	addBodyFlags(cmd)
	return cmd
}
