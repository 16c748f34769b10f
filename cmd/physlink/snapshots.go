package main

import (
	"fmt"
	"strings"

	"github.com/san-kum/physlink/internal/client"
	"github.com/san-kum/physlink/internal/storage"
	"github.com/spf13/cobra"
)

func snapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "manage stored world snapshots",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			snaps, err := storage.New(cfg.DataDir).List()
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Println(subtle.Render("no snapshots found"))
				return nil
			}
			rows := make([][]string, 0, len(snaps))
			for _, s := range snaps {
				rows = append(rows, []string{
					s.ID,
					s.Timestamp.Format("2006-01-02 15:04:05"),
					s.EngineVersion,
					fmt.Sprintf("%.3fs", s.SimTime),
					strings.Join(s.Bodies, ","),
					fmt.Sprintf("%d", s.Size),
				})
			}
			fmt.Println(renderTable([]string{"ID", "SAVED", "ENGINE", "SIM TIME", "BODIES", "BYTES"}, rows))
			return nil
		},
	}

	var (
		models []string
		steps  int
	)
	saveCmd := &cobra.Command{
		Use:   "save [name]",
		Short: "load models, step, and store the world",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := cmd.Context()

			for _, m := range models {
				if _, err := c.LoadModel(ctx, m, client.LoadOptions{FixedBase: fixedBase}); err != nil {
					return err
				}
			}
			if steps > 0 {
				if _, err := c.StepSimulation(ctx, steps); err != nil {
					return err
				}
			}

			st := storage.New(cfg.DataDir)
			if err := st.Init(); err != nil {
				return err
			}
			id, err := c.SaveSnapshot(ctx, st, args[0])
			if err != nil {
				return err
			}
			fmt.Println(field("snapshot", id))
			return nil
		},
	}
	saveCmd.Flags().StringSliceVar(&models, "model", nil, "models to load first")
	saveCmd.Flags().IntVar(&steps, "steps", 0, "steps to simulate before saving")
	addBodyFlags(saveCmd)

	var advance int
	restoreCmd := &cobra.Command{
		Use:   "restore [id]",
		Short: "restore a stored world and show its bodies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			ctx := cmd.Context()

			if err := c.RestoreSnapshot(ctx, storage.New(cfg.DataDir), args[0]); err != nil {
				return err
			}
			if advance > 0 {
				if _, err := c.StepSimulation(ctx, advance); err != nil {
					return err
				}
			}
			p, err := c.PhysicsEngineParameters(ctx)
			if err != nil {
				return err
			}
			ids, err := c.Bodies(ctx)
			if err != nil {
				return err
			}
			fmt.Println(success.Render("restored ") + args[0])
			fmt.Println(field("time", fmt.Sprintf("%.4f", p.Time)))
			for _, id := range ids {
				e, err := c.BodyInfo(ctx, id)
				if err != nil {
					return err
				}
				pose, err := c.BaseTransform(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("  %d %s %s\n", id, value.Render(e.Name), pose)
			}
			return nil
		},
	}
	restoreCmd.Flags().IntVar(&advance, "steps", 0, "steps to simulate after restoring")

	rmCmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return storage.New(cfg.DataDir).Remove(args[0])
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check [file]",
		Short: "validate a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, version, err := storage.ReadSnapshotFile(args[0], "")
			if err != nil {
				return err
			}
			fmt.Println(success.Render("ok ") + field("engine", version) + "  " + field("bytes", len(blob)))
			return nil
		},
	}
	cmd.AddCommand(listCmd, saveCmd, restoreCmd, rmCmd, checkCmd)
	return cmd
}
