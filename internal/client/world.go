package client

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
)

// StepSimulation advances the world by steps time steps and returns the
// simulation time.
func (c *PhysicsClient) StepSimulation(ctx context.Context, steps int) (float64, error) {
	if steps < 1 {
		return 0, fmt.Errorf("%w: step count must be at least 1, got %d", dynamo.ErrInvalidArgument, steps)
	}
	var r channel.StepReply
	if err := c.conn.Call(ctx, channel.CmdStep, &channel.StepArgs{Steps: steps}, &r); err != nil {
		return 0, err
	}
	return r.Time, nil
}

// ResetSimulation removes every body. Body handles held by the caller are
// no longer valid.
func (c *PhysicsClient) ResetSimulation(ctx context.Context) error {
	c.registry.Invalidate()
	return c.conn.Call(ctx, channel.CmdResetSimulation, nil, nil)
}

func (c *PhysicsClient) PhysicsEngineParameters(ctx context.Context) (*Parameters, error) {
	var p Parameters
	if err := c.conn.Call(ctx, channel.CmdGetParameters, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPhysicsEngineParameters changes the fields of u that are set.
func (c *PhysicsClient) SetPhysicsEngineParameters(ctx context.Context, u *ParameterUpdate) error {
	if u.TimeStep != nil && *u.TimeStep <= 0 {
		return fmt.Errorf("%w: time step must be positive, got %g", dynamo.ErrInvalidArgument, *u.TimeStep)
	}
	if u.SubSteps != nil && *u.SubSteps < 1 {
		return fmt.Errorf("%w: sub steps must be at least 1, got %d", dynamo.ErrInvalidArgument, *u.SubSteps)
	}
	return c.conn.Call(ctx, channel.CmdSetParameters, u, nil)
}

func (c *PhysicsClient) SetTimeStep(ctx context.Context, dt float64) error {
	return c.SetPhysicsEngineParameters(ctx, &ParameterUpdate{TimeStep: &dt})
}

func (c *PhysicsClient) SetGravity(ctx context.Context, g mgl64.Vec3) error {
	v := [3]float64(g)
	return c.SetPhysicsEngineParameters(ctx, &ParameterUpdate{Gravity: &v})
}
