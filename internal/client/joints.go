package client

import (
	"context"

	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/joint"
)

func (c *PhysicsClient) NumJoints(ctx context.Context, id dynamo.BodyID) (int, error) {
	e, err := c.entry(ctx, id)
	if err != nil {
		return 0, err
	}
	return e.NumJoints(), nil
}

func (c *PhysicsClient) JointInfo(ctx context.Context, id dynamo.BodyID, j int) (joint.Info, error) {
	e, err := c.entry(ctx, id)
	if err != nil {
		return joint.Info{}, err
	}
	return e.Joint(j)
}

// JointStates returns one state per requested joint, in request order.
// Multi-coordinate joints report their first coordinate.
func (c *PhysicsClient) JointStates(ctx context.Context, id dynamo.BodyID, joints []int) ([]dynamo.JointState, error) {
	e, err := c.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, j := range joints {
		if err := e.Index.CheckJoint(j); err != nil {
			return nil, err
		}
	}
	if len(joints) == 0 {
		return []dynamo.JointState{}, nil
	}
	var r channel.JointStatesReply
	if err := c.conn.Call(ctx, channel.CmdJointStates, &channel.JointStatesArgs{Body: int(id), Joints: joints}, &r); err != nil {
		return nil, err
	}
	if len(r.States) != len(joints) {
		return nil, dynamo.Mismatch("joint states reply", len(r.States), len(joints))
	}
	return r.States, nil
}

func (c *PhysicsClient) JointState(ctx context.Context, id dynamo.BodyID, j int) (dynamo.JointState, error) {
	states, err := c.JointStates(ctx, id, []int{j})
	if err != nil {
		return dynamo.JointState{}, err
	}
	return states[0], nil
}

// MovableJointStates returns the states of joints with DOF, in u order.
func (c *PhysicsClient) MovableJointStates(ctx context.Context, id dynamo.BodyID) ([]dynamo.JointState, error) {
	e, err := c.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.JointStates(ctx, id, e.Index.Movable())
}

func (c *PhysicsClient) ResetJointState(ctx context.Context, id dynamo.BodyID, j int, position, velocity float64) error {
	e, err := c.entry(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Index.CheckJoint(j); err != nil {
		return err
	}
	args := &channel.ResetJointArgs{Body: int(id), Joint: j, Position: position, Velocity: velocity}
	return c.conn.Call(ctx, channel.CmdResetJointState, args, nil)
}

// MotorCommand drives one joint. Zero gains select the engine defaults.
// Force is the torque in ControlTorque mode and the force limit otherwise.
type MotorCommand struct {
	Mode           ControlMode
	TargetPosition float64
	TargetVelocity float64
	Force          float64
	PositionGain   float64
	VelocityGain   float64
}

func (c *PhysicsClient) SetJointMotorControl(ctx context.Context, id dynamo.BodyID, j int, cmd MotorCommand) error {
	return c.SetJointMotorControlArray(ctx, id, MotorArrayCommand{
		Mode:             cmd.Mode,
		Joints:           []int{j},
		TargetPositions:  []float64{cmd.TargetPosition},
		TargetVelocities: []float64{cmd.TargetVelocity},
		Forces:           []float64{cmd.Force},
		PositionGains:    []float64{cmd.PositionGain},
		VelocityGains:    []float64{cmd.VelocityGain},
	})
}

// MotorArrayCommand drives several joints in one request. Every non-nil
// slice holds one value per entry of Joints.
type MotorArrayCommand struct {
	Mode             ControlMode
	Joints           []int
	TargetPositions  []float64
	TargetVelocities []float64
	Forces           []float64
	PositionGains    []float64
	VelocityGains    []float64
}

func (c *PhysicsClient) SetJointMotorControlArray(ctx context.Context, id dynamo.BodyID, cmd MotorArrayCommand) error {
	e, err := c.entry(ctx, id)
	if err != nil {
		return err
	}
	for _, j := range cmd.Joints {
		if err := e.Index.CheckJoint(j); err != nil {
			return err
		}
	}
	n := len(cmd.Joints)
	for _, v := range []struct {
		name string
		vals []float64
	}{
		{"target positions", cmd.TargetPositions},
		{"target velocities", cmd.TargetVelocities},
		{"forces", cmd.Forces},
		{"position gains", cmd.PositionGains},
		{"velocity gains", cmd.VelocityGains},
	} {
		if v.vals != nil && len(v.vals) != n {
			return dynamo.Mismatch(v.name, len(v.vals), n)
		}
	}
	args := &channel.MotorControlArgs{
		Body:             int(id),
		Mode:             cmd.Mode,
		Joints:           cmd.Joints,
		TargetPositions:  cmd.TargetPositions,
		TargetVelocities: cmd.TargetVelocities,
		Forces:           cmd.Forces,
		PositionGains:    cmd.PositionGains,
		VelocityGains:    cmd.VelocityGains,
	}
	return c.conn.Call(ctx, channel.CmdMotorControl, args, nil)
}
