package client

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/body"
	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
)

type LoadOptions struct {
	// BasePose defaults to the identity.
	BasePose  *geom.Pose
	FixedBase bool
}

// LoadModel asks the engine to instantiate a model and caches its metadata.
func (c *PhysicsClient) LoadModel(ctx context.Context, name string, opts LoadOptions) (dynamo.BodyID, error) {
	args := &channel.LoadModelArgs{Name: name, FixedBase: opts.FixedBase}
	if opts.BasePose != nil {
		p := opts.BasePose.Array()
		args.BasePose = &p
	}
	var r channel.BodyReply
	if err := c.conn.Call(ctx, channel.CmdLoadModel, args, &r); err != nil {
		return 0, err
	}
	e, err := r.Entry()
	if err != nil {
		return 0, err
	}
	c.registry.Put(e)
	c.log.V(1).Info("loaded model", "model", name, "body", e.ID, "joints", e.NumJoints(), "dof", e.Index.NumDOF())
	return e.ID, nil
}

func (c *PhysicsClient) RemoveBody(ctx context.Context, id dynamo.BodyID) error {
	c.registry.Remove(id)
	return c.conn.Call(ctx, channel.CmdRemoveBody, &channel.BodyArgs{Body: int(id)}, nil)
}

func (c *PhysicsClient) Bodies(ctx context.Context) ([]dynamo.BodyID, error) {
	var r channel.BodyList
	if err := c.conn.Call(ctx, channel.CmdListBodies, nil, &r); err != nil {
		return nil, err
	}
	ids := make([]dynamo.BodyID, len(r.Bodies))
	for i, id := range r.Bodies {
		ids[i] = dynamo.BodyID(id)
	}
	return ids, nil
}

func (c *PhysicsClient) NumBodies(ctx context.Context) (int, error) {
	ids, err := c.Bodies(ctx)
	return len(ids), err
}

// BodyInfo returns the resolved metadata of a body.
func (c *PhysicsClient) BodyInfo(ctx context.Context, id dynamo.BodyID) (*body.Entry, error) {
	return c.entry(ctx, id)
}

func (c *PhysicsClient) baseState(ctx context.Context, id dynamo.BodyID) (*channel.BaseState, error) {
	if _, err := c.entry(ctx, id); err != nil {
		return nil, err
	}
	var st channel.BaseState
	if err := c.conn.Call(ctx, channel.CmdBaseState, &channel.BodyArgs{Body: int(id)}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// BaseTransform is the world pose of the body's base frame.
func (c *PhysicsClient) BaseTransform(ctx context.Context, id dynamo.BodyID) (geom.Pose, error) {
	st, err := c.baseState(ctx, id)
	if err != nil {
		return geom.Pose{}, err
	}
	return geom.PoseFromArray(st.Pose[:])
}

func (c *PhysicsClient) ResetBaseTransform(ctx context.Context, id dynamo.BodyID, pose geom.Pose) error {
	if _, err := c.entry(ctx, id); err != nil {
		return err
	}
	return c.conn.Call(ctx, channel.CmdResetBasePose, &channel.BasePoseArgs{Body: int(id), Pose: pose.Array()}, nil)
}

func (c *PhysicsClient) BaseVelocity(ctx context.Context, id dynamo.BodyID) (geom.Velocity, error) {
	st, err := c.baseState(ctx, id)
	if err != nil {
		return geom.Velocity{}, err
	}
	return geom.VelocityFromArray(st.Velocity[:])
}

// ResetBaseVelocity changes the components that are not nil. Fixed bases
// ignore it.
func (c *PhysicsClient) ResetBaseVelocity(ctx context.Context, id dynamo.BodyID, linear, angular *mgl64.Vec3) error {
	if _, err := c.entry(ctx, id); err != nil {
		return err
	}
	args := &channel.BaseVelocityArgs{Body: int(id)}
	if linear != nil {
		v := [3]float64(*linear)
		args.Linear = &v
	}
	if angular != nil {
		v := [3]float64(*angular)
		args.Angular = &v
	}
	return c.conn.Call(ctx, channel.CmdResetBaseVelocity, args, nil)
}

// DynamicsOptions changes only the fields that are set.
type DynamicsOptions struct {
	Mass           *float64
	LinearDamping  *float64
	AngularDamping *float64
	JointDamping   *float64
	MaxJointForce  *float64
}

// BaseLink addresses the base in ChangeDynamics.
const BaseLink = -1

// ChangeDynamics edits mass and damping of one link, or of the base.
func (c *PhysicsClient) ChangeDynamics(ctx context.Context, id dynamo.BodyID, link int, opts DynamicsOptions) error {
	e, err := c.entry(ctx, id)
	if err != nil {
		return err
	}
	if link != BaseLink {
		if err := e.CheckLink(link); err != nil {
			return err
		}
	}
	if opts.Mass != nil && *opts.Mass < 0 {
		return fmt.Errorf("change dynamics: negative mass %g", *opts.Mass)
	}
	args := &channel.ChangeDynamicsArgs{
		Body:           int(id),
		Link:           link,
		Mass:           opts.Mass,
		LinearDamping:  opts.LinearDamping,
		AngularDamping: opts.AngularDamping,
		JointDamping:   opts.JointDamping,
		MaxJointForce:  opts.MaxJointForce,
	}
	// Cached joint and link metadata is stale either way.
	c.registry.Remove(id)
	return c.conn.Call(ctx, channel.CmdChangeDynamics, args, nil)
}
