package client

import (
	"context"

	"github.com/san-kum/physlink/internal/channel"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
)

// LinkState is the world state of one link.
type LinkState struct {
	// WorldPose is the center of mass frame.
	WorldPose         geom.Pose
	LocalInertialPose geom.Pose
	// WorldLinkFramePose is the link frame, WorldPose times the inverse of
	// LocalInertialPose.
	WorldLinkFramePose geom.Pose
	// Velocity is the center of mass velocity, nil unless requested.
	Velocity *geom.Velocity
}

// LinkState reads one link. Indices outside [0, numLinks) are
// ErrIndexOutOfRange; the base is not a link.
func (c *PhysicsClient) LinkState(ctx context.Context, id dynamo.BodyID, link int, computeVelocity, computeFK bool) (*LinkState, error) {
	states, err := c.LinkStates(ctx, id, []int{link}, computeVelocity, computeFK)
	if err != nil {
		return nil, err
	}
	return states[0], nil
}

// LinkStates reads several links of one body in a single request. Results
// are in request order.
func (c *PhysicsClient) LinkStates(ctx context.Context, id dynamo.BodyID, links []int, computeVelocity, computeFK bool) ([]*LinkState, error) {
	e, err := c.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		if err := e.CheckLink(l); err != nil {
			return nil, err
		}
	}
	if len(links) == 0 {
		return []*LinkState{}, nil
	}

	args := &channel.LinkStatesArgs{
		Body:            int(id),
		Links:           links,
		ComputeVelocity: computeVelocity,
		ComputeFK:       computeFK,
	}
	var r channel.LinkStatesReply
	if err := c.conn.Call(ctx, channel.CmdLinkStates, args, &r); err != nil {
		return nil, err
	}
	if len(r.States) != len(links) {
		return nil, dynamo.Mismatch("link states reply", len(r.States), len(links))
	}

	out := make([]*LinkState, len(r.States))
	for i, w := range r.States {
		st, err := linkStateOf(&w, computeVelocity)
		if err != nil {
			return nil, err
		}
		out[i] = st
	}
	return out, nil
}

func linkStateOf(w *channel.LinkState, withVelocity bool) (*LinkState, error) {
	var st LinkState
	var err error
	if st.WorldPose, err = geom.PoseFromArray(w.WorldPose[:]); err != nil {
		return nil, err
	}
	if st.LocalInertialPose, err = geom.PoseFromArray(w.LocalInertialPose[:]); err != nil {
		return nil, err
	}
	if st.WorldLinkFramePose, err = geom.PoseFromArray(w.WorldLinkFramePose[:]); err != nil {
		return nil, err
	}
	if withVelocity {
		v, err := geom.VelocityFromArray(w.Velocity)
		if err != nil {
			return nil, err
		}
		st.Velocity = &v
	}
	return &st, nil
}
