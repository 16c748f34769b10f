// Package body caches engine metadata for loaded bodies.
package body

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/physlink/internal/dynamo"
	"github.com/san-kum/physlink/internal/geom"
	"github.com/san-kum/physlink/internal/joint"
)

// Link is the engine's metadata for the child link of one joint.
type Link struct {
	Index             int
	Name              string
	Mass              float64
	LocalInertialPose geom.Pose
	// LocalInertiaDiagonal is expressed in the inertial frame.
	LocalInertiaDiagonal mgl64.Vec3
}

// Entry is everything the client knows about one body.
type Entry struct {
	ID       dynamo.BodyID
	Name     string
	BaseName string
	Base     joint.Base
	Joints   []joint.Info
	Links    []Link
	Index    *joint.IndexMap
}

// NewEntry resolves the joint index map for a body. Links are indexed like
// joints; link i is the child of joint i.
func NewEntry(id dynamo.BodyID, name string, base joint.Base, joints []joint.Info, links []Link) (*Entry, error) {
	if len(links) != len(joints) {
		return nil, fmt.Errorf("%w: body %d reports %d links for %d joints",
			dynamo.ErrIndexMismatch, id, len(links), len(joints))
	}
	idx, err := joint.Resolve(joints, base)
	if err != nil {
		return nil, fmt.Errorf("body %d (%s): %w", id, name, err)
	}
	return &Entry{
		ID:     id,
		Name:   name,
		Base:   base,
		Joints: joints,
		Links:  links,
		Index:  idx,
	}, nil
}

func (e *Entry) NumJoints() int { return len(e.Joints) }

func (e *Entry) NumLinks() int { return len(e.Links) }

func (e *Entry) CheckLink(i int) error {
	if i < 0 || i >= len(e.Links) {
		return dynamo.OutOfRange("link", i, len(e.Links))
	}
	return nil
}

func (e *Entry) Joint(i int) (joint.Info, error) {
	if err := e.Index.CheckJoint(i); err != nil {
		return joint.Info{}, err
	}
	return e.Joints[i], nil
}

func (e *Entry) Link(i int) (Link, error) {
	if err := e.CheckLink(i); err != nil {
		return Link{}, err
	}
	return e.Links[i], nil
}

// JointByName returns the index of the named joint, or -1.
func (e *Entry) JointByName(name string) int {
	for _, j := range e.Joints {
		if j.Name == name {
			return j.Index
		}
	}
	return -1
}

// LinkByName returns the index of the named link, or -1.
func (e *Entry) LinkByName(name string) int {
	for _, l := range e.Links {
		if l.Name == name {
			return l.Index
		}
	}
	return -1
}
