package joint

import (
	"fmt"

	"github.com/san-kum/physlink/internal/dynamo"
)

// Coordinates taken by a floating base ahead of the joints.
const (
	FloatingBasePositions  = 7
	FloatingBaseVelocities = 6
)

// Base describes the root of a body.
type Base struct {
	Fixed bool
}

func (b Base) offsets() (int, int) {
	if b.Fixed {
		return 0, 0
	}
	return FloatingBasePositions, FloatingBaseVelocities
}

// IndexMap maps joint indices to q/u offsets. It is immutable once built.
type IndexMap struct {
	q, u       []int
	types      []Type
	movable    []int
	baseQ      int
	baseU      int
	positions  int
	velocities int
}

// Derive computes the mapping from joint types alone. Joints are visited in
// index order with running q and u counters.
func Derive(types []Type, base Base) *IndexMap {
	m := &IndexMap{
		q:     make([]int, len(types)),
		u:     make([]int, len(types)),
		types: append([]Type(nil), types...),
	}
	m.baseQ, m.baseU = base.offsets()
	nq, nu := m.baseQ, m.baseU
	for j, t := range types {
		if !t.Movable() {
			m.q[j], m.u[j] = -1, -1
			continue
		}
		m.q[j], m.u[j] = nq, nu
		nq += t.PositionDOF()
		nu += t.VelocityDOF()
		m.movable = append(m.movable, j)
	}
	m.positions = nq - m.baseQ
	m.velocities = nu - m.baseU
	return m
}

// Resolve builds the mapping from engine-reported joint metadata. The reported
// q and u indices are taken as they are; they are only checked for
// consistency. Joints without DOF must report -1, every movable joint must
// take exactly its type's width, and the ranges of movable joints must follow
// each other in joint order without gaps or overlap. A floating base owns the
// slots ahead of its first movable joint.
func Resolve(infos []Info, base Base) (*IndexMap, error) {
	m := &IndexMap{
		q:     make([]int, len(infos)),
		u:     make([]int, len(infos)),
		types: make([]Type, len(infos)),
	}
	minQ, minU := base.offsets()
	nextQ, nextU := -1, -1
	for j, info := range infos {
		if info.Index != j {
			return nil, fmt.Errorf("%w: joint at position %d reports index %d", dynamo.ErrIndexMismatch, j, info.Index)
		}
		if !info.Type.Valid() {
			return nil, fmt.Errorf("%w: joint %d has unknown type %d", dynamo.ErrIndexMismatch, j, int(info.Type))
		}
		m.types[j] = info.Type
		m.q[j], m.u[j] = info.QIndex, info.UIndex

		if !info.Type.Movable() {
			if info.QIndex != -1 || info.UIndex != -1 {
				return nil, fmt.Errorf("%w: joint %d (%s) has no DOF but reports q=%d u=%d",
					dynamo.ErrIndexMismatch, j, info.Type, info.QIndex, info.UIndex)
			}
			continue
		}

		if nextQ < 0 {
			if info.QIndex < minQ || info.UIndex < minU {
				return nil, fmt.Errorf("%w: joint %d (%s) reports q=%d u=%d inside the base coordinates",
					dynamo.ErrIndexMismatch, j, info.Type, info.QIndex, info.UIndex)
			}
			m.baseQ, m.baseU = info.QIndex, info.UIndex
		} else if info.QIndex != nextQ || info.UIndex != nextU {
			return nil, fmt.Errorf("%w: joint %d (%s) reports q=%d u=%d, previous joint ends at q=%d u=%d",
				dynamo.ErrIndexMismatch, j, info.Type, info.QIndex, info.UIndex, nextQ, nextU)
		}
		nextQ = info.QIndex + info.Type.PositionDOF()
		nextU = info.UIndex + info.Type.VelocityDOF()
		m.movable = append(m.movable, j)
	}

	if nextQ < 0 {
		m.baseQ, m.baseU = minQ, minU
		return m, nil
	}
	m.positions = nextQ - m.baseQ
	m.velocities = nextU - m.baseU
	return m, nil
}

func (m *IndexMap) NumJoints() int { return len(m.types) }

// NumDOF is the number of movable joints.
func (m *IndexMap) NumDOF() int { return len(m.movable) }

// NumPositions is the length of the joint-space q vector, base excluded.
func (m *IndexMap) NumPositions() int { return m.positions }

// NumVelocities is the length of the joint-space u vector, base excluded.
func (m *IndexMap) NumVelocities() int { return m.velocities }

// Movable returns the movable joint indices in ascending u order.
func (m *IndexMap) Movable() []int {
	return append([]int(nil), m.movable...)
}

// SingleDOF reports whether every movable joint takes exactly one slot.
func (m *IndexMap) SingleDOF() bool {
	return m.positions == len(m.movable) && m.velocities == len(m.movable)
}

func (m *IndexMap) CheckJoint(j int) error {
	if j < 0 || j >= len(m.types) {
		return dynamo.OutOfRange("joint", j, len(m.types))
	}
	return nil
}

// QIndex is the engine q index of joint j, -1 for joints without DOF.
func (m *IndexMap) QIndex(j int) (int, error) {
	if err := m.CheckJoint(j); err != nil {
		return 0, err
	}
	return m.q[j], nil
}

// UIndex is the engine u index of joint j, -1 for joints without DOF.
func (m *IndexMap) UIndex(j int) (int, error) {
	if err := m.CheckJoint(j); err != nil {
		return 0, err
	}
	return m.u[j], nil
}

// PositionOffset is the offset of joint j in the joint-space q vector, or -1.
func (m *IndexMap) PositionOffset(j int) (int, error) {
	q, err := m.QIndex(j)
	if err != nil || q < 0 {
		return -1, err
	}
	return q - m.baseQ, nil
}

// VelocityOffset is the offset of joint j in the joint-space u vector, or -1.
func (m *IndexMap) VelocityOffset(j int) (int, error) {
	u, err := m.UIndex(j)
	if err != nil || u < 0 {
		return -1, err
	}
	return u - m.baseU, nil
}

func (m *IndexMap) Type(j int) (Type, error) {
	if err := m.CheckJoint(j); err != nil {
		return 0, err
	}
	return m.types[j], nil
}

func (m *IndexMap) CheckPositions(name string, v []float64) error {
	if len(v) != m.positions {
		return dynamo.Mismatch(name, len(v), m.positions)
	}
	return nil
}

func (m *IndexMap) CheckVelocities(name string, v []float64) error {
	if len(v) != m.velocities {
		return dynamo.Mismatch(name, len(v), m.velocities)
	}
	return nil
}

// CheckPerJoint validates a vector holding one value per joint.
func (m *IndexMap) CheckPerJoint(name string, v []float64) error {
	if len(v) != len(m.types) {
		return dynamo.Mismatch(name, len(v), len(m.types))
	}
	return nil
}

// Expand spreads a joint-space vector over all joints. Joints without DOF get
// placeholder. Only bodies whose movable joints are single-DOF can be expanded.
func (m *IndexMap) Expand(dofs []float64, placeholder float64) ([]float64, error) {
	if !m.SingleDOF() {
		return nil, fmt.Errorf("%w: body has multi-DOF joints, no per-joint layout", dynamo.ErrDimensionMismatch)
	}
	if err := m.CheckPositions("joint-space vector", dofs); err != nil {
		return nil, err
	}
	out := make([]float64, len(m.types))
	for j := range out {
		if m.q[j] < 0 {
			out[j] = placeholder
			continue
		}
		out[j] = dofs[m.q[j]-m.baseQ]
	}
	return out, nil
}

// Compress keeps the values of movable joints from a per-joint vector,
// ordered by q index.
func (m *IndexMap) Compress(perJoint []float64) ([]float64, error) {
	if !m.SingleDOF() {
		return nil, fmt.Errorf("%w: body has multi-DOF joints, no per-joint layout", dynamo.ErrDimensionMismatch)
	}
	if err := m.CheckPerJoint("per-joint vector", perJoint); err != nil {
		return nil, err
	}
	out := make([]float64, m.positions)
	for _, j := range m.movable {
		out[m.q[j]-m.baseQ] = perJoint[j]
	}
	return out, nil
}
