// Package joint models joint metadata and resolves the mapping between
// joint indices and offsets in the generalized coordinate vectors.
//
// Joint indices cover every joint of a body, fixed ones included. The
// position vector q and velocity vector u only hold movable degrees of
// freedom, so a fixed joint has no q or u offset (reported as -1). The
// number of slots a joint occupies is a property of its [Type]; a spherical
// joint takes four position slots (a quaternion) but three velocity slots.
package joint
