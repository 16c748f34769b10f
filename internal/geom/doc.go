// Package geom converts between the engine's flat float buffers and
// structured geometric values.
//
// Rigid poses are (translation, unit quaternion) pairs. On the wire a pose is
// seven numbers: x, y, z, then the quaternion in x, y, z, w order. Quaternions
// are renormalized on input but their sign is kept exactly as the engine
// reported it.
//
// Camera matrices ([ViewMatrix], [ProjectionMatrix]) are a separate
// convention: sixteen float32 values in column-major order, as consumed by
// renderers. They are not rigid poses and there is no conversion between the
// two.
package geom
