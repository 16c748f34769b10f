// Package dynamo holds the primitives shared by every layer of the engine
// client: body and snapshot handles, per-joint state, and the error kinds
// surfaced to callers.
//
// Error kinds are sentinel values; wrapped errors keep them reachable with
// [errors.Is]:
//
//	if errors.Is(err, dynamo.ErrIndexOutOfRange) {
//	    // caller bug, nothing was sent to the engine
//	}
//
// Caller-input errors ([ErrIndexOutOfRange], [ErrDimensionMismatch]) are
// raised locally before a request is encoded. Engine-side failures arrive as
// a [*StatusError] wrapping the matching kind.
package dynamo
