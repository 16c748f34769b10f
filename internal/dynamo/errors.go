package dynamo

import (
	"errors"
	"fmt"
)

// Error kinds for engine client operations.
var (
	// ErrTransport indicates the channel to the engine is broken or unreachable.
	ErrTransport = errors.New("dynamo: transport failure")

	// ErrUnknownHandle indicates a body or snapshot handle the engine does not recognize.
	ErrUnknownHandle = errors.New("dynamo: unknown handle")

	// ErrIndexOutOfRange indicates a joint or link index outside the body's valid range.
	ErrIndexOutOfRange = errors.New("dynamo: index out of range")

	// ErrDimensionMismatch indicates a vector whose length does not match the body's DOF count.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrIncompatibleSnapshot indicates a snapshot produced by a different engine build.
	ErrIncompatibleSnapshot = errors.New("dynamo: incompatible snapshot")

	// ErrCorruptSnapshot indicates a snapshot file that fails integrity checks.
	ErrCorruptSnapshot = errors.New("dynamo: corrupt snapshot")

	// ErrEngineFailure indicates the engine rejected or failed to execute a command.
	ErrEngineFailure = errors.New("dynamo: engine failure")

	// ErrInvalidPose indicates a pose buffer that cannot be interpreted (zero quaternion, NaN).
	ErrInvalidPose = errors.New("dynamo: invalid pose")

	// ErrInvalidArgument indicates an argument rejected before or by the engine.
	ErrInvalidArgument = errors.New("dynamo: invalid argument")

	// ErrIndexMismatch indicates engine-reported q/u indices that disagree with the joint types.
	ErrIndexMismatch = errors.New("dynamo: joint index mapping mismatch")

	// ErrNotConnected indicates use of a closed connection.
	ErrNotConnected = errors.New("dynamo: not connected")
)

// StatusError is a non-OK status returned by the engine for one command.
type StatusError struct {
	Command string
	Code    string
	Message string
	Wrapped error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Command, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s: %s", e.Command, e.Wrapped, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Wrapped
}

// OutOfRange builds an ErrIndexOutOfRange error for index i of kind ("joint", "link")
// against the exclusive upper bound n.
func OutOfRange(kind string, i, n int) error {
	return fmt.Errorf("%w: %s index %d not in [0, %d)", ErrIndexOutOfRange, kind, i, n)
}

// Mismatch builds an ErrDimensionMismatch error for a named vector.
func Mismatch(name string, got, want int) error {
	return fmt.Errorf("%w: %s has length %d, want %d", ErrDimensionMismatch, name, got, want)
}
