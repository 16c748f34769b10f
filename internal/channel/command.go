package channel

import (
	"errors"
	"fmt"

	"github.com/san-kum/physlink/internal/dynamo"
)

// Command names one engine operation.
type Command string

const (
	CmdEngineInfo        Command = "engine_info"
	CmdLoadModel         Command = "load_model"
	CmdRemoveBody        Command = "remove_body"
	CmdListBodies        Command = "list_bodies"
	CmdBodyInfo          Command = "body_info"
	CmdJointStates       Command = "joint_states"
	CmdResetJointState   Command = "reset_joint_state"
	CmdMotorControl      Command = "motor_control"
	CmdLinkStates        Command = "link_states"
	CmdBaseState         Command = "base_state"
	CmdResetBasePose     Command = "reset_base_pose"
	CmdResetBaseVelocity Command = "reset_base_velocity"
	CmdChangeDynamics    Command = "change_dynamics"
	CmdStep              Command = "step"
	CmdResetSimulation   Command = "reset_simulation"
	CmdGetParameters     Command = "get_parameters"
	CmdSetParameters     Command = "set_parameters"
	CmdJacobian          Command = "jacobian"
	CmdMassMatrix        Command = "mass_matrix"
	CmdInverseDynamics   Command = "inverse_dynamics"
	CmdInverseKinematics Command = "inverse_kinematics"
	CmdSaveState         Command = "save_state"
	CmdRestoreState      Command = "restore_state"
	CmdRemoveState       Command = "remove_state"
	CmdExportState       Command = "export_state"
	CmdImportState       Command = "import_state"
)

// Code is the outcome of one command.
type Code uint8

const (
	OK Code = iota
	Failed
	UnknownBody
	UnknownState
	IndexOutOfRange
	DimensionMismatch
	IncompatibleSnapshot
	UnknownCommand
	InvalidArgument
)

var codeNames = [...]string{
	OK:                   "ok",
	Failed:               "failed",
	UnknownBody:          "unknown_body",
	UnknownState:         "unknown_state",
	IndexOutOfRange:      "index_out_of_range",
	DimensionMismatch:    "dimension_mismatch",
	IncompatibleSnapshot: "incompatible_snapshot",
	UnknownCommand:       "unknown_command",
	InvalidArgument:      "invalid_argument",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// Err maps a status code to its error kind. OK maps to nil.
func (c Code) Err() error {
	switch c {
	case OK:
		return nil
	case UnknownBody, UnknownState:
		return dynamo.ErrUnknownHandle
	case IndexOutOfRange:
		return dynamo.ErrIndexOutOfRange
	case DimensionMismatch:
		return dynamo.ErrDimensionMismatch
	case IncompatibleSnapshot:
		return dynamo.ErrIncompatibleSnapshot
	case InvalidArgument:
		return dynamo.ErrInvalidArgument
	default:
		return dynamo.ErrEngineFailure
	}
}

// CodeOf is the engine-side inverse of Err.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, dynamo.ErrUnknownHandle):
		return UnknownBody
	case errors.Is(err, dynamo.ErrIndexOutOfRange):
		return IndexOutOfRange
	case errors.Is(err, dynamo.ErrDimensionMismatch):
		return DimensionMismatch
	case errors.Is(err, dynamo.ErrIncompatibleSnapshot), errors.Is(err, dynamo.ErrCorruptSnapshot):
		return IncompatibleSnapshot
	case errors.Is(err, dynamo.ErrInvalidPose), errors.Is(err, dynamo.ErrInvalidArgument):
		return InvalidArgument
	default:
		return Failed
	}
}
