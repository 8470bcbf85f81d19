package ctrlr_kinematics

import "fmt"

// DefaultCommandPort is the controller's command socket.
const DefaultCommandPort = 29001

const (
	JointCount    = 6
	PoseLength    = 6
	SolutionCount = 8
	PositionCount = 3
)

// Command identifies a request type understood by the controller's command socket.
// The numeric values are part of the wire contract and must match the controller firmware.
type Command uint32

const (
	CmdGetLastPosition   Command = 20
	CmdForwardKinematics Command = 40
	CmdInverseKinematics Command = 41
)

func (c Command) String() string {
	switch c {
	case CmdGetLastPosition:
		return "get_last_position"
	case CmdForwardKinematics:
		return "ctrlr_coms_fkine"
	case CmdInverseKinematics:
		return "ctrlr_coms_ikine"
	default:
		return fmt.Sprintf("command(%d)", uint32(c))
	}
}

// Known reports whether c is one of the commands this client speaks.
func (c Command) Known() bool {
	switch c {
	case CmdGetLastPosition, CmdForwardKinematics, CmdInverseKinematics:
		return true
	}
	return false
}
