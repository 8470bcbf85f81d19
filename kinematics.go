package ctrlr_kinematics

import (
	"context"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// Kinematics asks the controller to solve forward and inverse kinematics. It holds no
// mutable state; concurrent calls are queued by the Link.
//
// Failures the controller reports (non-zero status) and failures to get an answer at all
// are both returned as ok == false with a nil error. Only argument validation and local
// faults produce errors.
type Kinematics struct {
	link         Link
	joints       JointStateProvider
	defaultUnits AngleUnit
	logger       logging.Logger
}

// NewKinematics returns a Kinematics that uses defaultUnits whenever a call leaves the
// unit unset.
func NewKinematics(link Link, joints JointStateProvider, defaultUnits AngleUnit, logger logging.Logger) (*Kinematics, error) {
	if err := ValidateLiteral(LiteralAngle, string(defaultUnits)); err != nil {
		return nil, errors.Wrap(err, "default units")
	}
	return &Kinematics{
		link:         link,
		joints:       joints,
		defaultUnits: defaultUnits,
		logger:       logger,
	}, nil
}

// DefaultUnits returns the unit used when a call does not name one.
func (k *Kinematics) DefaultUnits() AngleUnit {
	return k.defaultUnits
}

// GetForward returns the TCP pose for the given joint angles. The pose is in the robot
// base frame, or in cs when it is non-nil. Orientation is returned in units; position is
// always meters.
func (k *Kinematics) GetForward(
	ctx context.Context,
	jointAngles JointVector,
	units AngleUnit,
	cs *CoordinateSystem,
) (PoseVector, bool, error) {
	units = units.resolve(k.defaultUnits)
	if err := ValidateLiteral(LiteralAngle, string(units)); err != nil {
		return nil, false, err
	}
	if err := ValidateLength("joint angles", len(jointAngles), JointCount); err != nil {
		return nil, false, err
	}

	angles := []float64(jointAngles)
	if units == Degrees {
		angles = DegreesToRadians(angles...)
	}
	payload, err := FKRequestLayout.Encode(angles...)
	if err != nil {
		return nil, false, err
	}

	reply, ok := k.exchange(ctx, CmdForwardKinematics, payload, FKResponseLayout)
	if !ok {
		return nil, false, nil
	}

	tcpPose := PoseVector(reply.Values)
	if cs != nil {
		tcpPose, err = ConvertPose(cs, tcpPose, Radians, true)
		if err != nil {
			return nil, false, err
		}
	}
	if units == Degrees {
		tcpPose = poseToDegrees(tcpPose)
	}
	return tcpPose, true, nil
}

// GetInverse returns the one joint configuration, among the controller's candidates,
// closest to the robot's actual configuration. tcpPose must already be in the robot
// base frame, with orientation in units.
func (k *Kinematics) GetInverse(ctx context.Context, tcpPose PoseVector, units AngleUnit) (JointVector, bool, error) {
	_, best, ok, err := k.getInverse(ctx, tcpPose, units, false)
	return best, ok, err
}

// GetInverseAll returns every candidate joint configuration the controller produced, in
// the controller's order.
func (k *Kinematics) GetInverseAll(ctx context.Context, tcpPose PoseVector, units AngleUnit) (SolutionSet, bool, error) {
	solutions, _, ok, err := k.getInverse(ctx, tcpPose, units, true)
	return solutions, ok, err
}

func (k *Kinematics) getInverse(
	ctx context.Context,
	tcpPose PoseVector,
	units AngleUnit,
	returnAll bool,
) (SolutionSet, JointVector, bool, error) {
	var solutions SolutionSet

	units = units.resolve(k.defaultUnits)
	if err := ValidateLiteral(LiteralAngle, string(units)); err != nil {
		return solutions, nil, false, err
	}
	if err := ValidateLength("tcp pose", len(tcpPose), PoseLength); err != nil {
		return solutions, nil, false, err
	}

	payload, err := IKRequestLayout.Encode(SetPoseOrientationUnits(tcpPose, units)...)
	if err != nil {
		return solutions, nil, false, err
	}

	reply, ok := k.exchange(ctx, CmdInverseKinematics, payload, IKResponseLayout)
	if !ok {
		return solutions, nil, false, nil
	}

	values := reply.Values
	if returnAll {
		if units == Degrees {
			values = RadiansToDegrees(values...)
		}
		return partitionSolutions(values), nil, true, nil
	}

	solutions = partitionSolutions(values)
	actual, err := k.joints.ActualJointPosition(ctx, Radians)
	if err != nil {
		return SolutionSet{}, nil, false, errors.Wrap(err, "can't select an inverse kinematics solution")
	}
	best := SelectSolution(solutions, actual)
	k.logger.Debugf("Selected inverse kinematics solution %v (distance %.4f rad)", best, SolutionDistance(best, actual))
	if units == Degrees {
		best = RadiansToDegrees(best...)
	}
	return SolutionSet{}, best, true, nil
}

// exchange runs one round trip and folds every failure into ok == false. The reason is
// logged, since callers cannot tell a controller refusal from a lost connection.
func (k *Kinematics) exchange(ctx context.Context, cmd Command, payload []byte, layout Layout) (Reply, bool) {
	reply, err := k.link.Exchange(ctx, cmd, payload, layout)
	if err != nil {
		k.logger.Debugf("%s got no response: %v", cmd, err)
		return Reply{}, false
	}
	if !reply.OK() {
		k.logger.Debugf("%s failed in the controller with status %d", cmd, reply.Status)
		return Reply{}, false
	}
	if len(reply.Values) != layout.Floats {
		k.logger.Debugf("%s returned %d values, want %d", cmd, len(reply.Values), layout.Floats)
		return Reply{}, false
	}
	return reply, true
}

// partitionSolutions splits a flat run of SolutionCount*JointCount values, preserving order.
func partitionSolutions(values []float64) SolutionSet {
	var set SolutionSet
	for i := range set {
		set[i] = JointVector(values[i*JointCount : (i+1)*JointCount])
	}
	return set
}
