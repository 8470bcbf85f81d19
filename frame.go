package ctrlr_kinematics

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/spatialmath"
)

// CoordinateSystem is a user frame, given by the pose of its origin in the robot base
// frame. Origin is in meters and radians; Rx, Ry, Rz are roll, pitch and yaw.
type CoordinateSystem struct {
	Name   string
	Origin PoseVector
}

// NewCoordinateSystem builds a user frame from an origin expressed in units.
func NewCoordinateSystem(name string, origin []float64, units AngleUnit) (*CoordinateSystem, error) {
	if err := ValidateLength("frame origin", len(origin), PoseLength); err != nil {
		return nil, err
	}
	if err := ValidateLiteral(LiteralAngle, string(units)); err != nil {
		return nil, err
	}
	return &CoordinateSystem{
		Name:   name,
		Origin: SetPoseOrientationUnits(origin, units),
	}, nil
}

func (cs *CoordinateSystem) pose() spatialmath.Pose {
	return vectorToPose(cs.Origin)
}

func vectorToPose(v PoseVector) spatialmath.Pose {
	return spatialmath.NewPose(
		r3.Vector{X: v[0], Y: v[1], Z: v[2]},
		&spatialmath.EulerAngles{Roll: v[3], Pitch: v[4], Yaw: v[5]},
	)
}

func poseToVector(p spatialmath.Pose) PoseVector {
	pt := p.Point()
	ea := p.Orientation().EulerAngles()
	return PoseVector{pt.X, pt.Y, pt.Z, ea.Roll, ea.Pitch, ea.Yaw}
}

// ConvertPose moves pose between the robot base frame and cs. With toLocal the pose is
// taken as a base-frame pose and returned in cs; otherwise the reverse. The orientation
// of both input and output is in orientationUnits.
func ConvertPose(cs *CoordinateSystem, pose PoseVector, orientationUnits AngleUnit, toLocal bool) (PoseVector, error) {
	if cs == nil {
		return nil, errors.New("coordinate system is required")
	}
	if err := ValidateLength("frame origin", len(cs.Origin), PoseLength); err != nil {
		return nil, err
	}
	if err := ValidateLiteral(LiteralAngle, string(orientationUnits)); err != nil {
		return nil, err
	}
	if err := ValidateLength("pose", len(pose), PoseLength); err != nil {
		return nil, err
	}

	in := vectorToPose(SetPoseOrientationUnits(pose, orientationUnits))
	var out spatialmath.Pose
	if toLocal {
		out = spatialmath.Compose(spatialmath.PoseInverse(cs.pose()), in)
	} else {
		out = spatialmath.Compose(cs.pose(), in)
	}

	result := poseToVector(out)
	if orientationUnits == Degrees {
		result = poseToDegrees(result)
	}
	return result, nil
}
