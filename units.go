package ctrlr_kinematics

import (
	rdkutils "go.viam.com/rdk/utils"
)

// AngleUnit is the unit angular values are expressed in. The zero value means
// "use the configured default".
type AngleUnit string

const (
	Degrees AngleUnit = "deg"
	Radians AngleUnit = "rad"
)

// ParseAngleUnit validates s as an angle unit literal.
func ParseAngleUnit(s string) (AngleUnit, error) {
	if err := ValidateLiteral(LiteralAngle, s); err != nil {
		return "", err
	}
	return AngleUnit(s), nil
}

// resolve returns u, or def when u is unset.
func (u AngleUnit) resolve(def AngleUnit) AngleUnit {
	if u == "" {
		return def
	}
	return u
}

// PoseVector is a TCP pose (X, Y, Z, Rx, Ry, Rz). Position is always meters,
// orientation is in whatever AngleUnit the call negotiated.
type PoseVector []float64

// Position returns the X, Y, Z half.
func (p PoseVector) Position() []float64 {
	return p[:PositionCount]
}

// Orientation returns the Rx, Ry, Rz half.
func (p PoseVector) Orientation() []float64 {
	return p[PositionCount:PoseLength]
}

// JointVector holds one angle per robot axis.
type JointVector []float64

// SolutionSet is the full inverse kinematics answer, in controller order.
type SolutionSet [SolutionCount]JointVector

// DegreesToRadians converts every value. The input is not modified.
func DegreesToRadians(values ...float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = rdkutils.DegToRad(v)
	}
	return out
}

// RadiansToDegrees converts every value. The input is not modified.
func RadiansToDegrees(values ...float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = rdkutils.RadToDeg(v)
	}
	return out
}

// SetPoseOrientationUnits returns a copy of pose with its orientation expressed in
// radians. Position is never converted.
func SetPoseOrientationUnits(pose PoseVector, from AngleUnit) PoseVector {
	out := make(PoseVector, len(pose))
	copy(out, pose)
	if from == Degrees {
		copy(out[PositionCount:], DegreesToRadians(pose.Orientation()...))
	}
	return out
}

// poseToDegrees converts the orientation half of a radian pose to degrees.
func poseToDegrees(pose PoseVector) PoseVector {
	out := make(PoseVector, 0, PoseLength)
	out = append(out, pose.Position()...)
	return append(out, RadiansToDegrees(pose.Orientation()...)...)
}
