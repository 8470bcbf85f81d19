package ctrlr_kinematics

import "math"

// wrapAngle maps a radian difference onto the shortest signed path in (-π, π].
func wrapAngle(d float64) float64 {
	d = math.Mod(d, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// SolutionDistance scores how far candidate is from actual: the sum over axes of the
// absolute shortest-path angular difference, in radians. Candidates with a non-finite
// entry, or of the wrong length, score +Inf.
func SolutionDistance(candidate, actual JointVector) float64 {
	if len(candidate) != JointCount || len(actual) != JointCount {
		return math.Inf(1)
	}
	var sum float64
	for i := range candidate {
		d := wrapAngle(candidate[i] - actual[i])
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return math.Inf(1)
		}
		sum += math.Abs(d)
	}
	return sum
}

// SelectSolution picks the candidate closest to the actual joint configuration, using
// SolutionDistance. Ties go to the lowest controller index; if no candidate has a
// finite score the first one is returned. Both inputs are in radians.
func SelectSolution(candidates SolutionSet, actual JointVector) JointVector {
	best := 0
	bestDist := SolutionDistance(candidates[0], actual)
	for i := 1; i < len(candidates); i++ {
		if d := SolutionDistance(candidates[i], actual); d < bestDist {
			best, bestDist = i, d
		}
	}
	return candidates[best]
}
