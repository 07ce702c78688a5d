package capture

import "math"

// Point counts reported by the upstream detector configuration.
const (
	SyntheticPosePoints = 25
	SyntheticHandPoints = 21
)

// SyntheticResult returns a detector result for frame i with a small
// periodic motion applied to every point. Used for dry runs and tests.
func SyntheticResult(i int) DetectorResult {
	t := float64(i)
	pose := make([]Point, SyntheticPosePoints)
	for j := range pose {
		phase := t*0.1 + float64(j)*0.1
		pose[j] = Point{
			X:          0.5 + math.Sin(phase)*0.1,
			Y:          0.5 + math.Cos(phase)*0.1,
			Z:          0.1 + math.Sin(t*0.05)*0.05,
			Visibility: Vis(0.9),
		}
	}
	left := make([]Point, SyntheticHandPoints)
	right := make([]Point, SyntheticHandPoints)
	for j := range left {
		phase := t*0.2 + float64(j)*0.2
		z := 0.2 + math.Sin(t*0.1)*0.05
		left[j] = Point{X: 0.3 + math.Sin(phase)*0.1, Y: 0.6 + math.Cos(phase)*0.1, Z: z}
		right[j] = Point{X: 0.7 + math.Sin(phase)*0.1, Y: 0.6 + math.Cos(phase)*0.1, Z: z}
	}
	return DetectorResult{Pose: pose, LeftHand: left, RightHand: right}
}
