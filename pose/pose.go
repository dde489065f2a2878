package pose

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"
)

// Keypoint is a single decoded landmark
type Keypoint struct {
	// Part is the landmark type
	Part Part
	// Position is the location in model input pixel coordinates
	Position r2.Vec
	// Score is the confidence in [0,1], zero when the part could not be
	// resolved with enough confidence
	Score float64
}

// Pose is one detected person, with exactly one Keypoint per part in part
// enumeration order
type Pose struct {
	Keypoints []Keypoint
	// Score is the mean of the keypoint scores
	Score float64
}

// NewPose returns a Pose over keypoints with its score set to the mean of
// the keypoint scores
func NewPose(keypoints []Keypoint) Pose {

	scores := make([]float64, len(keypoints))

	for i, kp := range keypoints {
		scores[i] = kp.Score
	}

	var score float64

	if len(scores) > 0 {
		score = stat.Mean(scores, nil)
	}

	return Pose{
		Keypoints: keypoints,
		Score:     score,
	}
}

// Keypoint returns the keypoint for the given part
func (p Pose) Keypoint(part Part) Keypoint {
	return p.Keypoints[part]
}

// String returns a compact description of the pose
func (p Pose) String() string {

	var b strings.Builder

	fmt.Fprintf(&b, "pose(score=%.3f", p.Score)

	for _, kp := range p.Keypoints {
		fmt.Fprintf(&b, " %s=(%.1f,%.1f|%.2f)", kp.Part, kp.Position.X,
			kp.Position.Y, kp.Score)
	}

	b.WriteString(")")

	return b.String()
}
