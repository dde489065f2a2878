package render

import (
	"image"
	"math"

	"github.com/swdee/go-posenet/pose"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"
)

// PoseKeyPoints renders the skeleton of every pose.  Edges and joints whose
// keypoints score below minScore are skipped.  Keypoint positions must
// already be in img coordinates.
func PoseKeyPoints(img *gocv.Mat, poses []pose.Pose, minScore float64,
	lineThickness int) {

	edges := pose.Edges()

	for _, p := range poses {

		if len(p.Keypoints) != pose.NumParts {
			continue
		}

		// draw skeleton lines
		for j, e := range edges {
			from := p.Keypoints[e.Parent]
			to := p.Keypoints[e.Child]

			if from.Score < minScore || to.Score < minScore {
				continue
			}

			gocv.Line(img, toPoint(from.Position), toPoint(to.Position),
				limbColors[j], lineThickness)
		}

		// draw circles at skeleton joints
		for j, kp := range p.Keypoints {
			if kp.Score < minScore {
				continue
			}

			gocv.Circle(img, toPoint(kp.Position), 3, keyPointColors[j], -1)
		}
	}
}

// toPoint rounds a position to the nearest pixel
func toPoint(v r2.Vec) image.Point {
	return image.Pt(int(math.Round(v.X)), int(math.Round(v.Y)))
}
