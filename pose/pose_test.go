package pose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r2"
)

func TestNewPoseScoreIsMean(t *testing.T) {

	kps := make([]Keypoint, NumParts)

	for i := range kps {
		kps[i] = Keypoint{
			Part:     Part(i),
			Position: r2.Vec{X: float64(i), Y: float64(2 * i)},
			Score:    float64(i) / 16,
		}
	}

	p := NewPose(kps)

	// sum of i/16 for i in 0..16 is 8.5, over 17 parts
	assert.InDelta(t, 0.5, p.Score, 1e-9)
	assert.Equal(t, r2.Vec{X: 5, Y: 10}, p.Keypoint(LeftShoulder).Position)
	assert.Equal(t, r2.Vec{X: 6, Y: 12}, p.Keypoint(RightShoulder).Position)
	assert.Contains(t, p.String(), "nose=(0.0,0.0|0.00)")
}

func TestNewPoseEmpty(t *testing.T) {
	assert.Equal(t, 0.0, NewPose(nil).Score)
}
