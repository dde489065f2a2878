package postprocess

import (
	"fmt"
	"image"

	"github.com/swdee/go-posenet"
	"github.com/swdee/go-posenet/pose"
)

// PartHeatmap is a grayscale rendering of one part's confidence grid used
// for inspection tooling
type PartHeatmap struct {
	Part pose.Part
	// Image has one pixel per heatmap cell, a score of 1 maps to white
	Image *image.Gray
}

// Heatmaps converts the scores tensor into one grayscale image per part at
// the resolution of the output grid
func (p *PoseNet) Heatmaps(scores *posenet.Tensor) ([]PartHeatmap, error) {

	if scores == nil || scores.Channels() != p.topology.NumParts() {
		return nil, fmt.Errorf("%w: scores do not have %d channels",
			posenet.ErrInvalidTensorShape, p.topology.NumParts())
	}

	numParts, height, width := scores.Shape()
	maps := make([]PartHeatmap, numParts)

	for k := 0; k < numParts; k++ {

		img := image.NewGray(image.Rect(0, 0, width, height))

		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.Pix[y*img.Stride+x] = scoreToU8(scores.At(k, y, x))
			}
		}

		maps[k] = PartHeatmap{
			Part:  pose.Part(k),
			Image: img,
		}
	}

	return maps, nil
}

// scoreToU8 maps a confidence in [0,1] onto a gray level, values outside of
// the range and NaN are clamped
func scoreToU8(v float32) uint8 {

	switch {
	case v != v || v <= 0:
		return 0
	case v >= 1:
		return 255
	}

	return uint8(v * 255)
}
