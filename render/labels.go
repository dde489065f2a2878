package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/swdee/go-posenet/pose"
	"gocv.io/x/gocv"
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Padding to place around text
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
	}
}

// PoseLabels renders a score label above the keypoints of each pose with a
// score of at least minScore
func PoseLabels(img *gocv.Mat, poses []pose.Pose, minScore float64, font Font) {

	for i, p := range poses {

		bounds, ok := keypointBounds(p, minScore)

		if !ok {
			continue
		}

		clr := poseColors[i%len(poseColors)]
		text := fmt.Sprintf("person %.2f", p.Score)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		labelPosition := image.Pt(bounds.Min.X+font.LeftPad, bounds.Min.Y-font.BottomPad)

		bRect := image.Rect(bounds.Min.X,
			bounds.Min.Y-textSize.Y-font.TopPad-font.BottomPad,
			bounds.Min.X+textSize.X+font.LeftPad+font.RightPad, bounds.Min.Y)

		gocv.Rectangle(img, bRect, clr, -1)

		gocv.PutTextWithParams(img, text, labelPosition,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// keypointBounds returns the bounding rectangle of the keypoints scoring at
// least minScore
func keypointBounds(p pose.Pose, minScore float64) (image.Rectangle, bool) {

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	found := false

	for _, kp := range p.Keypoints {
		if kp.Score < minScore {
			continue
		}

		found = true
		minX = math.Min(minX, kp.Position.X)
		minY = math.Min(minY, kp.Position.Y)
		maxX = math.Max(maxX, kp.Position.X)
		maxY = math.Max(maxY, kp.Position.Y)
	}

	if !found {
		return image.Rectangle{}, false
	}

	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX)), int(math.Ceil(maxY))), true
}
