package render

import (
	"image/color"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"
)

// OverlayQuad renders the outline of a placed overlay given its corners in
// img coordinates
func OverlayQuad(img *gocv.Mat, quad [4]r2.Vec, clr color.RGBA,
	lineThickness int) {

	for i := range quad {
		gocv.Line(img, toPoint(quad[i]), toPoint(quad[(i+1)%len(quad)]), clr,
			lineThickness)
	}
}

// AnchorColor returns the outline color for overlays of the named anchor
func AnchorColor(name string) color.RGBA {
	switch name {
	case "face":
		return Yellow
	case "hip":
		return Pink
	default:
		return White
	}
}
