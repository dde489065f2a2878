package overlay

import (
	"math"

	clipper "github.com/ctessum/go.clipper"
	"gonum.org/v1/gonum/spatial/r2"
)

// clipScale converts view coordinates to the integer grid used by the
// polygon clipper, keeping three decimal places
const clipScale = 1000

// Quad returns the corners of an overlay of the given intrinsic width and
// height placed by the transform, clockwise from top left
func (t Transform) Quad(width, height float64) [4]r2.Vec {

	hw := width * t.Scale / 2
	hh := height * t.Scale / 2

	corners := [4]r2.Vec{
		{X: -hw, Y: -hh},
		{X: hw, Y: -hh},
		{X: hw, Y: hh},
		{X: -hw, Y: hh},
	}

	rot := Rotate(t.Rotation)

	for i, c := range corners {
		corners[i] = r2.Add(t.Center, rot.TransformVector(c))
	}

	return corners
}

// VisibleFraction returns the share, in [0,1], of the placed overlay area
// that falls inside the view bounds
func VisibleFraction(t Transform, width, height float64, view Size) float64 {

	quad := t.Quad(width, height)

	var subject clipper.Path

	for _, c := range quad {
		subject = append(subject, toIntPoint(c))
	}

	bounds := clipper.Path{
		toIntPoint(r2.Vec{X: 0, Y: 0}),
		toIntPoint(r2.Vec{X: view.Width, Y: 0}),
		toIntPoint(r2.Vec{X: view.Width, Y: view.Height}),
		toIntPoint(r2.Vec{X: 0, Y: view.Height}),
	}

	total := pathArea(subject)

	if total == 0 {
		return 0
	}

	c := clipper.NewClipper(0)
	c.AddPath(subject, clipper.PtSubject, true)
	c.AddPath(bounds, clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftNonZero,
		clipper.PftNonZero)

	if !ok {
		return 0
	}

	var visible float64

	for _, path := range solution {
		visible += pathArea(path)
	}

	return math.Min(visible/total, 1)
}

// toIntPoint converts a view point to the clipper integer grid
func toIntPoint(v r2.Vec) *clipper.IntPoint {
	return &clipper.IntPoint{
		X: clipper.CInt(math.Round(v.X * clipScale)),
		Y: clipper.CInt(math.Round(v.Y * clipScale)),
	}
}

// pathArea returns the unsigned shoelace area of a closed path in clipper
// grid units
func pathArea(path clipper.Path) float64 {

	var sum float64

	for i := range path {
		a := path[i]
		b := path[(i+1)%len(path)]
		sum += float64(a.X)*float64(b.Y) - float64(b.X)*float64(a.Y)
	}

	return math.Abs(sum) / 2
}
