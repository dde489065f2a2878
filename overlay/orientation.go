package overlay

import "math"

// Orientation is the physical rotation of the capture device
type Orientation int

const (
	Portrait Orientation = iota
	PortraitUpsideDown
	LandscapeLeft
	LandscapeRight
)

// Angle returns the rotation in radians applied when mapping model
// coordinates onto the view for this orientation
func (o Orientation) Angle() float64 {
	switch o {
	case PortraitUpsideDown:
		return math.Pi
	case LandscapeLeft:
		return math.Pi / 2
	case LandscapeRight:
		return -math.Pi / 2
	default:
		return 0
	}
}

// String returns a readable description of the Orientation
func (o Orientation) String() string {
	switch o {
	case Portrait:
		return "portrait"
	case PortraitUpsideDown:
		return "portraitUpsideDown"
	case LandscapeLeft:
		return "landscapeLeft"
	case LandscapeRight:
		return "landscapeRight"
	default:
		return "unknown"
	}
}
