package overlay

import (
	"errors"
	"fmt"
	"math"

	"github.com/swdee/go-posenet/pose"
	"gonum.org/v1/gonum/spatial/r2"
)

// ErrInsufficientLandmarks is returned when the keypoints an anchor needs
// carry too little confidence to place the overlay.  Callers should hide the
// overlay for the frame.
var ErrInsufficientLandmarks = errors.New("insufficient landmarks")

// Size is a width and height in pixels
type Size struct {
	Width  float64
	Height float64
}

// Anchor describes how an overlay is attached to a pose
type Anchor struct {
	// Name identifies the anchor in results
	Name string
	// CenterParts are averaged to find the overlay center
	CenterParts []pose.Part
	// DistanceFrom and DistanceTo are the landmarks measured for scale and,
	// when FollowRotation is set, rotation
	DistanceFrom pose.Part
	DistanceTo   pose.Part
	// FollowRotation rotates the overlay with the DistanceFrom to DistanceTo
	// direction, otherwise only the device orientation is applied
	FollowRotation bool
	// ModelReferenceDimension is the model input dimension the measured
	// distance is normalised by
	ModelReferenceDimension float64
	// OverlayIntrinsicDimension is the size of the overlay artwork
	OverlayIntrinsicDimension float64
	// OverlayReferenceDistance is the landmark distance, in artwork units,
	// the artwork was drawn for
	OverlayReferenceDistance float64
	// MinScale and MaxScale clamp the derived scale
	MinScale float64
	MaxScale float64
	// MinKeypointScore is the confidence below which a landmark is treated
	// as absent
	MinKeypointScore float64
}

// FaceAnchor returns the anchor used for face overlays, centered on the
// nose and scaled by the distance between the eyes
func FaceAnchor() Anchor {
	return Anchor{
		Name:                      "face",
		CenterParts:               []pose.Part{pose.Nose},
		DistanceFrom:              pose.RightEye,
		DistanceTo:                pose.LeftEye,
		ModelReferenceDimension:   337,
		OverlayIntrinsicDimension: 300,
		OverlayReferenceDistance:  320,
		MinScale:                  0.7,
		MaxScale:                  1.5,
		MinKeypointScore:          0.01,
	}
}

// HipAnchor returns the anchor used for overlays worn around the hips.  It
// follows body lean, an upright subject facing the camera gives no rotation.
func HipAnchor() Anchor {
	return Anchor{
		Name:                      "hip",
		CenterParts:               []pose.Part{pose.LeftHip, pose.RightHip},
		DistanceFrom:              pose.RightHip,
		DistanceTo:                pose.LeftHip,
		FollowRotation:            true,
		ModelReferenceDimension:   337,
		OverlayIntrinsicDimension: 300,
		OverlayReferenceDistance:  320,
		MinScale:                  0.7,
		MaxScale:                  1.5,
		MinKeypointScore:          0.01,
	}
}

// Transform is the placement of an overlay in view coordinates
type Transform struct {
	// Center is the overlay center in view coordinates
	Center r2.Vec
	// Rotation is in radians
	Rotation float64
	// Scale is the uniform scale applied to the overlay artwork
	Scale float64
	// Distance is the measured landmark distance in model coordinates
	Distance float64
}

// ViewChain returns the matrix mapping model coordinates to view
// coordinates.  Applied to a point right to left: scale by the inverse model
// size, move the center to the origin, rotate by the orientation angle, flip
// vertically, move back and scale up to the view bounds.
func ViewChain(model, view Size, o Orientation) Matrix {
	return Chain(
		Scale(view.Width, view.Height),
		Translate(0.5, 0.5),
		Scale(1, -1),
		Rotate(o.Angle()),
		Translate(-0.5, -0.5),
		Scale(1/model.Width, 1/model.Height),
	)
}

// Place computes the transform of the overlay described by the anchor for
// the given pose.  Model is the model input size the pose coordinates are
// in, view the display bounds.
func Place(p pose.Pose, a Anchor, model, view Size, o Orientation) (Transform, error) {

	if model.Width <= 0 || model.Height <= 0 {
		return Transform{}, fmt.Errorf("invalid model size %vx%v", model.Width, model.Height)
	}

	if len(a.CenterParts) == 0 {
		return Transform{}, fmt.Errorf("anchor %q has no center parts", a.Name)
	}

	parts := append([]pose.Part{a.DistanceFrom, a.DistanceTo}, a.CenterParts...)

	for _, part := range parts {
		if int(part) < 0 || int(part) >= len(p.Keypoints) {
			return Transform{}, fmt.Errorf("%w: pose has no %s keypoint",
				ErrInsufficientLandmarks, part)
		}

		if p.Keypoints[part].Score < a.MinKeypointScore {
			return Transform{}, fmt.Errorf("%w: %s score %.3f below %.3f",
				ErrInsufficientLandmarks, part, p.Keypoints[part].Score, a.MinKeypointScore)
		}
	}

	from := p.Keypoints[a.DistanceFrom].Position
	to := p.Keypoints[a.DistanceTo].Position
	delta := r2.Sub(to, from)
	distance := r2.Norm(delta)

	if distance == 0 {
		return Transform{}, fmt.Errorf("%w: %s and %s coincide",
			ErrInsufficientLandmarks, a.DistanceFrom, a.DistanceTo)
	}

	var center r2.Vec

	for _, part := range a.CenterParts {
		center = r2.Add(center, p.Keypoints[part].Position)
	}

	center = r2.Scale(1/float64(len(a.CenterParts)), center)

	rotation := o.Angle()

	if a.FollowRotation {
		// model space is top-down, view space bottom-up
		rotation += math.Atan2(-delta.Y, delta.X)
	}

	return Transform{
		Center:   ViewChain(model, view, o).TransformPoint(center),
		Rotation: rotation,
		Scale:    a.scale(distance),
		Distance: distance,
	}, nil
}

// scale derives the overlay scale from a measured landmark distance
func (a Anchor) scale(distance float64) float64 {

	s := (distance / a.ModelReferenceDimension) *
		(a.OverlayIntrinsicDimension / a.OverlayReferenceDistance)

	if a.MaxScale > 0 && s > a.MaxScale {
		s = a.MaxScale
	}

	if s < a.MinScale {
		s = a.MinScale
	}

	return s
}
