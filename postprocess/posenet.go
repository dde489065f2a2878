package postprocess

import (
	"fmt"
	"math"
	"sort"

	"github.com/swdee/go-posenet"
	"github.com/swdee/go-posenet/pose"
	"gonum.org/v1/gonum/spatial/r2"
)

// PoseNet defines the struct for multi-person PoseNet inference post
// processing
type PoseNet struct {
	// Params are the decoding configuration parameters
	Params PoseNetParams
	// topology is the skeleton tree walked from each root keypoint
	topology *pose.Topology
}

// PoseNetParams defines the struct containing the PoseNet parameters to use
// for post processing operations
type PoseNetParams struct {
	// OutputStride is the downsampling factor between the model input
	// resolution and the output grid
	OutputStride int
	// MaxPoseDetections is the maximum number of poses returned
	MaxPoseDetections int
	// ScoreThreshold is the minimum part score for a heatmap cell to seed a
	// pose, keypoints resolved below it have their score set to zero
	ScoreThreshold float64
	// NMSRadius is the minimum distance in pixels between the same part of
	// two poses
	NMSRadius float64
	// LocalMaximumRadius is the radius in grid cells of the window a root
	// candidate must be the maximum of
	LocalMaximumRadius int
	// OffsetRefineSteps is the number of snap and offset refinements applied
	// to a displaced keypoint
	OffsetRefineSteps int
}

// PoseNetDefaultParams returns an instance of PoseNetParams configured with
// the values used for the 337x337 PoseNet model featuring:
// - Output Stride: 16
// - Maximum Pose Detections: 15
// - Score Threshold: 0.5
// - NMS Radius: 20
// - Local Maximum Radius: 1
// - Offset Refine Steps: 1
func PoseNetDefaultParams() PoseNetParams {
	return PoseNetParams{
		OutputStride:       16,
		MaxPoseDetections:  15,
		ScoreThreshold:     0.5,
		NMSRadius:          20,
		LocalMaximumRadius: 1,
		OffsetRefineSteps:  1,
	}
}

// NewPoseNet returns an instance of the PoseNet post processor for the 17
// part PoseNet skeleton
func NewPoseNet(p PoseNetParams) *PoseNet {
	return NewPoseNetWithTopology(p, pose.COCO())
}

// NewPoseNetWithTopology returns a PoseNet post processor decoding the given
// skeleton topology
func NewPoseNetWithTopology(p PoseNetParams, topology *pose.Topology) *PoseNet {
	return &PoseNet{
		Params:   p,
		topology: topology,
	}
}

// partCandidate is a heatmap cell that may seed a pose
type partCandidate struct {
	score float64
	part  pose.Part
	y     int
	x     int
}

// Decode runs DecodeMultiplePoses on resolved model outputs
func (p *PoseNet) Decode(outputs posenet.PoseNetOutputs) ([]pose.Pose, error) {
	return p.DecodeMultiplePoses(outputs.Scores, outputs.Offsets,
		outputs.DisplacementsFwd, outputs.DisplacementsBwd)
}

// DecodeMultiplePoses takes the four PoseNet output tensors and returns the
// detected poses ordered by descending pose score.  Keypoint positions are in
// model input pixel coordinates.  Tensors whose extents do not match the
// skeleton topology return an error wrapping posenet.ErrInvalidTensorShape.
func (p *PoseNet) DecodeMultiplePoses(scores, offsets, displacementsFwd,
	displacementsBwd *posenet.Tensor) ([]pose.Pose, error) {

	if p.Params.OutputStride <= 0 {
		return nil, fmt.Errorf("output stride must be positive, got %d",
			p.Params.OutputStride)
	}

	err := p.checkShapes(scores, offsets, displacementsFwd, displacementsBwd)

	if err != nil {
		return nil, err
	}

	poses := make([]pose.Pose, 0)

	if p.Params.MaxPoseDetections <= 0 {
		return poses, nil
	}

	candidates := p.buildPartCandidates(scores)
	squaredNMSRadius := p.Params.NMSRadius * p.Params.NMSRadius

	for _, root := range candidates {

		if len(poses) >= p.Params.MaxPoseDetections {
			break
		}

		rootPos := p.imageCoords(root.part, root.y, root.x, offsets)

		if withinNMSRadius(poses, squaredNMSRadius, root.part, rootPos) {
			continue
		}

		keypoints := p.decodePose(root, rootPos, scores, offsets,
			displacementsFwd, displacementsBwd)

		poses = append(poses, pose.NewPose(keypoints))
	}

	sort.SliceStable(poses, func(i, j int) bool {
		return poses[i].Score > poses[j].Score
	})

	return poses, nil
}

// checkShapes validates the tensor extents against the skeleton topology
func (p *PoseNet) checkShapes(scores, offsets, fwd, bwd *posenet.Tensor) error {

	if scores == nil || offsets == nil || fwd == nil || bwd == nil {
		return fmt.Errorf("%w: missing tensor", posenet.ErrInvalidTensorShape)
	}

	numParts := p.topology.NumParts()
	numEdges := numParts - 1

	sc, sh, sw := scores.Shape()

	if sc != numParts {
		return fmt.Errorf("%w: scores have %d channels, expected %d",
			posenet.ErrInvalidTensorShape, sc, numParts)
	}

	oc, oh, ow := offsets.Shape()

	if oc != 2*numParts || oh != sh || ow != sw {
		return fmt.Errorf("%w: offsets shape [%d, %d, %d], expected [%d, %d, %d]",
			posenet.ErrInvalidTensorShape, oc, oh, ow, 2*numParts, sh, sw)
	}

	fc, fh, fw := fwd.Shape()

	if fc != 2*numEdges {
		return fmt.Errorf("%w: forward displacements have %d channels, expected %d",
			posenet.ErrInvalidTensorShape, fc, 2*numEdges)
	}

	bc, bh, bw := bwd.Shape()

	if bc != fc || bh != fh || bw != fw {
		return fmt.Errorf("%w: backward displacements shape [%d, %d, %d] differs from forward [%d, %d, %d]",
			posenet.ErrInvalidTensorShape, bc, bh, bw, fc, fh, fw)
	}

	return nil
}

// buildPartCandidates returns every heatmap cell above the score threshold
// that is the maximum of its local window, ordered by descending score with
// ties kept in part, row, column order
func (p *PoseNet) buildPartCandidates(scores *posenet.Tensor) []partCandidate {

	numParts, height, width := scores.Shape()
	candidates := make([]partCandidate, 0)

	for k := 0; k < numParts; k++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {

				score := float64(scores.At(k, y, x))

				// also rejects NaN
				if !(score > p.Params.ScoreThreshold) {
					continue
				}

				if !p.isLocalMaximum(scores, k, y, x, score) {
					continue
				}

				candidates = append(candidates, partCandidate{
					score: score,
					part:  pose.Part(k),
					y:     y,
					x:     x,
				})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	return candidates
}

// isLocalMaximum reports if no cell in the window around (y, x) of the
// part heatmap has a higher score
func (p *PoseNet) isLocalMaximum(scores *posenet.Tensor, part, y, x int,
	score float64) bool {

	r := p.Params.LocalMaximumRadius
	yStart := max(y-r, 0)
	yEnd := min(y+r+1, scores.Height())
	xStart := max(x-r, 0)
	xEnd := min(x+r+1, scores.Width())

	for yc := yStart; yc < yEnd; yc++ {
		for xc := xStart; xc < xEnd; xc++ {
			if float64(scores.At(part, yc, xc)) > score {
				return false
			}
		}
	}

	return true
}

// imageCoords converts a heatmap cell into a model input position refined
// by the part offset vector.  Offset channel k holds dy and k+numParts dx.
func (p *PoseNet) imageCoords(part pose.Part, y, x int,
	offsets *posenet.Tensor) r2.Vec {

	numParts := p.topology.NumParts()
	stride := float64(p.Params.OutputStride)

	return r2.Vec{
		X: float64(x)*stride + float64(offsets.At(int(part)+numParts, y, x)),
		Y: float64(y)*stride + float64(offsets.At(int(part), y, x)),
	}
}

// nearestCell snaps a model input position to the closest grid cell of a
// height x width output grid
func (p *PoseNet) nearestCell(pos r2.Vec, height, width int) (int, int) {

	stride := float64(p.Params.OutputStride)

	y := int(math.Round(pos.Y / stride))
	x := int(math.Round(pos.X / stride))

	return min(max(y, 0), height-1), min(max(x, 0), width-1)
}

// decodePose resolves every part of the skeleton by walking the tree
// outward from the root candidate
func (p *PoseNet) decodePose(root partCandidate, rootPos r2.Vec, scores,
	offsets, fwd, bwd *posenet.Tensor) []pose.Keypoint {

	keypoints := make([]pose.Keypoint, p.topology.NumParts())

	for i := range keypoints {
		keypoints[i].Part = pose.Part(i)
	}

	keypoints[root.part] = pose.Keypoint{
		Part:     root.part,
		Position: rootPos,
		Score:    root.score,
	}

	for _, step := range p.topology.Traversal(root.part) {

		displacements := bwd

		if step.Forward {
			displacements = fwd
		}

		keypoints[step.To] = p.traverseToTarget(step, keypoints[step.From],
			scores, offsets, displacements)
	}

	return keypoints
}

// traverseToTarget follows the displacement vector of the step edge from
// the source keypoint, then snaps and refines the target with its offsets.
// Displacement channel e holds dy and e+numEdges dx.
func (p *PoseNet) traverseToTarget(step pose.Step, source pose.Keypoint,
	scores, offsets, displacements *posenet.Tensor) pose.Keypoint {

	numEdges := p.topology.NumParts() - 1

	srcY, srcX := p.nearestCell(source.Position, displacements.Height(),
		displacements.Width())

	target := r2.Add(source.Position, r2.Vec{
		X: float64(displacements.At(step.Edge+numEdges, srcY, srcX)),
		Y: float64(displacements.At(step.Edge, srcY, srcX)),
	})

	refineSteps := max(p.Params.OffsetRefineSteps, 1)

	var y, x int

	for i := 0; i < refineSteps; i++ {
		y, x = p.nearestCell(target, scores.Height(), scores.Width())
		target = p.imageCoords(step.To, y, x, offsets)
	}

	score := float64(scores.At(int(step.To), y, x))

	if !(score >= p.Params.ScoreThreshold) {
		score = 0
	}

	return pose.Keypoint{
		Part:     step.To,
		Position: target,
		Score:    score,
	}
}

// withinNMSRadius reports if pos is closer than the NMS radius to the same
// part of any accepted pose
func withinNMSRadius(poses []pose.Pose, squaredNMSRadius float64,
	part pose.Part, pos r2.Vec) bool {

	for _, accepted := range poses {
		other := accepted.Keypoints[part].Position

		if r2.Norm2(r2.Sub(pos, other)) < squaredNMSRadius {
			return true
		}
	}

	return false
}
