package posenet

import (
	"fmt"
	"strings"

	"github.com/swdee/go-posenet/pose"
)

// channel counts used to identify the PoseNet output tensors
const (
	ScoreChannels        = pose.NumParts
	OffsetChannels       = 2 * pose.NumParts
	DisplacementChannels = 2 * pose.NumEdges
)

// Output is a single unlabelled output of the inference runtime.  Runtimes
// such as CoreML or RKNN do not guarantee output order, so the Name is only
// used as a hint when telling the two displacement tensors apart.
type Output struct {
	Name   string
	Tensor *Tensor
}

// PoseNetOutputs holds the four PoseNet model outputs after they have been
// resolved by channel count
type PoseNetOutputs struct {
	// Scores is the [17, H, W] part heatmap
	Scores *Tensor
	// Offsets is the [34, H, W] sub cell offset field
	Offsets *Tensor
	// DisplacementsFwd is the [32, Hd, Wd] parent to child displacement field
	DisplacementsFwd *Tensor
	// DisplacementsBwd is the [32, Hd, Wd] child to parent displacement field
	DisplacementsBwd *Tensor
}

// ResolveOutputs identifies the PoseNet tensors in outputs by their channel
// count.  Exactly one 17 channel, one 34 channel and two 32 channel outputs
// are required, anything else is an ErrInvalidTensorShape.  When the
// displacement outputs carry a "fwd" or "bwd" marker in their names, a
// single marker is enough to assign both.  Only when neither name is marked
// is the first delivered 32 channel output taken as the forward field.
func ResolveOutputs(outputs []Output) (PoseNetOutputs, error) {

	var res PoseNetOutputs

	if len(outputs) != 4 {
		return res, fmt.Errorf("%w: expected 4 outputs, got %d",
			ErrInvalidTensorShape, len(outputs))
	}

	displacements := make([]Output, 0, 2)

	for i, out := range outputs {

		if out.Tensor == nil {
			return PoseNetOutputs{}, fmt.Errorf("%w: output %d has no tensor",
				ErrInvalidTensorShape, i)
		}

		switch out.Tensor.Channels() {
		case ScoreChannels:
			if res.Scores != nil {
				return PoseNetOutputs{}, collision(ScoreChannels)
			}
			res.Scores = out.Tensor

		case OffsetChannels:
			if res.Offsets != nil {
				return PoseNetOutputs{}, collision(OffsetChannels)
			}
			res.Offsets = out.Tensor

		case DisplacementChannels:
			displacements = append(displacements, out)

		default:
			return PoseNetOutputs{}, fmt.Errorf("%w: output %d (%q) has unexpected channel count %d",
				ErrInvalidTensorShape, i, out.Name, out.Tensor.Channels())
		}
	}

	switch {
	case res.Scores == nil:
		return PoseNetOutputs{}, collision(ScoreChannels)
	case res.Offsets == nil:
		return PoseNetOutputs{}, collision(OffsetChannels)
	case len(displacements) != 2:
		return PoseNetOutputs{}, collision(DisplacementChannels)
	}

	fwd, bwd := displacements[0], displacements[1]
	first, second := direction(fwd.Name), direction(bwd.Name)

	switch {
	case first != "" && first == second:
		return PoseNetOutputs{}, fmt.Errorf("%w: displacement outputs %q and %q are both marked %s",
			ErrInvalidTensorShape, fwd.Name, bwd.Name, first)

	case first == "bwd" || second == "fwd":
		fwd, bwd = bwd, fwd
	}

	res.DisplacementsFwd = fwd.Tensor
	res.DisplacementsBwd = bwd.Tensor

	return res, nil
}

// direction returns the "fwd" or "bwd" marker carried by an output name, or
// an empty string when it has neither or both
func direction(name string) string {

	name = strings.ToLower(name)
	fwd := strings.Contains(name, "fwd")
	bwd := strings.Contains(name, "bwd")

	switch {
	case fwd && !bwd:
		return "fwd"
	case bwd && !fwd:
		return "bwd"
	default:
		return ""
	}
}

// collision returns the error for an ambiguous channel count signature
func collision(channels int) error {
	return fmt.Errorf("%w: ambiguous outputs, channel count %d does not occur the expected number of times",
		ErrInvalidTensorShape, channels)
}
