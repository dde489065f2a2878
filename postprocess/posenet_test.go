package postprocess

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-posenet"
	"github.com/swdee/go-posenet/pose"
	"gonum.org/v1/gonum/spatial/r2"
)

// tensorFixture holds NCHW buffers for the four PoseNet outputs over a
// height x width grid
type tensorFixture struct {
	h, w    int
	scores  []float32
	offsets []float32
	fwd     []float32
	bwd     []float32
}

func newTensorFixture(h, w int) *tensorFixture {
	return &tensorFixture{
		h:       h,
		w:       w,
		scores:  make([]float32, posenet.ScoreChannels*h*w),
		offsets: make([]float32, posenet.OffsetChannels*h*w),
		fwd:     make([]float32, posenet.DisplacementChannels*h*w),
		bwd:     make([]float32, posenet.DisplacementChannels*h*w),
	}
}

func (f *tensorFixture) idx(c, y, x int) int {
	return (c*f.h+y)*f.w + x
}

func (f *tensorFixture) setScore(part pose.Part, y, x int, v float32) {
	f.scores[f.idx(int(part), y, x)] = v
}

func (f *tensorFixture) setOffset(part pose.Part, y, x int, dy, dx float32) {
	f.offsets[f.idx(int(part), y, x)] = dy
	f.offsets[f.idx(int(part)+pose.NumParts, y, x)] = dx
}

func (f *tensorFixture) setDisplacement(buf []float32, edge, y, x int, dy, dx float32) {
	buf[f.idx(edge, y, x)] = dy
	buf[f.idx(edge+pose.NumEdges, y, x)] = dx
}

func (f *tensorFixture) tensors(t *testing.T) (s, o, fw, bw *posenet.Tensor) {
	t.Helper()

	var err error

	s, err = posenet.NewTensor(f.scores, posenet.ScoreChannels, f.h, f.w, posenet.TensorNCHW)
	require.NoError(t, err)
	o, err = posenet.NewTensor(f.offsets, posenet.OffsetChannels, f.h, f.w, posenet.TensorNCHW)
	require.NoError(t, err)
	fw, err = posenet.NewTensor(f.fwd, posenet.DisplacementChannels, f.h, f.w, posenet.TensorNCHW)
	require.NoError(t, err)
	bw, err = posenet.NewTensor(f.bwd, posenet.DisplacementChannels, f.h, f.w, posenet.TensorNCHW)
	require.NoError(t, err)

	return s, o, fw, bw
}

// toNHWC transposes an NCHW buffer of c channels
func toNHWC(buf []float32, c, h, w int) []float32 {
	out := make([]float32, len(buf))
	for k := 0; k < c; k++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[(y*w+x)*c+k] = buf[(k*h+y)*w+x]
			}
		}
	}
	return out
}

func decode(t *testing.T, params PoseNetParams, f *tensorFixture) []pose.Pose {
	t.Helper()

	s, o, fw, bw := f.tensors(t)
	poses, err := NewPoseNet(params).DecodeMultiplePoses(s, o, fw, bw)
	require.NoError(t, err)

	return poses
}

func requireWellFormed(t *testing.T, params PoseNetParams, poses []pose.Pose) {
	t.Helper()

	require.LessOrEqual(t, len(poses), params.MaxPoseDetections)

	for i, p := range poses {
		require.Len(t, p.Keypoints, pose.NumParts)

		var sum float64

		for k, kp := range p.Keypoints {
			assert.Equal(t, pose.Part(k), kp.Part)
			sum += kp.Score
		}

		assert.InDelta(t, sum/pose.NumParts, p.Score, 1e-6)

		if i > 0 {
			assert.GreaterOrEqual(t, poses[i-1].Score, p.Score)
		}
	}
}

func TestDecodeAllZeroScores(t *testing.T) {
	poses := decode(t, PoseNetDefaultParams(), newTensorFixture(22, 22))
	assert.Empty(t, poses)
	assert.NotNil(t, poses)
}

func TestDecodeSingleCellAboveThreshold(t *testing.T) {

	f := newTensorFixture(5, 5)
	f.setScore(pose.Nose, 2, 2, 0.9)
	f.setScore(pose.LeftEye, 2, 2, 0.3)

	params := PoseNetDefaultParams()
	poses := decode(t, params, f)

	require.Len(t, poses, 1)
	requireWellFormed(t, params, poses)

	nose := poses[0].Keypoint(pose.Nose)
	assert.Equal(t, r2.Vec{X: 32, Y: 32}, nose.Position)
	assert.InDelta(t, 0.9, nose.Score, 1e-6)

	// zero displacements leave every part on the root cell, below threshold
	// scores are dropped
	for _, kp := range poses[0].Keypoints[1:] {
		assert.Equal(t, r2.Vec{X: 32, Y: 32}, kp.Position, kp.Part.String())
		assert.Equal(t, 0.0, kp.Score, kp.Part.String())
	}

	assert.InDelta(t, 0.9/pose.NumParts, poses[0].Score, 1e-6)
}

func TestDecodeIgnoresNaNScores(t *testing.T) {

	nan := float32(math.NaN())

	f := newTensorFixture(5, 5)
	f.setScore(pose.Nose, 0, 0, nan)
	f.setScore(pose.Nose, 3, 3, 0.9)
	f.setScore(pose.LeftEye, 3, 3, nan)

	params := PoseNetDefaultParams()
	poses := decode(t, params, f)

	require.Len(t, poses, 1)
	requireWellFormed(t, params, poses)

	assert.Equal(t, r2.Vec{X: 48, Y: 48}, poses[0].Keypoint(pose.Nose).Position)
	assert.Equal(t, 0.0, poses[0].Keypoint(pose.LeftEye).Score)
	assert.InDelta(t, 0.9/pose.NumParts, poses[0].Score, 1e-6)
}

func TestDecodeFollowsForwardDisplacement(t *testing.T) {

	f := newTensorFixture(5, 6)
	f.setScore(pose.Nose, 2, 1, 0.9)
	f.setScore(pose.LeftEye, 2, 3, 0.8)
	f.setOffset(pose.LeftEye, 2, 3, -2, 3)
	// edge 0 is nose -> leftEye, two cells to the right
	f.setDisplacement(f.fwd, 0, 2, 1, 0, 32)

	params := PoseNetDefaultParams()
	poses := decode(t, params, f)

	// the leftEye peak is suppressed by the leftEye of the nose pose
	require.Len(t, poses, 1)
	requireWellFormed(t, params, poses)

	eye := poses[0].Keypoint(pose.LeftEye)
	assert.Equal(t, r2.Vec{X: 51, Y: 30}, eye.Position)
	assert.InDelta(t, 0.8, eye.Score, 1e-6)
	assert.InDelta(t, (0.9+0.8)/pose.NumParts, poses[0].Score, 1e-6)
}

func TestDecodeFollowsBackwardDisplacement(t *testing.T) {

	f := newTensorFixture(5, 6)
	f.setScore(pose.LeftEye, 2, 3, 0.9)
	f.setScore(pose.Nose, 2, 1, 0.7)
	// edge 0 traversed child -> parent from leftEye to nose
	f.setDisplacement(f.bwd, 0, 2, 3, 0, -32)
	// forward field is not used for this step
	f.setDisplacement(f.fwd, 0, 2, 3, 0, 64)

	poses := decode(t, PoseNetDefaultParams(), f)

	require.Len(t, poses, 1)

	nose := poses[0].Keypoint(pose.Nose)
	assert.Equal(t, r2.Vec{X: 16, Y: 32}, nose.Position)
	assert.InDelta(t, 0.7, nose.Score, 1e-6)
	assert.InDelta(t, 0.9, poses[0].Keypoint(pose.LeftEye).Score, 1e-6)
}

func TestDecodeOffsetRefineSteps(t *testing.T) {

	f := newTensorFixture(5, 6)
	f.setScore(pose.Nose, 2, 1, 0.9)
	f.setDisplacement(f.fwd, 0, 2, 1, 0, 32)
	// first refinement lands 10px right of cell 3, which snaps to cell 4
	f.setOffset(pose.LeftEye, 2, 3, 0, 10)
	f.setOffset(pose.LeftEye, 2, 4, 0, 1)
	f.setScore(pose.LeftEye, 2, 4, 0.6)

	params := PoseNetDefaultParams()

	one := decode(t, params, f)
	require.Len(t, one, 1)
	assert.Equal(t, r2.Vec{X: 58, Y: 32}, one[0].Keypoint(pose.LeftEye).Position)
	assert.Equal(t, 0.0, one[0].Keypoint(pose.LeftEye).Score)

	params.OffsetRefineSteps = 2

	two := decode(t, params, f)
	require.NotEmpty(t, two)
	assert.Equal(t, r2.Vec{X: 65, Y: 32}, two[0].Keypoint(pose.LeftEye).Position)
	assert.InDelta(t, 0.6, two[0].Keypoint(pose.LeftEye).Score, 1e-6)
}

func TestDecodeNMSRadius(t *testing.T) {

	f := newTensorFixture(5, 8)
	f.setScore(pose.Nose, 2, 1, 0.9)
	f.setScore(pose.Nose, 2, 4, 0.8)

	tests := []struct {
		radius   float64
		expected int
	}{
		{20, 2},
		{48, 2},
		{48.5, 1},
		{100, 1},
	}

	for _, tc := range tests {
		params := PoseNetDefaultParams()
		params.NMSRadius = tc.radius

		poses := decode(t, params, f)
		requireWellFormed(t, params, poses)

		if !assert.Len(t, poses, tc.expected, "radius %v", tc.radius) {
			continue
		}

		assert.Equal(t, r2.Vec{X: 16, Y: 32}, poses[0].Keypoint(pose.Nose).Position)

		for i := 0; i < len(poses); i++ {
			for j := i + 1; j < len(poses); j++ {
				d := r2.Sub(poses[i].Keypoint(pose.Nose).Position,
					poses[j].Keypoint(pose.Nose).Position)
				assert.GreaterOrEqual(t, r2.Norm2(d), tc.radius*tc.radius)
			}
		}
	}
}

func TestDecodeLocalMaximum(t *testing.T) {

	f := newTensorFixture(5, 5)
	f.setScore(pose.Nose, 2, 2, 0.9)
	f.setScore(pose.Nose, 2, 3, 0.8)

	params := PoseNetDefaultParams()
	params.NMSRadius = 1

	// the neighbour is not a local maximum in a 3x3 window
	assert.Len(t, decode(t, params, f), 1)

	params.LocalMaximumRadius = 0
	assert.Len(t, decode(t, params, f), 2)
}

func TestDecodeMaxPoseDetections(t *testing.T) {

	f := newTensorFixture(5, 5)
	f.setScore(pose.Nose, 0, 0, 0.7)
	f.setScore(pose.Nose, 0, 4, 0.9)
	f.setScore(pose.Nose, 4, 0, 0.8)

	params := PoseNetDefaultParams()
	params.MaxPoseDetections = 2

	poses := decode(t, params, f)
	require.Len(t, poses, 2)
	assert.Equal(t, r2.Vec{X: 64, Y: 0}, poses[0].Keypoint(pose.Nose).Position)
	assert.Equal(t, r2.Vec{X: 0, Y: 64}, poses[1].Keypoint(pose.Nose).Position)

	for _, n := range []int{0, -3} {
		params.MaxPoseDetections = n
		poses := decode(t, params, f)
		assert.Empty(t, poses)
	}
}

func TestDecodeTieBreak(t *testing.T) {

	f := newTensorFixture(5, 8)
	f.setScore(pose.Nose, 2, 4, 0.9)
	f.setScore(pose.Nose, 2, 1, 0.9)

	poses := decode(t, PoseNetDefaultParams(), f)

	require.Len(t, poses, 2)
	// equal scores keep row then column order
	assert.Equal(t, r2.Vec{X: 16, Y: 32}, poses[0].Keypoint(pose.Nose).Position)
	assert.Equal(t, r2.Vec{X: 64, Y: 32}, poses[1].Keypoint(pose.Nose).Position)
}

func TestDecodeInvalidShapes(t *testing.T) {

	const h, w = 4, 4

	newT := func(c, h, w int) *posenet.Tensor {
		tensor, err := posenet.NewTensor(make([]float32, c*h*w), c, h, w, posenet.TensorNCHW)
		require.NoError(t, err)
		return tensor
	}

	tests := []struct {
		name    string
		scores  *posenet.Tensor
		offsets *posenet.Tensor
		fwd     *posenet.Tensor
		bwd     *posenet.Tensor
	}{
		{"offsets 32 channels", newT(17, h, w), newT(32, h, w), newT(32, h, w), newT(32, h, w)},
		{"scores 16 channels", newT(16, h, w), newT(34, h, w), newT(32, h, w), newT(32, h, w)},
		{"offsets grid", newT(17, h, w), newT(34, h, w+1), newT(32, h, w), newT(32, h, w)},
		{"forward channels", newT(17, h, w), newT(34, h, w), newT(34, h, w), newT(32, h, w)},
		{"backward grid", newT(17, h, w), newT(34, h, w), newT(32, h, w), newT(32, h+1, w)},
		{"missing tensor", newT(17, h, w), nil, newT(32, h, w), newT(32, h, w)},
	}

	pn := NewPoseNet(PoseNetDefaultParams())

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			poses, err := pn.DecodeMultiplePoses(tc.scores, tc.offsets, tc.fwd, tc.bwd)
			assert.Nil(t, poses)
			assert.True(t, errors.Is(err, posenet.ErrInvalidTensorShape), "got %v", err)
		})
	}
}

func TestDecodeInvalidStride(t *testing.T) {

	params := PoseNetDefaultParams()
	params.OutputStride = 0

	s, o, fw, bw := newTensorFixture(3, 3).tensors(t)
	_, err := NewPoseNet(params).DecodeMultiplePoses(s, o, fw, bw)
	assert.Error(t, err)
}

// randomFixture fills a fixture with peaky scores and small fields
func randomFixture(rng *rand.Rand, h, w int) *tensorFixture {

	f := newTensorFixture(h, w)

	for i := range f.scores {
		f.scores[i] = rng.Float32() * rng.Float32()
	}

	for i := range f.offsets {
		f.offsets[i] = rng.Float32()*16 - 8
	}

	for i := range f.fwd {
		f.fwd[i] = rng.Float32()*64 - 32
		f.bwd[i] = rng.Float32()*64 - 32
	}

	return f
}

func TestDecodeRandomisedProperties(t *testing.T) {

	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 20; i++ {
		f := randomFixture(rng, 22, 22)

		params := PoseNetDefaultParams()
		params.ScoreThreshold = 0.3
		params.MaxPoseDetections = 1 + i%6

		first := decode(t, params, f)
		requireWellFormed(t, params, first)

		// identical input gives an identical result
		second := decode(t, params, f)

		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("decode not deterministic (-first +second):\n%s", diff)
		}
	}
}

func TestDecodeNHWCMatchesNCHW(t *testing.T) {

	rng := rand.New(rand.NewSource(11))
	f := randomFixture(rng, 9, 13)

	params := PoseNetDefaultParams()
	params.ScoreThreshold = 0.2

	want := decode(t, params, f)
	require.NotEmpty(t, want)

	nhwc := func(buf []float32, c int) *posenet.Tensor {
		tensor, err := posenet.NewTensor(toNHWC(buf, c, f.h, f.w), c, f.h, f.w, posenet.TensorNHWC)
		require.NoError(t, err)
		return tensor
	}

	got, err := NewPoseNet(params).Decode(posenet.PoseNetOutputs{
		Scores:           nhwc(f.scores, posenet.ScoreChannels),
		Offsets:          nhwc(f.offsets, posenet.OffsetChannels),
		DisplacementsFwd: nhwc(f.fwd, posenet.DisplacementChannels),
		DisplacementsBwd: nhwc(f.bwd, posenet.DisplacementChannels),
	})
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NHWC decode differs (-NCHW +NHWC):\n%s", diff)
	}
}

func TestDecodeSyntheticTopology(t *testing.T) {

	// three parts in a line, 0 -> 1 -> 2
	topo, err := pose.NewTopology(3, []pose.Edge{{Parent: 0, Child: 1}, {Parent: 1, Child: 2}})
	require.NoError(t, err)

	const h, w = 3, 6

	scores := make([]float32, 3*h*w)
	offsets := make([]float32, 6*h*w)
	fwd := make([]float32, 4*h*w)
	bwd := make([]float32, 4*h*w)

	at := func(c, y, x int) int { return (c*h+y)*w + x }

	// root is part 1 at (1,2)
	scores[at(1, 1, 2)] = 0.9
	// part 2 two cells right via edge 1 forward
	fwd[at(1+2, 1, 2)] = 20
	scores[at(2, 1, 4)] = 0.6
	// part 0 two cells left via edge 0 backward
	bwd[at(0+2, 1, 2)] = -20
	scores[at(0, 1, 0)] = 0.55

	tensor := func(buf []float32, c int) *posenet.Tensor {
		tn, err := posenet.NewTensor(buf, c, h, w, posenet.TensorNCHW)
		require.NoError(t, err)
		return tn
	}

	params := PoseNetDefaultParams()
	params.OutputStride = 10

	poses, err := NewPoseNetWithTopology(params, topo).DecodeMultiplePoses(
		tensor(scores, 3), tensor(offsets, 6), tensor(fwd, 4), tensor(bwd, 4))
	require.NoError(t, err)
	require.Len(t, poses, 1)

	kps := poses[0].Keypoints
	require.Len(t, kps, 3)
	assert.Equal(t, r2.Vec{X: 0, Y: 10}, kps[0].Position)
	assert.Equal(t, r2.Vec{X: 20, Y: 10}, kps[1].Position)
	assert.Equal(t, r2.Vec{X: 40, Y: 10}, kps[2].Position)
	assert.InDelta(t, (0.55+0.9+0.6)/3, poses[0].Score, 1e-6)
}
