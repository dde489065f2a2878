package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/swdee/go-posenet"
	"github.com/swdee/go-posenet/overlay"
	"github.com/swdee/go-posenet/pose"
	"github.com/swdee/go-posenet/postprocess"
	"github.com/swdee/go-posenet/preprocess"
	"gocv.io/x/gocv"
)

// Frame is a single captured frame handed to the pipeline
type Frame struct {
	// Seq is the capture sequence number
	Seq uint64
	// Image is the pixel buffer, owned by the capture layer
	Image gocv.Mat
	// Orientation is the device orientation when the frame was captured
	Orientation overlay.Orientation
}

// Inferer runs the PoseNet model on a frame and returns its raw, unlabelled
// outputs.  Implementations wrap the inference runtime.
type Inferer interface {
	Infer(ctx context.Context, frame Frame) ([]posenet.Output, error)
}

// Config defines the per frame decoding and placement settings
type Config struct {
	// PoseNet are the decoder parameters
	PoseNet postprocess.PoseNetParams
	// ModelSize is the model input size decoded coordinates are in
	ModelSize overlay.Size
	// ViewSize is the display bounds overlays are placed in
	ViewSize overlay.Size
	// Anchors are placed on every decoded pose
	Anchors []overlay.Anchor
	// Heatmaps enables the per part heatmap debug feed
	Heatmaps bool
}

// DefaultConfig returns the settings for the 337x337 PoseNet model with
// face and hip overlays
func DefaultConfig() Config {
	return Config{
		PoseNet:   postprocess.PoseNetDefaultParams(),
		ModelSize: overlay.Size{Width: 337, Height: 337},
		ViewSize:  overlay.Size{Width: 337, Height: 337},
		Anchors:   []overlay.Anchor{overlay.FaceAnchor(), overlay.HipAnchor()},
	}
}

// Placement is the transform of one anchor on one pose
type Placement struct {
	// Anchor is the anchor name
	Anchor string
	// Pose is the index into Result.Poses
	Pose int
	// Transform is only valid when Hidden is false
	Transform overlay.Transform
	// Visible is the fraction of the overlay inside the view bounds
	Visible float64
	// Hidden is set when the overlay should not be shown this frame
	Hidden bool
}

// Result is the immutable outcome of processing one frame
type Result struct {
	Seq         uint64
	Orientation overlay.Orientation
	// Poses are in model input coordinates, ordered by descending score
	Poses []pose.Pose
	// SourcePoses are Poses mapped onto the frame, only set when the
	// pipeline has a Resizer
	SourcePoses []pose.Pose
	Placements  []Placement
	Heatmaps    []postprocess.PartHeatmap
	// Elapsed is the time spent on inference and decoding
	Elapsed time.Duration
}

// PublishFunc hands a result to the presentation layer.  It is called from
// the pipeline worker goroutine.
type PublishFunc func(Result)

// Stats are the pipeline frame counters
type Stats struct {
	// Submitted is the number of frames accepted by Submit
	Submitted uint64
	// Dropped is the number of frames rejected because the worker was busy
	Dropped uint64
	// Processed is the number of frames published
	Processed uint64
	// Skipped is the number of frames abandoned due to an error
	Skipped uint64
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger, by default the pipeline logs nothing
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithResizer maps decoded poses onto source frame coordinates
func WithResizer(r *preprocess.Resizer) Option {
	return func(p *Pipeline) {
		p.resizer = r
	}
}

// Pipeline decodes frames one at a time on a single worker.  Frames that
// arrive while the worker is busy are dropped rather than queued.
type Pipeline struct {
	cfg     Config
	inf     Inferer
	publish PublishFunc
	decoder *postprocess.PoseNet
	resizer *preprocess.Resizer
	logger  *slog.Logger
	frames  chan Frame

	submitted atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
	skipped   atomic.Uint64
}

// New returns a pipeline running inf on each frame and publishing results
// with publish
func New(cfg Config, inf Inferer, publish PublishFunc, opts ...Option) *Pipeline {

	p := &Pipeline{
		cfg:     cfg,
		inf:     inf,
		publish: publish,
		decoder: postprocess.NewPoseNet(cfg.PoseNet),
		logger:  newNopLogger(),
		// unbuffered so a send only succeeds when the worker is idle
		frames: make(chan Frame),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Submit hands the frame to the worker if it is idle and reports whether the
// frame was accepted
func (p *Pipeline) Submit(f Frame) bool {
	select {
	case p.frames <- f:
		p.submitted.Add(1)
		return true
	default:
		p.dropped.Add(1)
		p.logger.Debug("frame dropped, worker busy", "seq", f.Seq)
		return false
	}
}

// Run processes submitted frames until ctx is cancelled
func (p *Pipeline) Run(ctx context.Context) error {

	p.logger.Info("pipeline started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopped", "reason", ctx.Err())
			return ctx.Err()

		case f := <-p.frames:
			res, err := p.Process(ctx, f)

			if err != nil {
				continue
			}

			p.publish(res)
		}
	}
}

// Process runs inference, decoding and overlay placement for a single frame.
// A frame whose outputs cannot be decoded returns an error and must be
// skipped, the previous result stays current.
func (p *Pipeline) Process(ctx context.Context, f Frame) (Result, error) {

	start := time.Now()

	res, err := p.process(ctx, f)

	if err != nil {
		p.skipped.Add(1)
		p.logger.Warn("frame skipped", "seq", f.Seq, "err", err)
		return Result{}, err
	}

	res.Elapsed = time.Since(start)
	p.processed.Add(1)

	p.logger.Debug("frame decoded", "seq", f.Seq, "poses", len(res.Poses),
		"elapsed", res.Elapsed)

	return res, nil
}

func (p *Pipeline) process(ctx context.Context, f Frame) (Result, error) {

	raw, err := p.inf.Infer(ctx, f)

	if err != nil {
		return Result{}, fmt.Errorf("inference failed: %w", err)
	}

	outputs, err := posenet.ResolveOutputs(raw)

	if err != nil {
		return Result{}, fmt.Errorf("error resolving outputs: %w", err)
	}

	poses, err := p.decoder.Decode(outputs)

	if err != nil {
		return Result{}, fmt.Errorf("error decoding poses: %w", err)
	}

	res := Result{
		Seq:         f.Seq,
		Orientation: f.Orientation,
		Poses:       poses,
		Placements:  p.place(poses, f.Orientation),
	}

	if p.resizer != nil {
		res.SourcePoses = toSource(poses, p.resizer)
	}

	if p.cfg.Heatmaps {
		res.Heatmaps, err = p.decoder.Heatmaps(outputs.Scores)

		if err != nil {
			return Result{}, fmt.Errorf("error building heatmaps: %w", err)
		}
	}

	return res, nil
}

// place computes every anchor transform for every pose
func (p *Pipeline) place(poses []pose.Pose, o overlay.Orientation) []Placement {

	placements := make([]Placement, 0, len(poses)*len(p.cfg.Anchors))

	for i, ps := range poses {
		for _, a := range p.cfg.Anchors {

			pl := Placement{Anchor: a.Name, Pose: i}

			t, err := overlay.Place(ps, a, p.cfg.ModelSize, p.cfg.ViewSize, o)

			switch {
			case errors.Is(err, overlay.ErrInsufficientLandmarks):
				pl.Hidden = true

			case err != nil:
				p.logger.Warn("overlay placement failed", "anchor", a.Name, "err", err)
				pl.Hidden = true

			default:
				pl.Transform = t
				pl.Visible = overlay.VisibleFraction(t, a.OverlayIntrinsicDimension,
					a.OverlayIntrinsicDimension, p.cfg.ViewSize)
				pl.Hidden = pl.Visible == 0
			}

			placements = append(placements, pl)
		}
	}

	return placements
}

// toSource maps pose keypoints from model input to frame coordinates
func toSource(poses []pose.Pose, r *preprocess.Resizer) []pose.Pose {

	out := make([]pose.Pose, len(poses))

	for i, ps := range poses {
		kps := make([]pose.Keypoint, len(ps.Keypoints))

		for j, kp := range ps.Keypoints {
			kp.Position = r.ToSource(kp.Position)
			kps[j] = kp
		}

		out[i] = pose.Pose{Keypoints: kps, Score: ps.Score}
	}

	return out
}

// Stats returns a snapshot of the frame counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Processed: p.processed.Load(),
		Skipped:   p.skipped.Load(),
	}
}
