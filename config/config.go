// Package config loads the pose pipeline settings from a JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/swdee/go-posenet/overlay"
	"github.com/swdee/go-posenet/pipeline"
)

// maxFileSize is the largest config file accepted
const maxFileSize = 1 << 20

// Config is the on disk pipeline configuration.  Every field is optional,
// omitted fields fall back to the pipeline defaults.
type Config struct {
	// Decoder params
	OutputStride       *int     `json:"output_stride,omitempty"`
	MaxPoseDetections  *int     `json:"max_pose_detections,omitempty"`
	ScoreThreshold     *float64 `json:"score_threshold,omitempty"`
	NMSRadius          *float64 `json:"nms_radius,omitempty"`
	LocalMaximumRadius *int     `json:"local_maximum_radius,omitempty"`
	OffsetRefineSteps  *int     `json:"offset_refine_steps,omitempty"`

	// Placement params
	ModelWidth  *float64 `json:"model_width,omitempty"`
	ModelHeight *float64 `json:"model_height,omitempty"`
	ViewWidth   *float64 `json:"view_width,omitempty"`
	ViewHeight  *float64 `json:"view_height,omitempty"`
	Anchors     []string `json:"anchors,omitempty"` // "face" or "hip"
	MinScale    *float64 `json:"min_scale,omitempty"`
	MaxScale    *float64 `json:"max_scale,omitempty"`

	// Debug feed
	Heatmaps *bool `json:"heatmaps,omitempty"`
}

// anchors are the overlay anchors selectable by name
var anchors = map[string]func() overlay.Anchor{
	"face": overlay.FaceAnchor,
	"hip":  overlay.HipAnchor,
}

// Load reads a Config from a JSON file and validates it
func Load(path string) (*Config, error) {

	cleanPath := filepath.Clean(path)

	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)

	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)",
			info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the values that are set
func (c *Config) Validate() error {

	if c.OutputStride != nil && *c.OutputStride <= 0 {
		return fmt.Errorf("output_stride must be positive, got %d", *c.OutputStride)
	}

	if c.ScoreThreshold != nil && (*c.ScoreThreshold < 0 || *c.ScoreThreshold > 1) {
		return fmt.Errorf("score_threshold must be between 0 and 1, got %f", *c.ScoreThreshold)
	}

	if c.NMSRadius != nil && *c.NMSRadius < 0 {
		return fmt.Errorf("nms_radius must not be negative, got %f", *c.NMSRadius)
	}

	if c.LocalMaximumRadius != nil && *c.LocalMaximumRadius < 0 {
		return fmt.Errorf("local_maximum_radius must not be negative, got %d", *c.LocalMaximumRadius)
	}

	if c.OffsetRefineSteps != nil && *c.OffsetRefineSteps < 0 {
		return fmt.Errorf("offset_refine_steps must not be negative, got %d", *c.OffsetRefineSteps)
	}

	for name, v := range map[string]*float64{
		"model_width":  c.ModelWidth,
		"model_height": c.ModelHeight,
		"view_width":   c.ViewWidth,
		"view_height":  c.ViewHeight,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	for _, name := range c.Anchors {
		if _, ok := anchors[name]; !ok {
			return fmt.Errorf("unknown anchor %q", name)
		}
	}

	if c.MinScale != nil && *c.MinScale < 0 {
		return fmt.Errorf("min_scale must not be negative, got %f", *c.MinScale)
	}

	// scale limits are checked as applied, set values over anchor defaults
	for _, a := range c.Pipeline().Anchors {
		if a.MaxScale > 0 && a.MinScale > a.MaxScale {
			return fmt.Errorf("anchor %q min_scale %f exceeds max_scale %f",
				a.Name, a.MinScale, a.MaxScale)
		}
	}

	return nil
}

// Pipeline returns the pipeline configuration with the set fields applied
// over pipeline.DefaultConfig
func (c *Config) Pipeline() pipeline.Config {

	cfg := pipeline.DefaultConfig()

	setInt(&cfg.PoseNet.OutputStride, c.OutputStride)
	setInt(&cfg.PoseNet.MaxPoseDetections, c.MaxPoseDetections)
	setFloat(&cfg.PoseNet.ScoreThreshold, c.ScoreThreshold)
	setFloat(&cfg.PoseNet.NMSRadius, c.NMSRadius)
	setInt(&cfg.PoseNet.LocalMaximumRadius, c.LocalMaximumRadius)
	setInt(&cfg.PoseNet.OffsetRefineSteps, c.OffsetRefineSteps)

	setFloat(&cfg.ModelSize.Width, c.ModelWidth)
	setFloat(&cfg.ModelSize.Height, c.ModelHeight)
	setFloat(&cfg.ViewSize.Width, c.ViewWidth)
	setFloat(&cfg.ViewSize.Height, c.ViewHeight)

	if len(c.Anchors) > 0 {
		cfg.Anchors = cfg.Anchors[:0:0]

		for _, name := range c.Anchors {
			cfg.Anchors = append(cfg.Anchors, anchors[name]())
		}
	}

	for i := range cfg.Anchors {
		setFloat(&cfg.Anchors[i].MinScale, c.MinScale)
		setFloat(&cfg.Anchors[i].MaxScale, c.MaxScale)
	}

	if c.Heatmaps != nil {
		cfg.Heatmaps = *c.Heatmaps
	}

	return cfg
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
