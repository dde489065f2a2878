/*
Example code showing how to decode multi-person poses from PoseNet output
tensors and place face and hip overlays on them.

The output tensors are read from raw dumps, one little endian float32 file in
NCHW layout per output, so the example runs without an inference runtime.
*/
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/swdee/go-posenet"
	"github.com/swdee/go-posenet/config"
	"github.com/swdee/go-posenet/overlay"
	"github.com/swdee/go-posenet/pipeline"
	"github.com/swdee/go-posenet/postprocess"
	"github.com/swdee/go-posenet/preprocess"
	"github.com/swdee/go-posenet/render"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	dumpDir := flag.String("d", "../data/posenet", "Directory of raw float32 output tensor dumps (*.bin)")
	grid := flag.Int("g", 22, "Output grid height and width of the tensor dumps")
	imgFile := flag.String("i", "../data/posenet/frame.jpg", "Image file the tensors were inferred from")
	saveFile := flag.String("o", "../data/posenet-out.jpg", "Output JPG file")
	cfgFile := flag.String("c", "", "Optional JSON pipeline configuration file")
	orient := flag.String("r", "portrait", "Device orientation [portrait|portraitUpsideDown|landscapeLeft|landscapeRight]")
	heatmapDir := flag.String("hm", "", "Optional directory to save part heatmap thumbnails to")
	verbose := flag.Bool("v", false, "Enable debug logging of the pipeline")

	flag.Parse()

	orientation, err := parseOrientation(*orient)

	if err != nil {
		log.Fatal(err)
	}

	cfg := pipeline.DefaultConfig()

	if *cfgFile != "" {
		fileCfg, err := config.Load(*cfgFile)

		if err != nil {
			log.Fatal("Error loading config: ", err)
		}

		cfg = fileCfg.Pipeline()
	}

	cfg.Heatmaps = cfg.Heatmaps || *heatmapDir != ""

	// load image
	img := gocv.IMRead(*imgFile, gocv.IMReadColor)

	if img.Empty() {
		log.Fatal("Error reading image from: ", *imgFile)
	}

	defer img.Close()

	// overlays are placed over the whole image
	cfg.ViewSize = overlay.Size{Width: float64(img.Cols()), Height: float64(img.Rows())}

	outputs, err := readDumps(*dumpDir, *grid)

	if err != nil {
		log.Fatal("Error reading tensor dumps: ", err)
	}

	// maps model input coordinates back onto the image
	resizer := preprocess.NewResizer(img.Cols(), img.Rows(),
		int(cfg.ModelSize.Width), int(cfg.ModelSize.Height), preprocess.ScaleFill)
	defer resizer.Close()

	log.Printf("Mapping %.0fx%.0f model input onto %dx%d frame\n",
		cfg.ModelSize.Width, cfg.ModelSize.Height, resizer.SrcWidth(), resizer.SrcHeight())

	opts := []pipeline.Option{pipeline.WithResizer(resizer)}

	if *verbose {
		opts = append(opts, pipeline.WithLogger(slog.New(slog.NewTextHandler(os.Stderr,
			&slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	pl := pipeline.New(cfg, &replayInferer{outputs: outputs}, func(pipeline.Result) {}, opts...)

	start := time.Now()

	res, err := pl.Process(context.Background(), pipeline.Frame{
		Seq:         1,
		Image:       img,
		Orientation: orientation,
	})

	if err != nil {
		log.Fatal("Error processing frame: ", err)
	}

	endDecode := time.Now()

	for i, p := range res.SourcePoses {
		log.Printf("pose %d: %s\n", i, p)
	}

	// draw poses and placed overlays
	render.PoseKeyPoints(&img, res.SourcePoses, cfg.PoseNet.ScoreThreshold, 2)
	render.PoseLabels(&img, res.SourcePoses, cfg.PoseNet.ScoreThreshold, render.DefaultFont())

	for _, p := range res.Placements {
		if p.Hidden {
			log.Printf("pose %d %s overlay hidden\n", p.Pose, p.Anchor)
			continue
		}

		log.Printf("pose %d %s overlay center=(%.1f,%.1f) rotation=%.3f scale=%.3f visible=%.2f\n",
			p.Pose, p.Anchor, p.Transform.Center.X, p.Transform.Center.Y,
			p.Transform.Rotation, p.Transform.Scale, p.Visible)

		size := anchorSize(cfg.Anchors, p.Anchor)
		render.OverlayQuad(&img, toImage(p.Transform.Quad(size, size), cfg.ViewSize),
			render.AnchorColor(p.Anchor), 2)
	}

	endRendering := time.Now()

	log.Printf("Decoded %d poses: decode=%s, rendering=%s, total time=%s\n",
		len(res.Poses),
		endDecode.Sub(start).String(),
		endRendering.Sub(endDecode).String(),
		endRendering.Sub(start).String(),
	)

	// Save the result
	if ok := gocv.IMWrite(*saveFile, img); !ok {
		log.Fatal("Failed to save the image")
	}

	log.Printf("Saved pose result to %s\n", *saveFile)

	if *heatmapDir != "" {
		err = saveHeatmaps(*heatmapDir, res.Heatmaps)

		if err != nil {
			log.Fatal("Error saving heatmaps: ", err)
		}

		log.Printf("Saved %d heatmaps to %s\n", len(res.Heatmaps), *heatmapDir)
	}

	log.Println("done")
}

// replayInferer returns the same recorded outputs for every frame
type replayInferer struct {
	outputs []posenet.Output
}

func (r *replayInferer) Infer(ctx context.Context, frame pipeline.Frame) ([]posenet.Output, error) {
	return r.outputs, nil
}

// readDumps loads every *.bin file in dir as a grid x grid tensor, the
// channel count is derived from the file size
func readDumps(dir string, grid int) ([]posenet.Output, error) {

	files, err := filepath.Glob(filepath.Join(dir, "*.bin"))

	if err != nil {
		return nil, err
	}

	outputs := make([]posenet.Output, 0, len(files))

	for _, file := range files {

		f, err := os.Open(file)

		if err != nil {
			return nil, err
		}

		info, err := f.Stat()

		if err != nil {
			f.Close()
			return nil, err
		}

		buf := make([]float32, info.Size()/4)
		err = binary.Read(f, binary.LittleEndian, buf)
		f.Close()

		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", file, err)
		}

		tensor, err := posenet.NewTensor(buf, len(buf)/(grid*grid), grid, grid,
			posenet.TensorNCHW)

		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		outputs = append(outputs, posenet.Output{
			Name:   strings.TrimSuffix(filepath.Base(file), ".bin"),
			Tensor: tensor,
		})
	}

	return outputs, nil
}

func parseOrientation(s string) (overlay.Orientation, error) {

	for _, o := range []overlay.Orientation{overlay.Portrait,
		overlay.PortraitUpsideDown, overlay.LandscapeLeft, overlay.LandscapeRight} {
		if o.String() == s {
			return o, nil
		}
	}

	return overlay.Portrait, fmt.Errorf("unknown orientation %q", s)
}

func anchorSize(anchors []overlay.Anchor, name string) float64 {
	for _, a := range anchors {
		if a.Name == name {
			return a.OverlayIntrinsicDimension
		}
	}
	return 0
}

// toImage flips view coordinates, which run bottom up, onto the image
func toImage(quad [4]r2.Vec, view overlay.Size) [4]r2.Vec {
	for i := range quad {
		quad[i].Y = view.Height - quad[i].Y
	}
	return quad
}

// saveHeatmaps writes a grayscale thumbnail per part and a colored nose map
func saveHeatmaps(dir string, maps []postprocess.PartHeatmap) error {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for i, thumb := range render.HeatmapThumbnails(maps, 88) {
		err := writePNG(filepath.Join(dir, maps[i].Part.String()+".png"), thumb)

		if err != nil {
			return err
		}
	}

	if len(maps) == 0 {
		return nil
	}

	colored := gocv.NewMat()
	defer colored.Close()

	err := render.HeatmapMat(maps[0], 264, gocv.ColormapJet, &colored)

	if err != nil {
		return err
	}

	if ok := gocv.IMWrite(filepath.Join(dir, "colored-"+maps[0].Part.String()+".png"), colored); !ok {
		return fmt.Errorf("failed to save colored heatmap")
	}

	return nil
}

func writePNG(path string, img image.Image) error {

	f, err := os.Create(path)

	if err != nil {
		return err
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
