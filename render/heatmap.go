package render

import (
	"fmt"
	"image"

	"github.com/swdee/go-posenet/postprocess"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// GrayscaleMap is used to not apply coloring to heatmap thumbnails, but to
// leave them as grayscale
const GrayscaleMap = gocv.ColormapTypes(9999)

// HeatmapThumbnails scales each part heatmap up to a size x size grayscale
// thumbnail.  Nearest neighbour scaling keeps the grid cells visible.
func HeatmapThumbnails(maps []postprocess.PartHeatmap, size int) []*image.Gray {

	thumbs := make([]*image.Gray, len(maps))

	for i, m := range maps {
		dst := image.NewGray(image.Rect(0, 0, size, size))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), m.Image, m.Image.Bounds(),
			draw.Src, nil)
		thumbs[i] = dst
	}

	return thumbs
}

// HeatmapMat renders a part heatmap into dst at size x size, applying the
// colormap unless it is GrayscaleMap
func HeatmapMat(m postprocess.PartHeatmap, size int,
	colormap gocv.ColormapTypes, dst *gocv.Mat) error {

	b := m.Image.Bounds()

	grid, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8U, m.Image.Pix)

	if err != nil {
		return fmt.Errorf("failed to create heatmap mat: %w", err)
	}

	defer grid.Close()

	scaled := gocv.NewMat()
	defer scaled.Close()

	gocv.Resize(grid, &scaled, image.Pt(size, size), 0, 0, gocv.InterpolationNearestNeighbor)

	if colormap == GrayscaleMap {
		// no coloring
		scaled.CopyTo(dst)
		return nil
	}

	gocv.ApplyColorMap(scaled, dst, colormap)

	return nil
}
