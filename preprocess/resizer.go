package preprocess

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"
)

// ResizeMode selects how a frame is fitted to the model input size
type ResizeMode int

const (
	// ScaleFill stretches the frame to the model input size ignoring aspect
	ScaleFill ResizeMode = iota
	// LetterBox keeps aspect and pads the short side
	LetterBox
)

// Resizer defines the struct used for scaling camera frames to the model
// input size and mapping decoded coordinates back onto the frame
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// destWidth is the width to scale to
	destWidth int
	// destHeight is the height to scale to
	destHeight int
	// mode is the fitting strategy
	mode ResizeMode
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
	// letterbox padding
	xPad int
	yPad int
	// scale factors from source to destination
	scaleX float64
	scaleY float64
	// resize dimensions before padding
	resizeW int
	resizeH int
}

// NewResizer returns a resizer used for scaling an image to the model input
// tensor size
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int,
	mode ResizeMode) *Resizer {

	r := &Resizer{
		srcWidth:   srcWidth,
		srcHeight:  srcHeight,
		destWidth:  destWidth,
		destHeight: destHeight,
		mode:       mode,
		tempMat:    gocv.NewMat(),
	}

	// precalculate scaling dimensions
	r.preCalc()

	return r
}

// Close frees memory allocated during resize process
func (r *Resizer) Close() error {
	return r.tempMat.Close()
}

// preCalc the scaling factors for source and destination Mats
func (r *Resizer) preCalc() {

	r.resizeW = r.destWidth
	r.resizeH = r.destHeight
	r.scaleX = float64(r.destWidth) / float64(r.srcWidth)
	r.scaleY = float64(r.destHeight) / float64(r.srcHeight)

	if r.mode == ScaleFill {
		return
	}

	// letterbox uses the smaller of the two scales on both axes
	if r.scaleX < r.scaleY {
		r.scaleY = r.scaleX
		r.resizeH = int(float64(r.srcHeight) * r.scaleY)
	} else {
		r.scaleX = r.scaleY
		r.resizeW = int(float64(r.srcWidth) * r.scaleX)
	}

	r.yPad = (r.destHeight - r.resizeH) / 2
	r.xPad = (r.destWidth - r.resizeW) / 2
}

// Resize scales src into dest at the model input size.  Color is used for
// letterbox padding and ignored in ScaleFill mode.
func (r *Resizer) Resize(src gocv.Mat, dest *gocv.Mat, color color.RGBA) {

	if r.mode == ScaleFill {
		gocv.Resize(src, dest, image.Pt(r.destWidth, r.destHeight),
			0, 0, gocv.InterpolationLinear)
		return
	}

	gocv.Resize(src, &r.tempMat, image.Pt(r.resizeW, r.resizeH),
		0, 0, gocv.InterpolationArea)

	gocv.CopyMakeBorder(r.tempMat, dest, r.yPad, r.destHeight-r.resizeH-r.yPad,
		r.xPad, r.destWidth-r.resizeW-r.xPad, gocv.BorderConstant, color)
}

// ToSource maps a model input coordinate back onto the source frame
func (r *Resizer) ToSource(p r2.Vec) r2.Vec {
	return r2.Vec{
		X: (p.X - float64(r.xPad)) / r.scaleX,
		Y: (p.Y - float64(r.yPad)) / r.scaleY,
	}
}

// ScaleX returns the horizontal scale factor from source to model input
func (r *Resizer) ScaleX() float64 {
	return r.scaleX
}

// ScaleY returns the vertical scale factor from source to model input
func (r *Resizer) ScaleY() float64 {
	return r.scaleY
}

// XPad returns the x padding used in letterbox resize
func (r *Resizer) XPad() int {
	return r.xPad
}

// YPad returns the y padding used in letterbox resize
func (r *Resizer) YPad() int {
	return r.yPad
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}
