package posenet

import (
	"fmt"
)

// TensorFormat describes the memory layout of a tensor buffer
type TensorFormat int

const (
	// TensorNCHW is channel major, [C, H, W]
	TensorNCHW TensorFormat = iota
	// TensorNHWC is channel last, [H, W, C]
	TensorNHWC
)

// String returns a readable description of the TensorFormat
func (t TensorFormat) String() string {
	switch t {
	case TensorNCHW:
		return "NCHW"
	case TensorNHWC:
		return "NHWC"
	default:
		return "UNKNOW"
	}
}

// Tensor is a read-only view over a model output buffer with three logical
// axes: channel, y and x.  The buffer is owned by the caller and must not be
// mutated while the view is in use.
type Tensor struct {
	buf      []float32
	channels int
	height   int
	width    int
	fmt      TensorFormat
}

// NewTensor returns a view over buf with the given extents and layout
func NewTensor(buf []float32, channels, height, width int,
	format TensorFormat) (*Tensor, error) {

	if err := checkExtents(len(buf), channels, height, width); err != nil {
		return nil, err
	}

	if format != TensorNCHW && format != TensorNHWC {
		return nil, errorf("unsupported tensor format %d", int(format))
	}

	return &Tensor{
		buf:      buf,
		channels: channels,
		height:   height,
		width:    width,
		fmt:      format,
	}, nil
}

// Shape returns the channel, height and width extents
func (t *Tensor) Shape() (channels, height, width int) {
	return t.channels, t.height, t.width
}

// Channels returns the channel extent
func (t *Tensor) Channels() int {
	return t.channels
}

// Height returns the y extent
func (t *Tensor) Height() int {
	return t.height
}

// Width returns the x extent
func (t *Tensor) Width() int {
	return t.width
}

// Format returns the memory layout of the underlying buffer
func (t *Tensor) Format() TensorFormat {
	return t.fmt
}

// At returns the value at (c, y, x).  Reading outside of the tensor extents
// is a programming error and panics with an *IndexError.
func (t *Tensor) At(c, y, x int) float32 {
	v, err := t.Lookup(c, y, x)

	if err != nil {
		panic(err)
	}

	return v
}

// Lookup returns the value at (c, y, x) or an *IndexError if any index is
// out of range
func (t *Tensor) Lookup(c, y, x int) (float32, error) {

	if c < 0 || c >= t.channels || y < 0 || y >= t.height || x < 0 || x >= t.width {
		return 0, &IndexError{
			Channel: c, Y: y, X: x,
			Channels: t.channels, Height: t.height, Width: t.width,
		}
	}

	return t.buf[t.index(c, y, x)], nil
}

// index returns the flat buffer position of (c, y, x)
func (t *Tensor) index(c, y, x int) int {
	if t.fmt == TensorNHWC {
		return (y*t.width+x)*t.channels + c
	}

	return (c*t.height+y)*t.width + x
}

// String returns the tensor attributes formatted as a string
func (t *Tensor) String() string {
	return fmt.Sprintf("dims=[%d, %d, %d], fmt=%s, n_elems=%d",
		t.channels, t.height, t.width, t.fmt.String(), len(t.buf))
}

// checkExtents validates the buffer length against the given extents
func checkExtents(n, channels, height, width int) error {

	if channels <= 0 || height <= 0 || width <= 0 {
		return fmt.Errorf("%w: non positive extents [%d, %d, %d]",
			ErrInvalidTensorShape, channels, height, width)
	}

	if n != channels*height*width {
		return fmt.Errorf("%w: buffer holds %d elements, extents [%d, %d, %d] need %d",
			ErrInvalidTensorShape, n, channels, height, width, channels*height*width)
	}

	return nil
}

// errorf wraps ErrInvalidTensorShape with the formatted message
func errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidTensorShape, fmt.Sprintf(format, args...))
}
