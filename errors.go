package posenet

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTensorShape is returned when a tensor's channel, row or column
	// extent does not match what the decoder expects.  The frame the tensor
	// belongs to should be skipped
	ErrInvalidTensorShape = errors.New("invalid tensor shape")
	// ErrIndexOutOfRange is a programming error raised when reading a tensor
	// outside of its extents
	ErrIndexOutOfRange = errors.New("tensor index out of range")
)

// IndexError describes an out of range tensor read
type IndexError struct {
	// Channel, Y and X are the requested indices
	Channel, Y, X int
	// Channels, Height and Width are the tensor extents
	Channels, Height, Width int
}

// Error implements the error interface
func (e *IndexError) Error() string {
	return fmt.Sprintf("%v: (c=%d, y=%d, x=%d) outside shape [%d, %d, %d]",
		ErrIndexOutOfRange, e.Channel, e.Y, e.X, e.Channels, e.Height, e.Width)
}

// Unwrap allows errors.Is(err, ErrIndexOutOfRange)
func (e *IndexError) Unwrap() error {
	return ErrIndexOutOfRange
}
