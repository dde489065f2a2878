package posenet

import (
	"sync"

	"github.com/x448/float16"
)

var (
	// f16LookupTable maps every half precision bit pattern to its float32
	// value, built on first use
	f16LookupTable [65536]float32
	f16Once        sync.Once
)

// NewTensorFromInt8 dequantizes an affine asymmetric int8 buffer using the
// zero point and scale reported by the runtime for that output
func NewTensorFromInt8(buf []int8, zp int32, scale float32, channels, height,
	width int, format TensorFormat) (*Tensor, error) {

	if err := checkExtents(len(buf), channels, height, width); err != nil {
		return nil, err
	}

	out := make([]float32, len(buf))

	for i, q := range buf {
		out[i] = deqntAffineToF32(q, zp, scale)
	}

	return NewTensor(out, channels, height, width, format)
}

// NewTensorFromFloat16 converts a buffer of IEEE 754 half precision values
// in their raw bit form
func NewTensorFromFloat16(buf []uint16, channels, height, width int,
	format TensorFormat) (*Tensor, error) {

	if err := checkExtents(len(buf), channels, height, width); err != nil {
		return nil, err
	}

	f16Once.Do(buildF16LookupTable)

	out := make([]float32, len(buf))

	for i, b := range buf {
		out[i] = f16LookupTable[b]
	}

	return NewTensor(out, channels, height, width, format)
}

// deqntAffineToF32 converts a quantized int8 value back to a float32 using
// the provided zero point and scale
func deqntAffineToF32(qnt int8, zp int32, scale float32) float32 {
	return (float32(qnt) - float32(zp)) * scale
}

// buildF16LookupTable precomputes the float16 to float32 conversions
func buildF16LookupTable() {
	for i := range f16LookupTable {
		f16LookupTable[i] = float16.Frombits(uint16(i)).Float32()
	}
}
