package serialization

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DType is a safetensors element type.
type DType string

// Element types the reader can decode.
const (
	F16  DType = "F16"
	BF16 DType = "BF16"
	F32  DType = "F32"
	F64  DType = "F64"
	I32  DType = "I32"
	I64  DType = "I64"
	U8   DType = "U8"
	Bool DType = "BOOL"
)

// Size returns the element size in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	switch d {
	case U8, Bool:
		return 1
	case F16, BF16:
		return 2
	case F32, I32:
		return 4
	case F64, I64:
		return 8
	}
	return 0
}

// decode converts little-endian elements of type d to float64.
func decode(d DType, data []byte, n int) ([]float64, error) {
	out := make([]float64, n)
	le := binary.LittleEndian
	switch d {
	case F64:
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(data[8*i:]))
		}
	case F32:
		for i := range out {
			out[i] = float64(math.Float32frombits(le.Uint32(data[4*i:])))
		}
	case F16:
		for i := range out {
			out[i] = halfToFloat(le.Uint16(data[2*i:]))
		}
	case BF16:
		for i := range out {
			out[i] = float64(math.Float32frombits(uint32(le.Uint16(data[2*i:])) << 16))
		}
	case I64:
		for i := range out {
			out[i] = float64(int64(le.Uint64(data[8*i:]))) //nolint:gosec // two's complement reinterpretation
		}
	case I32:
		for i := range out {
			out[i] = float64(int32(le.Uint32(data[4*i:]))) //nolint:gosec // two's complement reinterpretation
		}
	case U8, Bool:
		for i := range out {
			out[i] = float64(data[i])
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDType, d)
	}
	return out, nil
}

// encode writes values as little-endian F64 or F32.
func encode(d DType, values []float64) ([]byte, error) {
	le := binary.LittleEndian
	switch d {
	case F64:
		out := make([]byte, 8*len(values))
		for i, v := range values {
			le.PutUint64(out[8*i:], math.Float64bits(v))
		}
		return out, nil
	case F32:
		out := make([]byte, 4*len(values))
		for i, v := range values {
			le.PutUint32(out[4*i:], math.Float32bits(float32(v)))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: cannot write %q", ErrUnsupportedDType, d)
}

// halfToFloat converts an IEEE 754 half-precision value.
func halfToFloat(h uint16) float64 {
	sign := 1.0
	if h&0x8000 != 0 {
		sign = -1
	}
	exp := int(h>>10) & 0x1f
	mant := float64(h & 0x3ff)
	switch exp {
	case 0:
		return sign * math.Ldexp(mant, -24)
	case 0x1f:
		if mant != 0 {
			return math.NaN()
		}
		return math.Inf(int(sign))
	}
	return sign * math.Ldexp(1024+mant, exp-25)
}
