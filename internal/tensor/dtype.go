// Package tensor provides the dense tensors shared by the sampler, the encoding
// operator and the autodiff tape.
//
// Tensors are row-major and own a flat slice of elements. Element-wise
// operations follow NumPy broadcasting rules; shape mismatches in arithmetic
// are programming errors and panic, while constructors that take user data
// return ErrShape.
package tensor

import "errors"

// DType is a constraint for supported element types.
type DType interface {
	float64 | complex128
}

// Real is a real-valued tensor (images, masks, gradients).
type Real = Tensor[float64]

// Complex is a complex-valued tensor (k-space, coil maps, bases).
type Complex = Tensor[complex128]

// ErrShape reports an invalid or incompatible tensor shape.
var ErrShape = errors.New("tensor: invalid shape")

// abs2 returns |v|².
func abs2[T DType](v T) float64 {
	switch x := any(v).(type) {
	case float64:
		return x * x
	case complex128:
		return real(x)*real(x) + imag(x)*imag(x)
	default:
		panic("unsupported type")
	}
}

// fromFloat converts a real scalar to T.
func fromFloat[T DType](v float64) T {
	var out T
	switch p := any(&out).(type) {
	case *float64:
		*p = v
	case *complex128:
		*p = complex(v, 0)
	}
	return out
}
