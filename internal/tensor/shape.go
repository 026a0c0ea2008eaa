package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("%w: dimension %d is %d (must be > 0)", ErrShape, i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}
	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// BroadcastShapes implements NumPy-style broadcasting rules.
//
// Shapes are aligned from the right; two dimensions are compatible when they
// are equal or one of them is 1. Missing leading dimensions count as 1.
//
//	(3, 1) + (3, 5) → (3, 5)
//	(5,)   + (3, 5) → (3, 5)
//	(3, 4) + (3, 5) → error
func BroadcastShapes(a, b Shape) (Shape, error) {
	n := max(len(a), len(b))
	result := make(Shape, n)
	for i := 0; i < n; i++ {
		aDim, bDim := 1, 1
		if j := len(a) - 1 - i; j >= 0 {
			aDim = a[j]
		}
		if j := len(b) - 1 - i; j >= 0 {
			bDim = b[j]
		}
		switch {
		case aDim == bDim, bDim == 1:
			result[n-1-i] = aDim
		case aDim == 1:
			result[n-1-i] = bDim
		default:
			return nil, fmt.Errorf("%w: cannot broadcast %v and %v (dimension %d: %d vs %d)",
				ErrShape, a, b, n-1-i, aDim, bDim)
		}
	}
	return result, nil
}

// broadcastStrides returns strides that read a tensor of shape s as if it had
// shape target. Broadcast dimensions get stride 0.
func broadcastStrides(s, target Shape) []int {
	strides := s.ComputeStrides()
	out := make([]int, len(target))
	offset := len(target) - len(s)
	for i := range s {
		if s[i] != 1 {
			out[offset+i] = strides[i]
		}
	}
	return out
}
