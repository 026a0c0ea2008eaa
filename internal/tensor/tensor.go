package tensor

import "fmt"

// Tensor is a dense row-major array of T.
//
// Example:
//
//	x := tensor.Zeros[float64](tensor.Shape{2, 2, 64, 64})
//	y := x.Scale(0.5).Add(x)
type Tensor[T DType] struct {
	shape   Shape
	strides []int
	data    []T
}

// Zeros returns a zero-filled tensor.
func Zeros[T DType](shape Shape) *Tensor[T] {
	shape = shape.Clone()
	return &Tensor[T]{
		shape:   shape,
		strides: shape.ComputeStrides(),
		data:    make([]T, shape.NumElements()),
	}
}

// ZerosLike returns a zero-filled tensor with the shape of t.
func ZerosLike[T DType](t *Tensor[T]) *Tensor[T] {
	return Zeros[T](t.shape)
}

// Full returns a tensor filled with value.
func Full[T DType](shape Shape, value T) *Tensor[T] {
	t := Zeros[T](shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Ones returns a tensor filled with ones.
func Ones[T DType](shape Shape) *Tensor[T] {
	return Full(shape, fromFloat[T](1))
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice[T DType](data []T, shape Shape) (*Tensor[T], error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, but got %d",
			ErrShape, shape, shape.NumElements(), len(data))
	}
	t := Zeros[T](shape)
	copy(t.data, data)
	return t, nil
}

// Shape returns the tensor's shape. The returned slice must not be modified.
func (t *Tensor[T]) Shape() Shape {
	return t.shape
}

// Dims returns the number of dimensions.
func (t *Tensor[T]) Dims() int {
	return len(t.shape)
}

// Dim returns the size of dimension i. Negative indices count from the end.
func (t *Tensor[T]) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// NumElements returns the total number of elements.
func (t *Tensor[T]) NumElements() int {
	return len(t.data)
}

// Data returns the underlying elements (zero-copy).
//
// WARNING: Modifications to the returned slice will modify the tensor.
func (t *Tensor[T]) Data() []T {
	return t.data
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor[T]) At(indices ...int) T {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor[T]) Set(value T, indices ...int) {
	t.data[t.offset(indices)] = value
}

func (t *Tensor[T]) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	off := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		off += idx * t.strides[i]
	}
	return off
}

// Clone creates a deep copy of the tensor.
func (t *Tensor[T]) Clone() *Tensor[T] {
	out := Zeros[T](t.shape)
	copy(out.data, t.data)
	return out
}

// CopyFrom overwrites t with the elements of src. Shapes must match.
func (t *Tensor[T]) CopyFrom(src *Tensor[T]) {
	if !t.shape.Equal(src.shape) {
		panic(fmt.Sprintf("CopyFrom: shape %v does not match %v", src.shape, t.shape))
	}
	copy(t.data, src.data)
}

// Reshape returns a tensor sharing t's data with a different shape.
func (t *Tensor[T]) Reshape(shape ...int) (*Tensor[T], error) {
	s := Shape(shape)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.NumElements() != len(t.data) {
		return nil, fmt.Errorf("%w: cannot reshape %v into %v", ErrShape, t.shape, s)
	}
	return &Tensor[T]{shape: s.Clone(), strides: s.ComputeStrides(), data: t.data}, nil
}

// Index returns a view of the i-th slice along the leading axis.
//
// The view shares memory with t: for x of shape [B, C, H, W], x.Index(b)
// has shape [C, H, W].
func (t *Tensor[T]) Index(i int) *Tensor[T] {
	if len(t.shape) == 0 {
		panic("Index on a scalar tensor")
	}
	if i < 0 || i >= t.shape[0] {
		panic(fmt.Sprintf("index %d out of bounds for leading dimension %d", i, t.shape[0]))
	}
	n := t.strides[0]
	inner := t.shape[1:].Clone()
	return &Tensor[T]{shape: inner, strides: inner.ComputeStrides(), data: t.data[i*n : (i+1)*n]}
}

// Slice returns a view of rows [start, end) along the leading axis, sharing
// memory with t.
func (t *Tensor[T]) Slice(start, end int) *Tensor[T] {
	if len(t.shape) == 0 || start < 0 || end > t.shape[0] || start >= end {
		panic(fmt.Sprintf("slice [%d, %d) out of bounds for %v", start, end, t.shape))
	}
	n := t.strides[0]
	shape := t.shape.Clone()
	shape[0] = end - start
	return &Tensor[T]{shape: shape, strides: shape.ComputeStrides(), data: t.data[start*n : end*n]}
}

// Plane returns the H×W slice of the last two axes at the given flat index
// over the leading axes. Plane(i) aliases t's memory.
func (t *Tensor[T]) Plane(i int) []T {
	n := t.PlaneSize()
	return t.data[i*n : (i+1)*n]
}

// PlaneSize returns the number of elements of the last two axes.
func (t *Tensor[T]) PlaneSize() int {
	if len(t.shape) < 2 {
		panic(fmt.Sprintf("PlaneSize needs at least 2 dimensions, got %v", t.shape))
	}
	return t.shape[len(t.shape)-2] * t.shape[len(t.shape)-1]
}

// NumPlanes returns the number of H×W planes in t.
func (t *Tensor[T]) NumPlanes() int {
	return len(t.data) / t.PlaneSize()
}

// String returns a human-readable representation of the tensor.
func (t *Tensor[T]) String() string {
	var dummy T
	return fmt.Sprintf("Tensor[%T]%v", dummy, []int(t.shape))
}
