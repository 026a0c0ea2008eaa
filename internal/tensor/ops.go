package tensor

import "fmt"

// Add performs element-wise addition with broadcasting.
func (t *Tensor[T]) Add(other *Tensor[T]) *Tensor[T] {
	return binary(t, other, func(a, b T) T { return a + b })
}

// Sub performs element-wise subtraction with broadcasting.
func (t *Tensor[T]) Sub(other *Tensor[T]) *Tensor[T] {
	return binary(t, other, func(a, b T) T { return a - b })
}

// Mul performs element-wise multiplication with broadcasting.
func (t *Tensor[T]) Mul(other *Tensor[T]) *Tensor[T] {
	return binary(t, other, func(a, b T) T { return a * b })
}

// Div performs element-wise division with broadcasting.
func (t *Tensor[T]) Div(other *Tensor[T]) *Tensor[T] {
	return binary(t, other, func(a, b T) T { return a / b })
}

// Scale multiplies every element by s.
func (t *Tensor[T]) Scale(s T) *Tensor[T] {
	out := Zeros[T](t.shape)
	for i, v := range t.data {
		out.data[i] = v * s
	}
	return out
}

// AddScalar adds s to every element.
func (t *Tensor[T]) AddScalar(s T) *Tensor[T] {
	out := Zeros[T](t.shape)
	for i, v := range t.data {
		out.data[i] = v + s
	}
	return out
}

// AddScaled returns t + s*other. Shapes must match exactly.
func (t *Tensor[T]) AddScaled(s T, other *Tensor[T]) *Tensor[T] {
	mustMatch("AddScaled", t, other)
	out := Zeros[T](t.shape)
	for i, v := range t.data {
		out.data[i] = v + s*other.data[i]
	}
	return out
}

// Apply returns a new tensor with fn applied to every element.
func (t *Tensor[T]) Apply(fn func(T) T) *Tensor[T] {
	out := Zeros[T](t.shape)
	for i, v := range t.data {
		out.data[i] = fn(v)
	}
	return out
}

// Combine returns fn(t[i], other[i]) for tensors of identical shape.
func Combine[T DType](t, other *Tensor[T], fn func(a, b T) T) *Tensor[T] {
	mustMatch("Combine", t, other)
	out := Zeros[T](t.shape)
	for i := range t.data {
		out.data[i] = fn(t.data[i], other.data[i])
	}
	return out
}

// binary applies fn element-wise with NumPy broadcasting.
func binary[T DType](a, b *Tensor[T], fn func(a, b T) T) *Tensor[T] {
	if a.shape.Equal(b.shape) {
		out := Zeros[T](a.shape)
		for i := range a.data {
			out.data[i] = fn(a.data[i], b.data[i])
		}
		return out
	}

	shape, err := BroadcastShapes(a.shape, b.shape)
	if err != nil {
		panic(err)
	}
	out := Zeros[T](shape)
	aStrides := broadcastStrides(a.shape, shape)
	bStrides := broadcastStrides(b.shape, shape)

	idx := make([]int, len(shape))
	aOff, bOff := 0, 0
	for i := range out.data {
		out.data[i] = fn(a.data[aOff], b.data[bOff])
		// Advance the multi-index like an odometer.
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			aOff += aStrides[d]
			bOff += bStrides[d]
			if idx[d] < shape[d] {
				break
			}
			aOff -= aStrides[d] * shape[d]
			bOff -= bStrides[d] * shape[d]
			idx[d] = 0
		}
	}
	return out
}

// SumTo reduces t by summation to shape, the inverse of broadcasting t from
// shape. Used to route gradients back to broadcast operands.
func (t *Tensor[T]) SumTo(shape Shape) *Tensor[T] {
	if t.shape.Equal(shape) {
		return t.Clone()
	}
	if _, err := BroadcastShapes(shape, t.shape); err != nil {
		panic(err)
	}
	out := Zeros[T](shape)
	outStrides := broadcastStrides(shape, t.shape)
	idx := make([]int, len(t.shape))
	off := 0
	for _, v := range t.data {
		out.data[off] += v
		for d := len(t.shape) - 1; d >= 0; d-- {
			idx[d]++
			off += outStrides[d]
			if idx[d] < t.shape[d] {
				break
			}
			off -= outStrides[d] * t.shape[d]
			idx[d] = 0
		}
	}
	return out
}

func mustMatch[T DType](op string, a, b *Tensor[T]) {
	if !a.shape.Equal(b.shape) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", op, a.shape, b.shape))
	}
}
