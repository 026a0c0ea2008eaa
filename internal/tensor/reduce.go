package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Sum returns the sum of all elements.
func (t *Tensor[T]) Sum() T {
	if d, ok := any(t.data).([]float64); ok {
		return any(floats.Sum(d)).(T)
	}
	var s T
	for _, v := range t.data {
		s += v
	}
	return s
}

// SumSquares returns Σ|t_i|².
func (t *Tensor[T]) SumSquares() float64 {
	if d, ok := any(t.data).([]float64); ok {
		return floats.Dot(d, d)
	}
	s := 0.0
	for _, v := range t.data {
		s += abs2(v)
	}
	return s
}

// Norm returns the Frobenius norm of t.
func (t *Tensor[T]) Norm() float64 {
	if d, ok := any(t.data).([]float64); ok {
		return floats.Norm(d, 2)
	}
	return math.Sqrt(t.SumSquares())
}

// PlaneNorms returns the Frobenius norm of every H×W plane over the last two
// axes, with those axes kept as size 1 (torch.linalg.norm(x, dim=(-1, -2), keepdim=True)).
func (t *Tensor[T]) PlaneNorms() *Real {
	shape := t.shape.Clone()
	shape[len(shape)-1] = 1
	shape[len(shape)-2] = 1
	out := Zeros[float64](shape)
	for p := range out.data {
		plane := t.Plane(p)
		if d, ok := any(plane).([]float64); ok {
			out.data[p] = floats.Norm(d, 2)
			continue
		}
		s := 0.0
		for _, v := range plane {
			s += abs2(v)
		}
		out.data[p] = math.Sqrt(s)
	}
	return out
}

// SumDim sums along dimension dim. With keepDim the reduced axis stays as size 1.
func (t *Tensor[T]) SumDim(dim int, keepDim bool) *Tensor[T] {
	if dim < 0 {
		dim += len(t.shape)
	}
	if dim < 0 || dim >= len(t.shape) {
		panic(fmt.Sprintf("SumDim: dimension %d out of range for %v", dim, t.shape))
	}
	kept := t.shape.Clone()
	kept[dim] = 1
	out := t.SumTo(kept)
	if keepDim {
		return out
	}
	squeezed := append(kept[:dim:dim], kept[dim+1:]...)
	if len(squeezed) == 0 {
		squeezed = Shape{1}
	}
	r, err := out.Reshape(squeezed...)
	if err != nil {
		panic(err)
	}
	return r
}

// Dot returns the real inner product Re⟨a, b⟩ = Σ Re(conj(a_i)·b_i).
func Dot[T DType](a, b *Tensor[T]) float64 {
	mustMatch("Dot", a, b)
	switch ad := any(a.data).(type) {
	case []float64:
		return floats.Dot(ad, any(b.data).([]float64))
	case []complex128:
		bd := any(b.data).([]complex128)
		s := 0.0
		for i, v := range ad {
			s += real(v)*real(bd[i]) + imag(v)*imag(bd[i])
		}
		return s
	}
	panic("unsupported type")
}

// MaxAbsDiff returns max_i |a_i − b_i|, the tolerance check used in tests
// and in determinism assertions.
func MaxAbsDiff[T DType](a, b *Tensor[T]) float64 {
	mustMatch("MaxAbsDiff", a, b)
	m := 0.0
	for i := range a.data {
		m = math.Max(m, math.Sqrt(abs2(a.data[i]-b.data[i])))
	}
	return m
}
