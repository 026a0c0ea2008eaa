package mri

import (
	"fmt"
	"math/cmplx"

	"github.com/born-ml/mrdiff/internal/fft"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// Operator is the encoding operator A = M·F·S·B of a measurement restricted
// to its first K basis components: basis expansion B, coil sensitivities S,
// centered orthonormal Fourier transform F and sampling mask M.
//
// Forward and Adjoint share the FFT plan and its centering convention, so
// ⟨A x, y⟩ = ⟨x, Aᴴ y⟩ holds up to rounding.
//
// An Operator is not safe for concurrent use.
type Operator struct {
	m        *Measurement
	rank     int
	mask     *tensor.Complex // [T|1, 1, H, W]
	sensConj *tensor.Complex // [1, C, H, W]
	plan     *fft.Plan
}

// NewOperator creates the operator for m over the first rank basis
// components. Without a basis rank must equal T; rank 0 selects the maximum.
func NewOperator(m *Measurement, rank int) (*Operator, error) {
	if rank == 0 {
		rank = m.MaxRank()
	}
	if m.Basis == nil && rank != m.Frames() {
		return nil, fmt.Errorf("%w: rank %d without a basis requires %d frames", tensor.ErrShape, rank, m.Frames())
	}
	if rank < 1 || rank > m.MaxRank() {
		return nil, fmt.Errorf("%w: rank %d outside [1, %d]", tensor.ErrShape, rank, m.MaxRank())
	}
	h, w := m.Size()
	return &Operator{
		m:        m,
		rank:     rank,
		mask:     tensor.Promote(m.Mask),
		sensConj: tensor.Conj(m.Sens),
		plan:     fft.NewPlan(h, w),
	}, nil
}

// Rank returns K, the number of coefficient images.
func (op *Operator) Rank() int { return op.rank }

// Measurement returns the acquisition the operator encodes.
func (op *Operator) Measurement() *Measurement { return op.m }

// ImageShape returns the coefficient shape [K, H, W].
func (op *Operator) ImageShape() tensor.Shape {
	h, w := op.m.Size()
	return tensor.Shape{op.rank, h, w}
}

// WithMask returns an operator over the same measurement with a different mask.
func (op *Operator) WithMask(mask *tensor.Real) (*Operator, error) {
	m, err := NewMeasurement(op.m.KSpace, mask, op.m.Sens, op.m.Basis)
	if err != nil {
		return nil, err
	}
	m.Reference = op.m.Reference
	return NewOperator(m, op.rank)
}

// FullySampled returns the operator with an all-ones mask.
func (op *Operator) FullySampled() *Operator {
	h, w := op.m.Size()
	full, err := op.WithMask(tensor.Ones[float64](tensor.Shape{1, 1, h, w}))
	if err != nil {
		panic(err)
	}
	return full
}

// Forward maps coefficients [K, H, W] to k-space [T, C, H, W].
func (op *Operator) Forward(c *tensor.Complex) (*tensor.Complex, error) {
	if !c.Shape().Equal(op.ImageShape()) {
		return nil, fmt.Errorf("%w: forward expects %v, got %v", tensor.ErrShape, op.ImageShape(), c.Shape())
	}
	frames := op.expand(c)
	h, w := op.m.Size()
	frames, err := frames.Reshape(op.m.Frames(), 1, h, w)
	if err != nil {
		return nil, err
	}
	coils := frames.Mul(op.m.Sens)
	return op.plan.ForwardTensor(coils).Mul(op.mask), nil
}

// Adjoint maps k-space [T, C, H, W] to coefficients [K, H, W].
func (op *Operator) Adjoint(y *tensor.Complex) (*tensor.Complex, error) {
	if !y.Shape().Equal(op.m.KSpace.Shape()) {
		return nil, fmt.Errorf("%w: adjoint expects %v, got %v", tensor.ErrShape, op.m.KSpace.Shape(), y.Shape())
	}
	coils := op.plan.InverseTensor(y.Mul(op.mask))
	frames := coils.Mul(op.sensConj).SumDim(1, false)
	return op.project(frames), nil
}

// AdjointCoils combines all frames of y into a single image [H, W]: frames
// are summed, weighted by the frame-summed mask, inverse transformed and
// coil combined with the conjugate sensitivities.
func (op *Operator) AdjointCoils(y *tensor.Complex) (*tensor.Complex, error) {
	if !y.Shape().Equal(op.m.KSpace.Shape()) {
		return nil, fmt.Errorf("%w: adjoint expects %v, got %v", tensor.ErrShape, op.m.KSpace.Shape(), y.Shape())
	}
	summed := y.SumDim(0, false)
	mask := op.mask.SumDim(0, false)
	coils := op.plan.InverseTensor(summed.Mul(mask))
	return coils.Mul(op.sensConj.Index(0)).SumDim(0, false), nil
}

// ZeroFilled returns Aᴴ y for the measured k-space.
func (op *Operator) ZeroFilled() *tensor.Complex {
	x, err := op.Adjoint(op.m.KSpace)
	if err != nil {
		panic(err)
	}
	return x
}

// Residual returns y − A c.
func (op *Operator) Residual(c *tensor.Complex) (*tensor.Complex, error) {
	ac, err := op.Forward(c)
	if err != nil {
		return nil, err
	}
	return op.m.KSpace.Sub(ac), nil
}

// expand returns the frame series Σ_k B[t, k]·c_k as [T, H, W].
func (op *Operator) expand(c *tensor.Complex) *tensor.Complex {
	if op.m.Basis == nil {
		return c
	}
	h, w := op.m.Size()
	out := tensor.Zeros[complex128](tensor.Shape{op.m.Frames(), h, w})
	for t := 0; t < op.m.Frames(); t++ {
		dst := out.Index(t).Data()
		for k := 0; k < op.rank; k++ {
			b := op.m.Basis.At(t, k)
			for i, v := range c.Index(k).Data() {
				dst[i] += b * v
			}
		}
	}
	return out
}

// project returns Σ_t conj(B[t, k])·frames_t as [K, H, W].
func (op *Operator) project(frames *tensor.Complex) *tensor.Complex {
	if op.m.Basis == nil {
		return frames
	}
	out := tensor.Zeros[complex128](op.ImageShape())
	for k := 0; k < op.rank; k++ {
		dst := out.Index(k).Data()
		for t := 0; t < op.m.Frames(); t++ {
			b := cmplx.Conj(op.m.Basis.At(t, k))
			for i, v := range frames.Index(t).Data() {
				dst[i] += b * v
			}
		}
	}
	return out
}
