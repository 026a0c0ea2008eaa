package autodiff

import (
	"math"

	"github.com/born-ml/mrdiff/internal/autodiff/ops"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// Add returns a + b with broadcasting.
func (t *GradientTape) Add(a, b *tensor.Real) *tensor.Real {
	out := a.Add(b)
	t.Record(ops.NewAddOp(a, b, out))
	return out
}

// Sub returns a - b with broadcasting.
func (t *GradientTape) Sub(a, b *tensor.Real) *tensor.Real {
	out := a.Sub(b)
	t.Record(ops.NewSubOp(a, b, out))
	return out
}

// Mul returns a * b with broadcasting. Both operands receive gradients.
func (t *GradientTape) Mul(a, b *tensor.Real) *tensor.Real {
	out := a.Mul(b)
	t.Record(ops.NewMulOp(a, b, out))
	return out
}

// Scale returns s * x.
func (t *GradientTape) Scale(x *tensor.Real, s float64) *tensor.Real {
	out := x.Scale(s)
	t.Record(ops.NewScaleOp(x, out, s))
	return out
}

// Affine returns x * m + c for constant tensors m and c, either of which may
// be nil. Only x receives a gradient.
func (t *GradientTape) Affine(x, m, c *tensor.Real) *tensor.Real {
	out := x
	if m != nil {
		out = out.Mul(m)
	}
	if c != nil {
		out = out.Add(c)
	}
	if out == x {
		out = x.Clone()
	}
	t.Record(ops.NewAffineOp(x, out, m))
	return out
}

// Tanh returns tanh(x).
func (t *GradientTape) Tanh(x *tensor.Real) *tensor.Real {
	out := x.Apply(math.Tanh)
	t.Record(ops.NewTanhOp(x, out))
	return out
}

// SiLU returns x * sigmoid(x).
func (t *GradientTape) SiLU(x *tensor.Real) *tensor.Real {
	out := x.Apply(func(v float64) float64 { return v * ops.Sigmoid(v) })
	t.Record(ops.NewSiLUOp(x, out))
	return out
}

// ChannelMix applies the 1×1 convolution W·x + b along axis 1 of x.
// W and b are treated as constants.
func (t *GradientTape) ChannelMix(x, w, b *tensor.Real) (*tensor.Real, error) {
	out, err := tensor.MixChannels(x, w, b)
	if err != nil {
		return nil, err
	}
	t.Record(ops.NewChannelMixOp(x, out, w))
	return out, nil
}

// SumSquares returns Σ x² as a tensor of shape [1].
func (t *GradientTape) SumSquares(x *tensor.Real) *tensor.Real {
	out := tensor.Full(tensor.Shape{1}, x.SumSquares())
	t.Record(ops.NewSumSquaresOp(x, out))
	return out
}

// Custom records an operation whose forward value was computed by the caller.
func (t *GradientTape) Custom(name string, inputs []*tensor.Real, output *tensor.Real, backward ops.BackwardFunc) *tensor.Real {
	t.Record(ops.NewCustomOp(name, inputs, output, backward))
	return output
}
