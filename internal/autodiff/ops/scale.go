package ops

import "github.com/born-ml/mrdiff/internal/tensor"

// ScaleOp represents output = s * x for a constant scalar s.
type ScaleOp struct {
	input  *tensor.Real
	output *tensor.Real
	scale  float64
}

// NewScaleOp creates a new ScaleOp.
func NewScaleOp(input, output *tensor.Real, s float64) *ScaleOp {
	return &ScaleOp{input: input, output: output, scale: s}
}

// Backward returns s * outputGrad.
func (op *ScaleOp) Backward(outputGrad *tensor.Real) []*tensor.Real {
	return []*tensor.Real{outputGrad.Scale(op.scale)}
}

// Inputs returns [x].
func (op *ScaleOp) Inputs() []*tensor.Real { return []*tensor.Real{op.input} }

// Output returns s * x.
func (op *ScaleOp) Output() *tensor.Real { return op.output }

// AffineOp represents output = x * m + c where m and c are constant tensors
// that may broadcast against x. Either constant may be nil.
type AffineOp struct {
	input  *tensor.Real
	output *tensor.Real
	mul    *tensor.Real
}

// NewAffineOp creates a new AffineOp. Only the multiplier matters for the
// backward pass, so the additive constant is not retained.
func NewAffineOp(input, output, mul *tensor.Real) *AffineOp {
	return &AffineOp{input: input, output: output, mul: mul}
}

// Backward returns (outputGrad * m) reduced to the shape of x.
func (op *AffineOp) Backward(outputGrad *tensor.Real) []*tensor.Real {
	g := outputGrad
	if op.mul != nil {
		g = g.Mul(op.mul)
	}
	return []*tensor.Real{reduceBroadcast(g, op.input.Shape())}
}

// Inputs returns [x].
func (op *AffineOp) Inputs() []*tensor.Real { return []*tensor.Real{op.input} }

// Output returns x * m + c.
func (op *AffineOp) Output() *tensor.Real { return op.output }
