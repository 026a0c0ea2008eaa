package ops

import "github.com/born-ml/mrdiff/internal/tensor"

// SumSquaresOp represents the scalar y = Σ x_i², stored with shape [1].
type SumSquaresOp struct {
	input  *tensor.Real
	output *tensor.Real
}

// NewSumSquaresOp creates a new SumSquaresOp.
func NewSumSquaresOp(input, output *tensor.Real) *SumSquaresOp {
	return &SumSquaresOp{input: input, output: output}
}

// Backward returns 2·x·grad.
func (op *SumSquaresOp) Backward(outputGrad *tensor.Real) []*tensor.Real {
	return []*tensor.Real{op.input.Scale(2 * outputGrad.Data()[0])}
}

// Inputs returns [x].
func (op *SumSquaresOp) Inputs() []*tensor.Real { return []*tensor.Real{op.input} }

// Output returns Σ x².
func (op *SumSquaresOp) Output() *tensor.Real { return op.output }
