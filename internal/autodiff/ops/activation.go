package ops

import (
	"math"

	"github.com/born-ml/mrdiff/internal/tensor"
)

// TanhOp represents y = tanh(x).
type TanhOp struct {
	input  *tensor.Real
	output *tensor.Real
}

// NewTanhOp creates a new tanh operation.
func NewTanhOp(input, output *tensor.Real) *TanhOp {
	return &TanhOp{input: input, output: output}
}

// Backward uses the stored output: grad_input = grad_output * (1 - y²).
func (op *TanhOp) Backward(outputGrad *tensor.Real) []*tensor.Real {
	return []*tensor.Real{tensor.Combine(outputGrad, op.output, func(g, y float64) float64 {
		return g * (1 - y*y)
	})}
}

// Inputs returns [x].
func (op *TanhOp) Inputs() []*tensor.Real { return []*tensor.Real{op.input} }

// Output returns tanh(x).
func (op *TanhOp) Output() *tensor.Real { return op.output }

// SiLUOp represents y = x * sigmoid(x).
type SiLUOp struct {
	input  *tensor.Real
	output *tensor.Real
}

// NewSiLUOp creates a new SiLU operation.
func NewSiLUOp(input, output *tensor.Real) *SiLUOp {
	return &SiLUOp{input: input, output: output}
}

// Backward computes the gradient for SiLU.
//
//	dy/dx = sigmoid(x) * (1 + x * (1 - sigmoid(x)))
func (op *SiLUOp) Backward(outputGrad *tensor.Real) []*tensor.Real {
	return []*tensor.Real{tensor.Combine(outputGrad, op.input, func(g, x float64) float64 {
		sig := Sigmoid(x)
		return g * sig * (1 + x*(1-sig))
	})}
}

// Inputs returns [x].
func (op *SiLUOp) Inputs() []*tensor.Real { return []*tensor.Real{op.input} }

// Output returns x * sigmoid(x).
func (op *SiLUOp) Output() *tensor.Real { return op.output }

// Sigmoid returns 1 / (1 + e^-x).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
