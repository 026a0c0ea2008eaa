package ops

import "github.com/born-ml/mrdiff/internal/tensor"

// MulOp represents output = a * b element-wise.
//
// Backward pass:
//   - grad_a = outputGrad * b
//   - grad_b = outputGrad * a
type MulOp struct {
	inputs []*tensor.Real
	output *tensor.Real
}

// NewMulOp creates a new MulOp.
func NewMulOp(a, b, output *tensor.Real) *MulOp {
	return &MulOp{inputs: []*tensor.Real{a, b}, output: output}
}

// Backward computes input gradients for multiplication.
func (op *MulOp) Backward(outputGrad *tensor.Real) []*tensor.Real {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.Real{
		reduceBroadcast(outputGrad.Mul(b), a.Shape()),
		reduceBroadcast(outputGrad.Mul(a), b.Shape()),
	}
}

// Inputs returns [a, b].
func (op *MulOp) Inputs() []*tensor.Real { return op.inputs }

// Output returns a * b.
func (op *MulOp) Output() *tensor.Real { return op.output }
