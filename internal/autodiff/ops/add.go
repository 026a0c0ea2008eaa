package ops

import "github.com/born-ml/mrdiff/internal/tensor"

// AddOp represents output = a + b.
type AddOp struct {
	inputs []*tensor.Real
	output *tensor.Real
}

// NewAddOp creates a new AddOp.
func NewAddOp(a, b, output *tensor.Real) *AddOp {
	return &AddOp{inputs: []*tensor.Real{a, b}, output: output}
}

// Backward passes the gradient through to both operands.
func (op *AddOp) Backward(outputGrad *tensor.Real) []*tensor.Real {
	return []*tensor.Real{
		reduceBroadcast(outputGrad, op.inputs[0].Shape()),
		reduceBroadcast(outputGrad, op.inputs[1].Shape()),
	}
}

// Inputs returns [a, b].
func (op *AddOp) Inputs() []*tensor.Real { return op.inputs }

// Output returns a + b.
func (op *AddOp) Output() *tensor.Real { return op.output }

// SubOp represents output = a - b.
type SubOp struct {
	inputs []*tensor.Real
	output *tensor.Real
}

// NewSubOp creates a new SubOp.
func NewSubOp(a, b, output *tensor.Real) *SubOp {
	return &SubOp{inputs: []*tensor.Real{a, b}, output: output}
}

// Backward returns [grad, -grad].
func (op *SubOp) Backward(outputGrad *tensor.Real) []*tensor.Real {
	return []*tensor.Real{
		reduceBroadcast(outputGrad, op.inputs[0].Shape()),
		reduceBroadcast(outputGrad.Scale(-1), op.inputs[1].Shape()),
	}
}

// Inputs returns [a, b].
func (op *SubOp) Inputs() []*tensor.Real { return op.inputs }

// Output returns a - b.
func (op *SubOp) Output() *tensor.Real { return op.output }
