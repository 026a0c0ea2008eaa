package ops

import "github.com/born-ml/mrdiff/internal/tensor"

// BackwardFunc maps an output gradient to one gradient per input.
type BackwardFunc func(outputGrad *tensor.Real) []*tensor.Real

// CustomOp wraps a forward result computed outside the tape together with its
// backward function. It lets operators such as the MRI data-consistency loss
// take part in differentiation without exposing their internals here.
type CustomOp struct {
	name     string
	inputs   []*tensor.Real
	output   *tensor.Real
	backward BackwardFunc
}

// NewCustomOp creates a new CustomOp.
func NewCustomOp(name string, inputs []*tensor.Real, output *tensor.Real, backward BackwardFunc) *CustomOp {
	return &CustomOp{name: name, inputs: inputs, output: output, backward: backward}
}

// Name returns the label given at construction.
func (op *CustomOp) Name() string { return op.name }

// Backward delegates to the supplied function.
func (op *CustomOp) Backward(outputGrad *tensor.Real) []*tensor.Real {
	return op.backward(outputGrad)
}

// Inputs returns the recorded inputs.
func (op *CustomOp) Inputs() []*tensor.Real { return op.inputs }

// Output returns the recorded output.
func (op *CustomOp) Output() *tensor.Real { return op.output }
