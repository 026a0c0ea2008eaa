// Package ops defines the differentiable operations recorded on a GradientTape.
//
// Each operation keeps pointers to its inputs and output from the forward pass
// and maps an output gradient to one gradient per input. Operands that are
// broadcast in the forward pass get their gradient summed back to their own
// shape.
//
// Supported operations:
//   - AddOp, SubOp, MulOp: element-wise with broadcasting
//   - ScaleOp, AffineOp: multiplication by constants and addition of constants
//   - TanhOp, SiLUOp: activations
//   - ChannelMixOp: 1×1 convolution with constant weights
//   - SumSquaresOp: squared Frobenius norm, producing a scalar
//   - CustomOp: an operation with a caller-supplied backward function
package ops

import "github.com/born-ml/mrdiff/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// The returned slice is aligned with Inputs; nil entries mean no gradient.
	Backward(outputGrad *tensor.Real) []*tensor.Real

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.Real

	// Output returns the output tensor produced by this operation.
	Output() *tensor.Real
}

// reduceBroadcast sums grad back to shape when the operand was broadcast.
func reduceBroadcast(grad *tensor.Real, shape tensor.Shape) *tensor.Real {
	if grad.Shape().Equal(shape) {
		return grad
	}
	return grad.SumTo(shape)
}
