package ops

import "github.com/born-ml/mrdiff/internal/tensor"

// ChannelMixOp represents a 1×1 convolution out = W·x + b over the channel
// axis of x [B, I, ...]. The weights are constants: only x receives a gradient.
type ChannelMixOp struct {
	input   *tensor.Real
	output  *tensor.Real
	weightT *tensor.Real // [I, O]
}

// NewChannelMixOp creates a new ChannelMixOp for weight w of shape [O, I].
func NewChannelMixOp(input, output, w *tensor.Real) *ChannelMixOp {
	return &ChannelMixOp{input: input, output: output, weightT: tensor.Transpose2D(w)}
}

// Backward returns Wᵀ·grad.
func (op *ChannelMixOp) Backward(outputGrad *tensor.Real) []*tensor.Real {
	g, err := tensor.MixChannels(outputGrad, op.weightT, nil)
	if err != nil {
		panic(err)
	}
	return []*tensor.Real{g}
}

// Inputs returns [x].
func (op *ChannelMixOp) Inputs() []*tensor.Real { return []*tensor.Real{op.input} }

// Output returns W·x + b.
func (op *ChannelMixOp) Output() *tensor.Real { return op.output }
