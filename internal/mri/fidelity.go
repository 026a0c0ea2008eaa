package mri

import (
	"github.com/born-ml/mrdiff/internal/autodiff"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// DataGradient returns ∇ₓ ½‖y − A x‖² = −Aᴴ(y − A x) in the channel layout of
// the image batch x [K, C, H, W], together with ‖y − A x‖².
func DataGradient(x *tensor.Real, op *Operator) (*tensor.Real, float64, error) {
	c, err := ImageToComplex(x)
	if err != nil {
		return nil, 0, err
	}
	r, err := op.Residual(c)
	if err != nil {
		return nil, 0, err
	}
	back, err := op.Adjoint(r)
	if err != nil {
		return nil, 0, err
	}
	g, err := ComplexToImage(back, x.Dim(1))
	if err != nil {
		return nil, 0, err
	}
	return g.Scale(-1), r.SumSquares(), nil
}

// Fidelity records the squared residual ‖y − A complex(d)‖² of an image batch
// d [K, C, H, W] on tape and returns it as a tensor of shape [1].
//
// The backward pass is −2·Aᴴ(y − A d) in the channel layout of d.
func Fidelity(tape *autodiff.GradientTape, d *tensor.Real, op *Operator) (*tensor.Real, error) {
	c, err := ImageToComplex(d)
	if err != nil {
		return nil, err
	}
	r, err := op.Residual(c)
	if err != nil {
		return nil, err
	}
	out := tensor.Full(tensor.Shape{1}, r.SumSquares())

	channels := d.Dim(1)
	backward := func(outputGrad *tensor.Real) []*tensor.Real {
		back, err := op.Adjoint(r)
		if err != nil {
			panic(err)
		}
		g, err := ComplexToImage(back, channels)
		if err != nil {
			panic(err)
		}
		return []*tensor.Real{g.Scale(-2 * outputGrad.Data()[0])}
	}
	return tape.Custom("mri.fidelity", []*tensor.Real{d}, out, backward), nil
}
