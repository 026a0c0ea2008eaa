package sampler

import (
	"math"

	"github.com/born-ml/mrdiff/internal/autodiff"
	"github.com/born-ml/mrdiff/internal/mri"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// likelihoodGradient evaluates D(x̂/s; σ) and the gradient of the data
// residual ‖y − A D‖² with respect to the noisy state x̂, normalized by the
// residual norm of its reconstruction group.
//
// Every group of op.Rank() batch elements is traced on its own tape, which
// is dropped before returning, so no graph outlives the step.
func (a *Ablation) likelihoodGradient(xHat *tensor.Real, sigma, scale float64, labels *tensor.Real) (denoised, grad *tensor.Real, sse float64, err error) {
	op := a.opts.op
	denoised = tensor.ZerosLike(xHat)
	grad = tensor.ZerosLike(xHat)

	err = forGroups(xHat.Dim(0), op, func(start, end int) error {
		x := xHat.Slice(start, end).Clone()
		var lab *tensor.Real
		if labels != nil {
			lab = labels.Slice(start, end)
		}

		tape := autodiff.NewGradientTape()
		tape.StartRecording()
		d, err := a.diff.Trace(tape, tape.Scale(x, 1/scale), sigma, lab)
		if err != nil {
			return err
		}
		if !d.Shape().Equal(x.Shape()) {
			return errDenoiserShape(d, x)
		}
		loss, err := mri.Fidelity(tape, d, op)
		if err != nil {
			return err
		}
		g, err := tape.Gradient(loss, x)
		if err != nil {
			return err
		}

		groupSSE := loss.Data()[0]
		sse += groupSSE
		denoised.Slice(start, end).CopyFrom(d)
		grad.Slice(start, end).CopyFrom(g.Scale(1 / max(math.Sqrt(groupSSE), a.cfg.ResidualFloor)))
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return denoised, grad, sse, nil
}
