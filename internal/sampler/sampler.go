// Package sampler implements reverse-diffusion samplers that draw images
// from a denoiser's prior while pulling every iterate toward agreement with
// an MRI measurement.
//
// Two variants are provided. EDM is the fixed second-order recipe with a
// normalized data-consistency direction added to each Euler step. Ablation
// exposes the solver, discretization, noise schedule and signal scaling as
// options and applies a likelihood correction in the style of diffusion
// posterior sampling, differentiating the data residual through the
// denoiser.
//
// Samplers are built once and may be run many times. A run owns its state
// and never shares it: observers receive copies.
package sampler

import (
	"context"
	"errors"
	"fmt"

	"github.com/born-ml/mrdiff/internal/denoise"
	"github.com/born-ml/mrdiff/internal/mri"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// ErrDenoiserShape is returned when the denoiser output does not match its input.
var ErrDenoiserShape = errors.New("sampler: denoiser output shape mismatch")

// Sampler turns latents [B, C, H, W] into samples of the same shape.
type Sampler interface {
	Sample(ctx context.Context, latents, labels *tensor.Real, noise NoiseSource) (*tensor.Real, error)
}

// NoiseSource supplies the Gaussian perturbations of stochastic steps.
// random.StackedGenerator implements it.
type NoiseSource interface {
	RandnLike(x *tensor.Real) (*tensor.Real, error)
}

// Option configures a sampler.
type Option func(*options)

type options struct {
	op       *mri.Operator
	observer Observer
}

// WithOperator attaches the encoding operator of a measurement.
func WithOperator(op *mri.Operator) Option {
	return func(o *options) {
		o.op = op
	}
}

// WithObserver attaches a diagnostics observer.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

func buildOptions(opts []Option) options {
	o := options{observer: Nop{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// query calls the denoiser and checks that the output matches x.
func query(net denoise.Denoiser, x *tensor.Real, sigma float64, labels *tensor.Real) (*tensor.Real, error) {
	out, err := net.Denoise(x, sigma, labels)
	if err != nil {
		return nil, fmt.Errorf("denoise at sigma %g: %w", sigma, err)
	}
	if !out.Shape().Equal(x.Shape()) {
		return nil, errDenoiserShape(out, x)
	}
	return out, nil
}

func errDenoiserShape(out, in *tensor.Real) error {
	return fmt.Errorf("%w: got %v for input %v", ErrDenoiserShape, out.Shape(), in.Shape())
}

// checkGroups verifies that the batch splits into reconstructions of
// op.Rank() coefficient images each.
func checkGroups(x *tensor.Real, op *mri.Operator) error {
	if op == nil {
		return nil
	}
	if x.Dim(0)%op.Rank() != 0 {
		return fmt.Errorf("%w: batch of %d is not a multiple of operator rank %d", tensor.ErrShape, x.Dim(0), op.Rank())
	}
	if c := x.Dim(1); c != 1 && c != 2 {
		return fmt.Errorf("%w: measurement consistency needs 1 or 2 channels, got %d", tensor.ErrShape, c)
	}
	return nil
}

// forGroups calls fn for every run of op.Rank() consecutive batch elements.
func forGroups(batch int, op *mri.Operator, fn func(start, end int) error) error {
	k := op.Rank()
	for start := 0; start < batch; start += k {
		if err := fn(start, start+k); err != nil {
			return err
		}
	}
	return nil
}

// matchPlaneNorms rescales every H×W plane of x to the norm of the
// corresponding plane of ref. Norms below floor are raised to floor.
func matchPlaneNorms(x, ref *tensor.Real, floor float64) *tensor.Real {
	den := x.PlaneNorms().Apply(func(v float64) float64 { return max(v, floor) })
	return x.Mul(ref.PlaneNorms()).Div(den)
}

// finish applies the measurement post-processing to every reconstruction
// group: projection through the fully sampled model followed by plane-norm
// matching against the reference image.
func finish(x *tensor.Real, op *mri.Operator, floor float64) (*tensor.Real, error) {
	ref, err := op.ReferenceImage(x.Dim(1))
	if err != nil {
		return nil, err
	}
	out := tensor.ZerosLike(x)
	err = forGroups(x.Dim(0), op, func(start, end int) error {
		p, err := op.Project(x.Slice(start, end))
		if err != nil {
			return err
		}
		out.Slice(start, end).CopyFrom(matchPlaneNorms(p, ref, floor))
		return nil
	})
	return out, err
}
