// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package sampler provides the public API of the measurement-guided
// diffusion samplers.
//
// This package wraps the internal sampler, denoiser and MRI operator
// implementations. Types are aliases, so values move freely between this
// package and the command-line tool.
//
// Example usage:
//
//	m, err := loader.LoadMeasurement("scan.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	op, err := sampler.NewOperator(m, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	net, _ := sampler.NewGaussian(2, 0.5)
//	s, err := sampler.NewEDM(net, sampler.DefaultEDMConfig(), sampler.WithOperator(op))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	noise := sampler.NewNoise([]int64{0})
//	latents, _ := noise.Randn(sampler.Shape{1, 2, 64, 64})
//	img, err := s.Sample(ctx, latents, nil, noise)
package sampler

import (
	"github.com/born-ml/mrdiff/internal/denoise"
	"github.com/born-ml/mrdiff/internal/mri"
	"github.com/born-ml/mrdiff/internal/random"
	"github.com/born-ml/mrdiff/internal/sampler"
	"github.com/born-ml/mrdiff/internal/schedule"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// Tensors

// Shape is a tensor shape.
type Shape = tensor.Shape

// Real is a dense float64 tensor; image batches are [B, C, H, W].
type Real = tensor.Real

// Complex is a dense complex128 tensor.
type Complex = tensor.Complex

// FromReal wraps data in a tensor of the given shape.
func FromReal(data []float64, shape Shape) (*Real, error) {
	return tensor.FromSlice(data, shape)
}

// FromComplex wraps data in a complex tensor of the given shape.
func FromComplex(data []complex128, shape Shape) (*Complex, error) {
	return tensor.FromSlice(data, shape)
}

// Samplers

// Sampler turns latents into samples of the same shape.
type Sampler = sampler.Sampler

// EDM is the fixed second-order sampler with data consistency.
type EDM = sampler.EDM

// Ablation is the configurable sampler with a likelihood correction.
type Ablation = sampler.Ablation

// EDMConfig configures EDM.
type EDMConfig = sampler.EDMConfig

// AblationConfig configures Ablation.
type AblationConfig = sampler.AblationConfig

// Stochasticity controls the churn of each step.
type Stochasticity = sampler.Stochasticity

// Option configures a sampler.
type Option = sampler.Option

// NoiseSource supplies the perturbations of stochastic steps.
type NoiseSource = sampler.NoiseSource

// DefaultEDMConfig returns the deterministic 18-step EDM recipe.
func DefaultEDMConfig() EDMConfig { return sampler.DefaultEDMConfig() }

// DefaultAblationConfig returns the variance-preserving Euler setup.
func DefaultAblationConfig() AblationConfig { return sampler.DefaultAblationConfig() }

// NewEDM creates an EDM sampler.
func NewEDM(net Denoiser, cfg EDMConfig, opts ...Option) (*EDM, error) {
	return sampler.NewEDM(net, cfg, opts...)
}

// NewAblation creates an ablation sampler.
func NewAblation(net Denoiser, cfg AblationConfig, opts ...Option) (*Ablation, error) {
	return sampler.NewAblation(net, cfg, opts...)
}

// WithOperator attaches the encoding operator of a measurement.
func WithOperator(op *Operator) Option { return sampler.WithOperator(op) }

// WithObserver attaches a diagnostics observer.
func WithObserver(obs Observer) Option { return sampler.WithObserver(obs) }

// Errors returned by the samplers.
var (
	ErrInvalidConfig = sampler.ErrInvalidConfig
	ErrDenoiserShape = sampler.ErrDenoiserShape
	ErrUnsupported   = schedule.ErrUnsupported
	ErrShape         = tensor.ErrShape
)

// Observers

// Observer receives run diagnostics.
type Observer = sampler.Observer

// RunInfo describes a starting run.
type RunInfo = sampler.RunInfo

// Step is the state after one sampler step.
type Step = sampler.Step

// LogObserver logs progress through slog.
type LogObserver = sampler.LogObserver

// Trajectory records every iterate.
type Trajectory = sampler.Trajectory

// Multi fans events out to several observers.
type Multi = sampler.Multi

// TensorObserver is an Observer that keeps the iterates of a run.
type TensorObserver = sampler.TensorObserver

// Denoisers

// Denoiser is the model contract of the samplers.
type Denoiser = denoise.Denoiser

// Differentiable is a Denoiser that records its forward pass for gradients.
type Differentiable = denoise.Differentiable

// NewGaussian creates the closed-form denoiser of an independent Gaussian
// pixel prior with one mean per class.
func NewGaussian(channels int, std float64, means ...float64) (*denoise.Gaussian, error) {
	return denoise.NewGaussian(channels, std, means...)
}

// NewIdentity creates a denoiser that returns its input.
func NewIdentity(channels int) *denoise.Identity {
	return denoise.NewIdentity(channels)
}

// Measurements

// Measurement is a multi-coil acquisition.
type Measurement = mri.Measurement

// Operator is the encoding operator of a measurement.
type Operator = mri.Operator

// NewMeasurement checks and bundles k-space [T, C, H, W], a mask
// broadcastable to it, sensitivities [C, H, W] and an optional basis [T, K].
func NewMeasurement(ksp *Complex, mask *Real, sens, basis *Complex) (*Measurement, error) {
	return mri.NewMeasurement(ksp, mask, sens, basis)
}

// NewOperator creates the operator over the first rank basis components;
// rank 0 selects all of them.
func NewOperator(m *Measurement, rank int) (*Operator, error) {
	return mri.NewOperator(m, rank)
}

// Noise

// Noise is a bank of per-seed Gaussian generators.
type Noise = random.StackedGenerator

// NewNoise creates one generator per seed.
func NewNoise(seeds []int64) *Noise {
	return random.NewStackedGenerator(seeds)
}
