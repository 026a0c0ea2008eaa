// Package denoise defines the contract between the samplers and a denoising
// model, and provides a few built-in models: the identity, the closed-form
// Gaussian-prior MMSE denoiser and a small EDM-preconditioned network.
package denoise

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/mrdiff/internal/autodiff"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// ErrInput is returned when an image batch or label batch does not match
// the model.
var ErrInput = errors.New("denoise: input does not match model")

// Denoiser maps a noisy image batch [B, C, H, W] at noise level sigma to a
// denoised estimate of the same shape. labels is a one-hot batch
// [B, LabelDim] or nil.
type Denoiser interface {
	Denoise(x *tensor.Real, sigma float64, labels *tensor.Real) (*tensor.Real, error)

	SigmaMin() float64
	SigmaMax() float64
	RoundSigma(sigma float64) float64
	ImgChannels() int
	ImgResolution() int
	LabelDim() int
}

// Differentiable is a Denoiser that can record its forward pass on a
// gradient tape, so that losses on its output can be differentiated with
// respect to its input.
type Differentiable interface {
	Denoiser
	Trace(tape *autodiff.GradientTape, x *tensor.Real, sigma float64, labels *tensor.Real) (*tensor.Real, error)
}

// Info holds the scalar attributes every model exposes. Embedding Info
// provides the attribute half of the Denoiser interface.
type Info struct {
	MinSigma   float64
	MaxSigma   float64
	Channels   int
	Resolution int // 0 accepts any spatial size
	Labels     int

	// Levels, when set, are the only noise levels the model was trained on.
	Levels []float64
}

// SigmaMin returns the smallest supported noise level.
func (i Info) SigmaMin() float64 { return i.MinSigma }

// SigmaMax returns the largest supported noise level.
func (i Info) SigmaMax() float64 { return i.MaxSigma }

// ImgChannels returns C.
func (i Info) ImgChannels() int { return i.Channels }

// ImgResolution returns the spatial size, or 0 if any size is accepted.
func (i Info) ImgResolution() int { return i.Resolution }

// LabelDim returns the number of classes, 0 for unconditional models.
func (i Info) LabelDim() int { return i.Labels }

// RoundSigma snaps sigma to the nearest trained level, or returns it
// unchanged when the model accepts continuous levels.
func (i Info) RoundSigma(sigma float64) float64 {
	if len(i.Levels) == 0 {
		return sigma
	}
	best := i.Levels[0]
	for _, l := range i.Levels[1:] {
		if math.Abs(l-sigma) < math.Abs(best-sigma) {
			best = l
		}
	}
	return best
}

// Check validates an image batch and its labels against the model.
func (i Info) Check(x, labels *tensor.Real) error {
	s := x.Shape()
	if len(s) != 4 || s[1] != i.Channels {
		return fmt.Errorf("%w: image %v, model has %d channels", ErrInput, s, i.Channels)
	}
	if i.Resolution > 0 && (s[2] != i.Resolution || s[3] != i.Resolution) {
		return fmt.Errorf("%w: image %v, model resolution %d", ErrInput, s, i.Resolution)
	}
	if labels == nil {
		return nil
	}
	if i.Labels == 0 {
		return fmt.Errorf("%w: labels given to an unconditional model", ErrInput)
	}
	if !labels.Shape().Equal(tensor.Shape{s[0], i.Labels}) {
		return fmt.Errorf("%w: labels %v, want [%d, %d]", ErrInput, labels.Shape(), s[0], i.Labels)
	}
	return nil
}

// Denoise runs a Differentiable model without recording.
func Denoise(d Differentiable, x *tensor.Real, sigma float64, labels *tensor.Real) (*tensor.Real, error) {
	return d.Trace(autodiff.NewGradientTape(), x, sigma, labels)
}
