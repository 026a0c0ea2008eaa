package denoise

import (
	"fmt"
	"math"

	"github.com/born-ml/mrdiff/internal/autodiff"
	"github.com/born-ml/mrdiff/internal/tensor"
)

var posInf = math.Inf(1)

// Gaussian is the exact MMSE denoiser for a prior whose pixels are
// independent N(μ, std²). With labels, μ is the label-weighted class mean:
//
//	D(x; σ) = (std²·x + σ²·μ) / (std² + σ²)
type Gaussian struct {
	Info
	Std   float64
	Means []float64 // one per class, or a single mean when unconditional
}

// NewGaussian creates a Gaussian-prior denoiser.
func NewGaussian(channels int, std float64, means ...float64) (*Gaussian, error) {
	if std <= 0 {
		return nil, fmt.Errorf("denoise: gaussian std must be positive, got %g", std)
	}
	if len(means) == 0 {
		means = []float64{0}
	}
	labels := 0
	if len(means) > 1 {
		labels = len(means)
	}
	return &Gaussian{
		Info:  Info{MaxSigma: posInf, Channels: channels, Labels: labels},
		Std:   std,
		Means: means,
	}, nil
}

// Denoise returns the posterior mean.
func (d *Gaussian) Denoise(x *tensor.Real, sigma float64, labels *tensor.Real) (*tensor.Real, error) {
	return Denoise(d, x, sigma, labels)
}

// Trace records D(x; σ) as an affine map of x.
func (d *Gaussian) Trace(tape *autodiff.GradientTape, x *tensor.Real, sigma float64, labels *tensor.Real) (*tensor.Real, error) {
	if err := d.Check(x, labels); err != nil {
		return nil, err
	}
	v, s2 := d.Std*d.Std, sigma*sigma
	batch := x.Dim(0)

	offset := tensor.Zeros[float64](tensor.Shape{batch, 1, 1, 1})
	for b := 0; b < batch; b++ {
		offset.Data()[b] = s2 * d.mean(b, labels) / (v + s2)
	}
	return tape.Affine(x, tensor.Full(tensor.Shape{1}, v/(v+s2)), offset), nil
}

func (d *Gaussian) mean(b int, labels *tensor.Real) float64 {
	if labels == nil {
		return d.Means[0]
	}
	mu := 0.0
	for j, w := range labels.Index(b).Data() {
		mu += w * d.Means[j]
	}
	return mu
}
