package denoise

import (
	"fmt"
	"math"

	"github.com/born-ml/mrdiff/internal/autodiff"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// NetworkWeights are the parameters of a pointwise network with one hidden
// layer of width Hd.
type NetworkWeights struct {
	InWeight    *tensor.Real // [Hd, C]
	InBias      *tensor.Real // [Hd]
	NoiseWeight *tensor.Real // [Hd]
	OutWeight   *tensor.Real // [C, Hd]
	OutBias     *tensor.Real // [C]
}

// Hidden returns Hd.
func (w NetworkWeights) Hidden() int {
	return w.InWeight.Dim(0)
}

func (w NetworkWeights) validate(channels int) error {
	if w.InWeight == nil || w.InBias == nil || w.NoiseWeight == nil || w.OutWeight == nil || w.OutBias == nil {
		return fmt.Errorf("%w: missing network weights", ErrInput)
	}
	if w.InWeight.Dims() != 2 || w.InWeight.Dim(1) != channels {
		return fmt.Errorf("%w: in.weight %v for %d channels", ErrInput, w.InWeight.Shape(), channels)
	}
	hd := w.Hidden()
	want := map[string][2]tensor.Shape{
		"in.bias":      {w.InBias.Shape(), {hd}},
		"noise.weight": {w.NoiseWeight.Shape(), {hd}},
		"out.weight":   {w.OutWeight.Shape(), {channels, hd}},
		"out.bias":     {w.OutBias.Shape(), {channels}},
	}
	for name, s := range want {
		if !s[0].Equal(s[1]) {
			return fmt.Errorf("%w: %s %v, want %v", ErrInput, name, s[0], s[1])
		}
	}
	return nil
}

// Network is a pointwise denoiser F wrapped in the EDM preconditioning:
//
//	D(x; σ) = c_skip(σ)·x + c_out(σ)·F(c_in(σ)·x; c_noise(σ))
//	F(u; n) = W₂·SiLU(W₁·u + b₁ + n·e) + b₂
type Network struct {
	Info
	SigmaData float64
	weights   NetworkWeights
}

// NewNetwork validates the weights against info and returns the model.
func NewNetwork(info Info, sigmaData float64, w NetworkWeights) (*Network, error) {
	if sigmaData <= 0 {
		return nil, fmt.Errorf("%w: sigma_data must be positive, got %g", ErrInput, sigmaData)
	}
	if err := w.validate(info.Channels); err != nil {
		return nil, err
	}
	return &Network{Info: info, SigmaData: sigmaData, weights: w}, nil
}

// Weights returns the network parameters.
func (n *Network) Weights() NetworkWeights {
	return n.weights
}

// Denoise evaluates the network without recording.
func (n *Network) Denoise(x *tensor.Real, sigma float64, labels *tensor.Real) (*tensor.Real, error) {
	return Denoise(n, x, sigma, labels)
}

// Trace records the preconditioned forward pass.
func (n *Network) Trace(tape *autodiff.GradientTape, x *tensor.Real, sigma float64, labels *tensor.Real) (*tensor.Real, error) {
	if err := n.Check(x, labels); err != nil {
		return nil, err
	}
	sd2, s2 := n.SigmaData*n.SigmaData, sigma*sigma
	cSkip := sd2 / (s2 + sd2)
	cOut := sigma * n.SigmaData / math.Sqrt(s2+sd2)
	cIn := 1 / math.Sqrt(sd2+s2)
	cNoise := math.Log(sigma) / 4

	bias := n.weights.InBias.AddScaled(cNoise, n.weights.NoiseWeight)
	h, err := tape.ChannelMix(tape.Scale(x, cIn), n.weights.InWeight, bias)
	if err != nil {
		return nil, err
	}
	f, err := tape.ChannelMix(tape.SiLU(h), n.weights.OutWeight, n.weights.OutBias)
	if err != nil {
		return nil, err
	}
	return tape.Add(tape.Scale(x, cSkip), tape.Scale(f, cOut)), nil
}
