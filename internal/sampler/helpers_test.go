package sampler_test

import (
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/mrdiff/internal/denoise"
	"github.com/born-ml/mrdiff/internal/mri"
	"github.com/born-ml/mrdiff/internal/tensor"
)

func randn(rng *rand.Rand, shape tensor.Shape) *tensor.Real {
	x := tensor.Zeros[float64](shape)
	for i := range x.Data() {
		x.Data()[i] = rng.NormFloat64()
	}
	return x
}

func randc(rng *rand.Rand, shape tensor.Shape) *tensor.Complex {
	x := tensor.Zeros[complex128](shape)
	for i := range x.Data() {
		x.Data()[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	return x
}

// acquisition builds a fully sampled, noiseless acquisition of truth
// [K, H, W] with per-pixel normalized coil maps, so that AᴴA = I.
func acquisition(t *testing.T, rng *rand.Rand, truth *tensor.Complex, coils int) *mri.Operator {
	t.Helper()
	k, h, w := truth.Dim(0), truth.Dim(1), truth.Dim(2)

	sens := randc(rng, tensor.Shape{coils, h, w})
	norm := tensor.Abs(sens).Mul(tensor.Abs(sens)).SumDim(0, true).Apply(math.Sqrt)
	sens = sens.Div(tensor.Promote(norm))

	m, err := mri.NewMeasurement(
		tensor.Zeros[complex128](tensor.Shape{k, coils, h, w}),
		tensor.Ones[float64](tensor.Shape{h, w}),
		sens,
		nil,
	)
	require.NoError(t, err)
	op, err := mri.NewOperator(m, k)
	require.NoError(t, err)

	y, err := op.Forward(truth)
	require.NoError(t, err)
	m.KSpace = y
	op, err = mri.NewOperator(m, k)
	require.NoError(t, err)
	return op
}

// counting wraps a denoiser and counts its queries.
type counting struct {
	denoise.Differentiable
	calls atomic.Int64
}

func (c *counting) Denoise(x *tensor.Real, sigma float64, labels *tensor.Real) (*tensor.Real, error) {
	c.calls.Add(1)
	return c.Differentiable.Denoise(x, sigma, labels)
}

// cropping returns outputs with one channel fewer than its input.
type cropping struct {
	denoise.Info
}

func (c cropping) Denoise(x *tensor.Real, _ float64, _ *tensor.Real) (*tensor.Real, error) {
	s := x.Shape().Clone()
	s[1]--
	return tensor.Zeros[float64](s), nil
}
