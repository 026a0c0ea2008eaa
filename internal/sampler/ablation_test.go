package sampler_test

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mrdiff/internal/denoise"
	"github.com/born-ml/mrdiff/internal/random"
	"github.com/born-ml/mrdiff/internal/sampler"
	"github.com/born-ml/mrdiff/internal/schedule"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// linearConfig is an Euler sampler on the EDM grid with σ(t) = t and no
// signal scaling.
func linearConfig() sampler.AblationConfig {
	cfg := sampler.DefaultAblationConfig()
	cfg.Discretization = "edm"
	cfg.Schedule = "linear"
	cfg.Scaling = "none"
	cfg.KSpaceQuantile = 0
	return cfg
}

func TestAblation_IdentityDenoiserConvergesToMeasurement(t *testing.T) {
	// With an identity denoiser the ODE direction vanishes and only the
	// likelihood correction moves the state, a fixed distance per step.
	rng := rand.New(rand.NewPCG(11, 12))
	truth := randc(rng, tensor.Shape{1, 4, 4})
	op := acquisition(t, rng, truth, 3)

	cfg := linearConfig()
	cfg.NumSteps = 400
	cfg.LikelihoodSteps = []float64{0.02}

	a, err := sampler.NewAblation(denoise.NewIdentity(2), cfg, sampler.WithOperator(op))
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.KSpaceScale())

	out, err := a.Sample(context.Background(), tensor.Zeros[float64](tensor.Shape{1, 2, 4, 4}), nil, random.NewStackedGenerator([]int64{0}))
	require.NoError(t, err)

	want, err := tensor.ComplexToChannels(truth)
	require.NoError(t, err)
	assert.Less(t, want.Sub(out).Norm()/want.Norm(), 0.05)
}

func TestAblation_QueriesPerRun(t *testing.T) {
	tests := []struct {
		solver string
		want   int64
	}{
		{"euler", 7},
		{"heun", 2*7 - 1},
	}
	for _, tt := range tests {
		t.Run(tt.solver, func(t *testing.T) {
			net := &counting{Differentiable: gaussian(t, 1)}
			cfg := sampler.DefaultAblationConfig()
			cfg.NumSteps = 7
			cfg.Solver = tt.solver

			a, err := sampler.NewAblation(net, cfg)
			require.NoError(t, err)
			out, err := a.Sample(context.Background(), randn(rand.New(rand.NewPCG(1, 1)), tensor.Shape{2, 1, 3, 3}), nil, random.NewStackedGenerator([]int64{1, 2}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, net.calls.Load())
			for _, v := range out.Data() {
				assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			}
		})
	}
}

func TestAblation_HeunWithAlpha(t *testing.T) {
	cfg := sampler.DefaultAblationConfig()
	cfg.Solver = "heun"
	cfg.Alpha = 0.5
	cfg.NumSteps = 5
	cfg.Churn = 2
	a, err := sampler.NewAblation(gaussian(t, 1), cfg)
	require.NoError(t, err)

	gen := random.NewStackedGenerator([]int64{3})
	latents, err := gen.Randn(tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)
	out, err := a.Sample(context.Background(), latents, nil, gen)
	require.NoError(t, err)
	assert.Equal(t, latents.Shape(), out.Shape())
}

func TestAblation_UnsupportedOption(t *testing.T) {
	net := &counting{Differentiable: gaussian(t, 1)}
	for _, field := range []string{"solver", "discretization", "schedule", "scaling"} {
		t.Run(field, func(t *testing.T) {
			cfg := sampler.DefaultAblationConfig()
			switch field {
			case "solver":
				cfg.Solver = "rk4"
			case "discretization":
				cfg.Discretization = "bogus"
			case "schedule":
				cfg.Schedule = "cosine"
			case "scaling":
				cfg.Scaling = "ve"
			}
			_, err := sampler.NewAblation(net, cfg)
			require.ErrorIs(t, err, sampler.ErrInvalidConfig)
			require.ErrorIs(t, err, schedule.ErrUnsupported)
		})
	}
	assert.Zero(t, net.calls.Load())
}

func TestAblation_RejectsNumericRanges(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*sampler.AblationConfig)
	}{
		{"alpha", func(c *sampler.AblationConfig) { c.Alpha = 1.5 }},
		{"epsilon", func(c *sampler.AblationConfig) { c.EpsilonS = 0 }},
		{"no likelihood steps", func(c *sampler.AblationConfig) { c.LikelihoodSteps = nil }},
		{"negative step", func(c *sampler.AblationConfig) { c.LikelihoodSteps = []float64{-1} }},
		{"quantile", func(c *sampler.AblationConfig) { c.KSpaceQuantile = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sampler.DefaultAblationConfig()
			tt.modify(&cfg)
			require.ErrorIs(t, cfg.Validate(), sampler.ErrInvalidConfig)
		})
	}
}

func TestAblation_OperatorNeedsDifferentiableDenoiser(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	op := acquisition(t, rng, randc(rng, tensor.Shape{1, 2, 2}), 1)
	net := cropping{Info: denoise.Info{MaxSigma: math.Inf(1), Channels: 2}}

	_, err := sampler.NewAblation(net, linearConfig(), sampler.WithOperator(op))
	require.ErrorIs(t, err, sampler.ErrInvalidConfig)
}

func TestAblation_StepSizesPerCoefficient(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 5))
	op := acquisition(t, rng, randc(rng, tensor.Shape{2, 2, 2}), 1)
	cfg := linearConfig()
	cfg.NumSteps = 3
	cfg.LikelihoodSteps = []float64{0.1, 0.2}

	a, err := sampler.NewAblation(denoise.NewIdentity(2), cfg, sampler.WithOperator(op))
	require.NoError(t, err)
	// Two reconstructions of rank 2 share the two weights.
	_, err = a.Sample(context.Background(), tensor.Zeros[float64](tensor.Shape{4, 2, 2, 2}), nil, random.NewStackedGenerator([]int64{1, 2, 3, 4}))
	require.NoError(t, err)

	cfg.LikelihoodSteps = []float64{0.1, 0.2, 0.3}
	_, err = sampler.NewAblation(denoise.NewIdentity(2), cfg, sampler.WithOperator(op))
	require.ErrorIs(t, err, sampler.ErrInvalidConfig)
}

func TestAblation_BatchMustSplitIntoGroups(t *testing.T) {
	rng := rand.New(rand.NewPCG(6, 6))
	op := acquisition(t, rng, randc(rng, tensor.Shape{2, 2, 2}), 1)

	a, err := sampler.NewAblation(denoise.NewIdentity(2), linearConfig(), sampler.WithOperator(op))
	require.NoError(t, err)
	_, err = a.Sample(context.Background(), tensor.Zeros[float64](tensor.Shape{3, 2, 2, 2}), nil, random.NewStackedGenerator([]int64{1, 2, 3}))
	require.ErrorIs(t, err, tensor.ErrShape)
}

func TestAblation_KSpaceNormalization(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	op := acquisition(t, rng, randc(rng, tensor.Shape{1, 4, 4}).Scale(complex(40, 0)), 2)
	cfg := linearConfig()
	cfg.KSpaceQuantile = 0.99

	a, err := sampler.NewAblation(denoise.NewIdentity(2), cfg, sampler.WithOperator(op))
	require.NoError(t, err)
	assert.Greater(t, a.KSpaceScale(), 1.0)
}

func TestAblation_NormalizedOutputMatchesReference(t *testing.T) {
	// The output keeps the scale of the caller's measurement even though
	// sampling runs on normalized k-space.
	rng := rand.New(rand.NewPCG(13, 13))
	op := acquisition(t, rng, randc(rng, tensor.Shape{1, 4, 4}).Scale(complex(50, 0)), 3)
	cfg := linearConfig()
	cfg.NumSteps = 10
	cfg.LikelihoodSteps = []float64{0.5}
	cfg.KSpaceQuantile = 0.99

	a, err := sampler.NewAblation(denoise.NewIdentity(2), cfg, sampler.WithOperator(op))
	require.NoError(t, err)
	require.Greater(t, a.KSpaceScale(), 10.0)

	out, err := a.Sample(context.Background(), tensor.Zeros[float64](tensor.Shape{1, 2, 4, 4}), nil, random.NewStackedGenerator([]int64{0}))
	require.NoError(t, err)

	ref, err := op.ReferenceImage(2)
	require.NoError(t, err)
	got, want := out.PlaneNorms().Data(), ref.PlaneNorms().Data()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, 1.0, got[i]/want[i], 1e-9, "plane %d", i)
	}
}

func TestAblation_DenoiserShapeMismatch(t *testing.T) {
	net := cropping{Info: denoise.Info{MaxSigma: math.Inf(1), Channels: 2}}
	a, err := sampler.NewAblation(net, sampler.DefaultAblationConfig())
	require.NoError(t, err)

	_, err = a.Sample(context.Background(), tensor.Zeros[float64](tensor.Shape{1, 2, 2, 2}), nil, random.NewStackedGenerator([]int64{0}))
	require.ErrorIs(t, err, sampler.ErrDenoiserShape)
}

func TestAblation_ObserverSeesResidual(t *testing.T) {
	rng := rand.New(rand.NewPCG(8, 8))
	op := acquisition(t, rng, randc(rng, tensor.Shape{1, 3, 3}), 2)
	cfg := linearConfig()
	cfg.NumSteps = 4
	cfg.LikelihoodSteps = []float64{0.2}

	traj := &sampler.Trajectory{}
	obs := &recorder{}
	a, err := sampler.NewAblation(denoise.NewIdentity(2), cfg, sampler.WithOperator(op), sampler.WithObserver(sampler.Multi{traj, obs}))
	require.NoError(t, err)
	_, err = a.Sample(context.Background(), tensor.Zeros[float64](tensor.Shape{1, 2, 3, 3}), nil, random.NewStackedGenerator([]int64{0}))
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "step 0", "step 1", "step 2", "step 3", "finish"}, obs.events)
	assert.Equal(t, "ablation", obs.info.Sampler)
	steps := traj.Steps()
	require.Len(t, steps, 4)
	// Each correction moves the state toward the measurement.
	for i := 1; i < len(steps); i++ {
		assert.Less(t, steps[i].Residual, steps[i-1].Residual)
	}
}

func TestAblation_Cancel(t *testing.T) {
	a, err := sampler.NewAblation(gaussian(t, 1), sampler.DefaultAblationConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Sample(ctx, tensor.Zeros[float64](tensor.Shape{1, 1, 2, 2}), nil, random.NewStackedGenerator([]int64{0}))
	require.ErrorIs(t, err, context.Canceled)
}
