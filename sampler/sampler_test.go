// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package sampler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mrdiff/sampler"
)

func TestEDM_GaussianPrior(t *testing.T) {
	net, err := sampler.NewGaussian(2, 0.5)
	require.NoError(t, err)

	var traj sampler.Trajectory
	cfg := sampler.DefaultEDMConfig()
	cfg.NumSteps = 4
	s, err := sampler.NewEDM(net, cfg, sampler.WithObserver(&traj))
	require.NoError(t, err)

	noise := sampler.NewNoise([]int64{1, 2})
	latents, err := noise.Randn(sampler.Shape{2, 2, 4, 4})
	require.NoError(t, err)

	img, err := s.Sample(context.Background(), latents, nil, noise)
	require.NoError(t, err)
	assert.Equal(t, latents.Shape(), img.Shape())
	assert.Len(t, traj.Steps(), 4)
}

func TestAblation_WithMeasurement(t *testing.T) {
	ksp, err := sampler.FromComplex(make([]complex128, 16), sampler.Shape{1, 1, 4, 4})
	require.NoError(t, err)
	ones := make([]float64, 16)
	for i := range ones {
		ones[i] = 1
	}
	mask, err := sampler.FromReal(ones, sampler.Shape{1, 1, 4, 4})
	require.NoError(t, err)
	sens, err := sampler.FromComplex([]complex128{
		1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1,
	}, sampler.Shape{1, 4, 4})
	require.NoError(t, err)

	m, err := sampler.NewMeasurement(ksp, mask, sens, nil)
	require.NoError(t, err)
	op, err := sampler.NewOperator(m, 0)
	require.NoError(t, err)

	cfg := sampler.DefaultAblationConfig()
	cfg.NumSteps = 3
	cfg.KSpaceQuantile = 0
	cfg.Discretization, cfg.Schedule, cfg.Scaling = "edm", "linear", "none"
	s, err := sampler.NewAblation(sampler.NewIdentity(2), cfg, sampler.WithOperator(op))
	require.NoError(t, err)
	assert.Len(t, s.Times(), 4)

	cfg.Solver = "rk4"
	_, err = sampler.NewAblation(sampler.NewIdentity(2), cfg)
	require.ErrorIs(t, err, sampler.ErrInvalidConfig)
	require.ErrorIs(t, err, sampler.ErrUnsupported)
}
