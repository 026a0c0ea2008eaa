package sampler_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mrdiff/internal/random"
	"github.com/born-ml/mrdiff/internal/sampler"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// recorder logs the sequence of observer events.
type recorder struct {
	events   []string
	info     sampler.RunInfo
	steps    []sampler.Step
	onFinish func(error)
}

func (r *recorder) RunStarted(info sampler.RunInfo) {
	r.info = info
	r.events = append(r.events, "start")
}

func (r *recorder) StepFinished(step sampler.Step) {
	r.events = append(r.events, fmt.Sprintf("step %d", step.Index))
	r.steps = append(r.steps, step)
}

func (r *recorder) RunFinished(err error) {
	r.events = append(r.events, "finish")
	if r.onFinish != nil {
		r.onFinish(err)
	}
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := sampler.LogObserver{Logger: logger, Every: 2}

	obs.RunStarted(sampler.RunInfo{Sampler: "edm", Steps: 3, Shape: tensor.Shape{1, 2, 4, 4}})
	for i := range 3 {
		obs.StepFinished(sampler.Step{Index: i, THat: 1, TNext: 0.5, Residual: 0.25})
	}
	obs.RunFinished(nil)

	out := buf.String()
	assert.Contains(t, out, "sampling started")
	assert.Contains(t, out, "step=0")
	assert.NotContains(t, out, "step=1")
	assert.Contains(t, out, "step=2")
	assert.Contains(t, out, "residual=0.25")
	assert.Contains(t, out, "sampling finished")
}

func TestTrajectory_ResetsPerRun(t *testing.T) {
	traj := &sampler.Trajectory{}
	traj.RunStarted(sampler.RunInfo{})
	traj.StepFinished(sampler.Step{Index: 0})
	traj.StepFinished(sampler.Step{Index: 1})
	assert.Len(t, traj.Steps(), 2)

	traj.RunStarted(sampler.RunInfo{})
	assert.Empty(t, traj.Steps())
}

func TestSampler_CopiesIteratesOnlyForTensorObservers(t *testing.T) {
	run := func(obs sampler.Observer) {
		t.Helper()
		cfg := sampler.DefaultEDMConfig()
		cfg.NumSteps = 3
		e, err := sampler.NewEDM(gaussian(t, 1), cfg, sampler.WithObserver(obs))
		require.NoError(t, err)
		_, err = e.Sample(context.Background(), tensor.Zeros[float64](tensor.Shape{1, 1, 2, 2}), nil, random.NewStackedGenerator([]int64{0}))
		require.NoError(t, err)
	}
	logs := sampler.LogObserver{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	plain := &recorder{}
	run(sampler.Multi{logs, plain})
	require.Len(t, plain.steps, 3)
	for _, s := range plain.steps {
		assert.Nil(t, s.X)
		assert.Nil(t, s.Denoised)
	}

	withTraj := &recorder{}
	traj := &sampler.Trajectory{}
	run(sampler.Multi{logs, withTraj, traj})
	require.Len(t, withTraj.steps, 3)
	for i, s := range withTraj.steps {
		require.NotNil(t, s.X)
		require.NotNil(t, s.Denoised)
		assert.Same(t, s.X, traj.Steps()[i].X)
	}
}
