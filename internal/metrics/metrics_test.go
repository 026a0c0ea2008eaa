package metrics

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mrdiff/internal/generate"
	"github.com/born-ml/mrdiff/internal/sampler"
	"github.com/born-ml/mrdiff/internal/tensor"
)

func TestObserver_RecordsRun(t *testing.T) {
	m := New()
	clock := time.Unix(0, 0)
	obs := &observer{m: m, now: func() time.Time {
		clock = clock.Add(250 * time.Millisecond)
		return clock
	}}

	obs.RunStarted(sampler.RunInfo{Sampler: "ablation", Steps: 2})
	obs.StepFinished(sampler.Step{Index: 0, Sigma: 3, Residual: 1.5})
	obs.StepFinished(sampler.Step{Index: 1, Sigma: 0.5, Residual: math.NaN()})
	obs.RunFinished(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.steps.WithLabelValues("ablation")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.sigma.WithLabelValues("ablation")))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.residual.WithLabelValues("ablation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ablation", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stepDuration))

	failed := m.Observer()
	failed.RunStarted(sampler.RunInfo{Sampler: "edm"})
	failed.RunFinished(errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("edm", "error")))
}

func TestSink_CountsWrittenImages(t *testing.T) {
	m := New()
	boom := errors.New("boom")
	calls := 0
	sink := m.Sink(generate.SinkFunc(func(int64, *tensor.Real) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	}))

	require.NoError(t, sink.Write(1, nil))
	require.ErrorIs(t, sink.Write(2, nil), boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.images))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.images.Add(3)
	path := filepath.Join(t.TempDir(), "mrdiff.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mrdiff_images_written_total 3")
}
