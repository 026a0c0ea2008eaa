// Package metrics exports sampling progress as Prometheus metrics.
package metrics

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/born-ml/mrdiff/internal/generate"
	"github.com/born-ml/mrdiff/internal/sampler"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// Metrics holds the collectors of one process on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	runs         *prometheus.CounterVec
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	residual     *prometheus.GaugeVec
	sigma        *prometheus.GaugeVec
	images       prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mrdiff_sampling_runs_total",
			Help: "Sampling runs by sampler and result",
		}, []string{"sampler", "result"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mrdiff_sampling_steps_total",
			Help: "Finished sampling steps by sampler",
		}, []string{"sampler"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mrdiff_sampling_step_duration_seconds",
			Help:    "Sampling step duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
		}, []string{"sampler"}),
		residual: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mrdiff_data_residual",
			Help: "Data residual norm of the most recent step",
		}, []string{"sampler"}),
		sigma: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mrdiff_sampling_sigma",
			Help: "Noise level of the most recent step",
		}, []string{"sampler"}),
		images: f.NewCounter(prometheus.CounterOpts{
			Name: "mrdiff_images_written_total",
			Help: "Images handed to the output sinks",
		}),
	}
}

// Observer returns a sampler observer feeding the collectors. Use one
// observer per run.
func (m *Metrics) Observer() sampler.Observer {
	return &observer{m: m, now: time.Now}
}

// Sink counts images before passing them to next.
func (m *Metrics) Sink(next generate.Sink) generate.Sink {
	return generate.SinkFunc(func(seed int64, image *tensor.Real) error {
		if err := next.Write(seed, image); err != nil {
			return err
		}
		m.images.Inc()
		return nil
	})
}

// WriteTextfile writes the current values in the text exposition format,
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

type observer struct {
	m   *Metrics
	now func() time.Time

	mu      sync.Mutex
	sampler string
	last    time.Time
}

func (o *observer) RunStarted(info sampler.RunInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sampler = info.Sampler
	o.last = o.now()
}

func (o *observer) StepFinished(step sampler.Step) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	o.m.stepDuration.WithLabelValues(o.sampler).Observe(now.Sub(o.last).Seconds())
	o.last = now
	o.m.steps.WithLabelValues(o.sampler).Inc()
	o.m.sigma.WithLabelValues(o.sampler).Set(step.Sigma)
	if !math.IsNaN(step.Residual) {
		o.m.residual.WithLabelValues(o.sampler).Set(step.Residual)
	}
}

func (o *observer) RunFinished(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	o.m.runs.WithLabelValues(o.sampler, result).Inc()
}
