package sampler

import (
	"log/slog"
	"math"
	"sync"

	"github.com/born-ml/mrdiff/internal/tensor"
)

// RunInfo describes a sampling run to observers.
type RunInfo struct {
	Sampler string
	Steps   int
	Shape   tensor.Shape
	Times   []float64
}

// Step describes one finished step. X and Denoised are copies owned by the
// observer; they are nil unless the observer asks for them through
// TensorObserver.
type Step struct {
	Index    int
	TCur     float64
	THat     float64
	TNext    float64
	Sigma    float64 // noise level the denoiser was queried at
	Residual float64 // data residual ‖y − A D‖, NaN without a measurement
	X        *tensor.Real
	Denoised *tensor.Real
}

// Observer receives progress events from a run. Observers must not affect
// the result; a sampler calls RunStarted once, StepFinished once per step in
// order, and RunFinished once.
type Observer interface {
	RunStarted(info RunInfo)
	StepFinished(step Step)
	RunFinished(err error)
}

// TensorObserver is implemented by observers that keep the iterates of a
// run. Samplers copy X and Denoised only when WantsTensors reports true.
type TensorObserver interface {
	Observer
	WantsTensors() bool
}

// Nop ignores every event.
type Nop struct{}

// RunStarted implements Observer.
func (Nop) RunStarted(RunInfo) {}

// StepFinished implements Observer.
func (Nop) StepFinished(Step) {}

// RunFinished implements Observer.
func (Nop) RunFinished(error) {}

// Multi fans events out to several observers in order.
type Multi []Observer

// RunStarted implements Observer.
func (m Multi) RunStarted(info RunInfo) {
	for _, o := range m {
		o.RunStarted(info)
	}
}

// StepFinished implements Observer.
func (m Multi) StepFinished(step Step) {
	for _, o := range m {
		o.StepFinished(step)
	}
}

// RunFinished implements Observer.
func (m Multi) RunFinished(err error) {
	for _, o := range m {
		o.RunFinished(err)
	}
}

// WantsTensors reports whether any member keeps iterates.
func (m Multi) WantsTensors() bool {
	for _, o := range m {
		if wantsTensors(o) {
			return true
		}
	}
	return false
}

// LogObserver logs run progress through slog.
type LogObserver struct {
	Logger *slog.Logger
	// Every logs one line per Every steps; 0 logs only start and end.
	Every int
}

// RunStarted implements Observer.
func (l LogObserver) RunStarted(info RunInfo) {
	l.Logger.Info("sampling started", "sampler", info.Sampler, "steps", info.Steps, "shape", []int(info.Shape))
}

// StepFinished implements Observer.
func (l LogObserver) StepFinished(step Step) {
	if l.Every <= 0 || step.Index%l.Every != 0 {
		return
	}
	attrs := []any{"step", step.Index, "t_hat", step.THat, "t_next", step.TNext}
	if !math.IsNaN(step.Residual) {
		attrs = append(attrs, "residual", step.Residual)
	}
	l.Logger.Debug("sampling step", attrs...)
}

// RunFinished implements Observer.
func (l LogObserver) RunFinished(err error) {
	if err != nil {
		l.Logger.Error("sampling failed", "error", err)
		return
	}
	l.Logger.Info("sampling finished")
}

// Trajectory records the iterate after every step.
type Trajectory struct {
	mu    sync.Mutex
	steps []Step
}

// RunStarted implements Observer.
func (t *Trajectory) RunStarted(RunInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = t.steps[:0]
}

// StepFinished implements Observer.
func (t *Trajectory) StepFinished(step Step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, step)
}

// RunFinished implements Observer.
func (t *Trajectory) RunFinished(error) {}

// WantsTensors implements TensorObserver.
func (t *Trajectory) WantsTensors() bool { return true }

// Steps returns the recorded steps of the last run.
func (t *Trajectory) Steps() []Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Step(nil), t.steps...)
}

func wantsTensors(obs Observer) bool {
	t, ok := obs.(TensorObserver)
	return ok && t.WantsTensors()
}

// snapshot clones the tensors of a step for observers that keep them.
func snapshot(obs Observer, x, denoised *tensor.Real) (*tensor.Real, *tensor.Real) {
	if !wantsTensors(obs) {
		return nil, nil
	}
	return x.Clone(), denoised.Clone()
}
