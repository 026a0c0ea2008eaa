// Package autodiff implements reverse-mode automatic differentiation over
// float64 tensors.
//
// A GradientTape records operations during the forward pass. Its methods
// (Add, Mul, SiLU, ...) compute a result and record the corresponding
// operation in one step, so a model written against the tape is
// differentiable without further bookkeeping:
//
//	tape := autodiff.NewGradientTape()
//	tape.StartRecording()
//	h := tape.SiLU(tape.Scale(x, 0.5))
//	loss := tape.SumSquares(h)
//	grad, err := tape.Gradient(loss, x)
//
// Gradients are keyed by tensor pointer. A tensor that never appears as an
// operation input is a leaf.
package autodiff

import (
	"errors"
	"fmt"

	"github.com/born-ml/mrdiff/internal/autodiff/ops"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// ErrNoPath is returned by Gradient when the output does not depend on the
// requested tensor through any recorded operation.
var ErrNoPath = errors.New("autodiff: output does not depend on tensor")

// GradientTape records operations during the forward pass and computes
// gradients during the backward pass.
//
// A GradientTape is not safe for concurrent use.
type GradientTape struct {
	operations []ops.Operation
	recording  bool
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]ops.Operation, 0, 32),
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Record adds an operation to the tape if the tape is recording.
func (t *GradientTape) Record(op ops.Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear removes all recorded operations. Recording state is preserved.
func (t *GradientTape) Clear() {
	clear(t.operations)
	t.operations = t.operations[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Backward walks the tape in reverse starting from output with gradient
// outputGrad, and returns the accumulated gradient of every tensor reached.
//
// A nil outputGrad seeds the walk with ones.
func (t *GradientTape) Backward(output, outputGrad *tensor.Real) map[*tensor.Real]*tensor.Real {
	if outputGrad == nil {
		outputGrad = tensor.Ones[float64](output.Shape())
	}

	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	grads := map[*tensor.Real]*tensor.Real{output: outputGrad}
	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		g, ok := grads[op.Output()]
		if !ok {
			continue
		}
		accumulateGrads(op, op.Backward(g), grads)
	}
	return grads
}

// Gradient returns d(sum(output))/d(wrt).
func (t *GradientTape) Gradient(output, wrt *tensor.Real) (*tensor.Real, error) {
	grads := t.Backward(output, nil)
	g, ok := grads[wrt]
	if !ok {
		return nil, ErrNoPath
	}
	if !g.Shape().Equal(wrt.Shape()) {
		return nil, fmt.Errorf("%w: gradient %v for tensor %v", tensor.ErrShape, g.Shape(), wrt.Shape())
	}
	return g, nil
}

func accumulateGrads(op ops.Operation, inputGrads []*tensor.Real, grads map[*tensor.Real]*tensor.Real) {
	for j, input := range op.Inputs() {
		if j >= len(inputGrads) || inputGrads[j] == nil {
			continue
		}
		if existing, ok := grads[input]; ok {
			grads[input] = existing.Add(inputGrads[j])
		} else {
			grads[input] = inputGrads[j]
		}
	}
}
