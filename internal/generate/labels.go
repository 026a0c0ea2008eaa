package generate

import (
	"errors"
	"fmt"

	"github.com/born-ml/mrdiff/internal/random"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// ErrLabels is returned when class labels cannot be formed.
var ErrLabels = errors.New("generate: invalid class label")

// NoClass selects random class labels.
const NoClass = -1

// drawLabels returns one-hot labels [B, labelDim] with classes drawn from
// rnd, or nil for an unconditional model. classIdx other than NoClass
// replaces every drawn label with that class.
func drawLabels(rnd *random.StackedGenerator, labelDim, classIdx int) (*tensor.Real, error) {
	if labelDim == 0 {
		if classIdx != NoClass {
			return nil, fmt.Errorf("%w: class %d for an unconditional model", ErrLabels, classIdx)
		}
		return nil, nil
	}
	if classIdx != NoClass && (classIdx < 0 || classIdx >= labelDim) {
		return nil, fmt.Errorf("%w: class %d outside [0, %d)", ErrLabels, classIdx, labelDim)
	}

	b := rnd.Len()
	classes, err := rnd.Randint(0, labelDim, tensor.Shape{b})
	if err != nil {
		return nil, err
	}
	labels := tensor.Zeros[float64](tensor.Shape{b, labelDim})
	for i, c := range classes {
		if classIdx != NoClass {
			c = classIdx
		}
		labels.Set(1, i, c)
	}
	return labels, nil
}
