package mri

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/mrdiff/internal/tensor"
)

// MagnitudeQuantile returns the q-quantile of |x| using gonum's linear
// interpolation of the empirical distribution.
func MagnitudeQuantile(x *tensor.Complex, q float64) float64 {
	mag := slices.Clone(tensor.Abs(x).Data())
	slices.Sort(mag)
	return stat.Quantile(q, stat.LinInterp, mag, nil)
}

// NormalizeQuantile rescales the measurement of op so that the q-quantile of
// the reference image magnitude becomes 1. Without a reference the quantile
// is taken over the coil-combined image of all frames. It returns the new
// operator and the scale that k-space was divided by. A zero quantile leaves
// op unchanged.
func NormalizeQuantile(op *Operator, q float64) (*Operator, float64, error) {
	if q <= 0 || q > 1 {
		return nil, 0, fmt.Errorf("mri: quantile %g outside (0, 1]", q)
	}
	ref := op.m.Reference
	if ref == nil {
		var err error
		if ref, err = op.AdjointCoils(op.m.KSpace); err != nil {
			return nil, 0, err
		}
	}
	scale := MagnitudeQuantile(ref, q)
	if scale == 0 {
		return op, 1, nil
	}
	scaled, err := NewOperator(op.m.Scaled(scale), op.rank)
	if err != nil {
		return nil, 0, err
	}
	return scaled, scale, nil
}
