// Package mri implements the multi-coil MR encoding model: a measurement
// (k-space samples, sampling mask, coil sensitivities and an optional
// low-rank temporal basis) and the linear operator that maps basis
// coefficient images to k-space and back.
package mri

import (
	"fmt"

	"github.com/born-ml/mrdiff/internal/tensor"
)

// Measurement is an acquisition fixed for the duration of a reconstruction.
// It is never modified after construction.
type Measurement struct {
	KSpace *tensor.Complex // [T, C, H, W]
	Mask   *tensor.Real    // [T, 1, H, W] or [1, 1, H, W]
	Sens   *tensor.Complex // [1, C, H, W]
	Basis  *tensor.Complex // [T, R], nil without a temporal basis

	// Reference is an optional coefficient image [K, H, W] whose plane norms
	// the final reconstruction is scaled to.
	Reference *tensor.Complex
}

// NewMeasurement validates and normalizes the layout of an acquisition.
//
// The mask may be given as [H, W], [T, H, W] or [T|1, 1, H, W] and the
// sensitivities as [C, H, W] or [1, C, H, W]. basis may be nil.
func NewMeasurement(ksp *tensor.Complex, mask *tensor.Real, sens *tensor.Complex, basis *tensor.Complex) (*Measurement, error) {
	ks := ksp.Shape()
	if len(ks) != 4 {
		return nil, fmt.Errorf("%w: k-space must be [T, C, H, W], got %v", tensor.ErrShape, ks)
	}
	frames, coils, h, w := ks[0], ks[1], ks[2], ks[3]

	var err error
	switch mask.Dims() {
	case 2:
		mask, err = mask.Reshape(1, 1, h, w)
	case 3:
		mask, err = mask.Reshape(mask.Dim(0), 1, h, w)
	}
	if err != nil {
		return nil, fmt.Errorf("mask: %w", err)
	}
	ms := mask.Shape()
	if len(ms) != 4 || (ms[0] != 1 && ms[0] != frames) || ms[1] != 1 || ms[2] != h || ms[3] != w {
		return nil, fmt.Errorf("%w: mask %v does not match k-space %v", tensor.ErrShape, ms, ks)
	}

	if sens.Dims() == 3 {
		if sens, err = sens.Reshape(append(tensor.Shape{1}, sens.Shape()...)...); err != nil {
			return nil, fmt.Errorf("sens: %w", err)
		}
	}
	if !sens.Shape().Equal(tensor.Shape{1, coils, h, w}) {
		return nil, fmt.Errorf("%w: sensitivities %v do not match k-space %v", tensor.ErrShape, sens.Shape(), ks)
	}

	if basis != nil {
		bs := basis.Shape()
		if len(bs) != 2 || bs[0] != frames {
			return nil, fmt.Errorf("%w: basis %v does not match %d frames", tensor.ErrShape, bs, frames)
		}
	}

	return &Measurement{KSpace: ksp, Mask: mask, Sens: sens, Basis: basis}, nil
}

// Frames returns T.
func (m *Measurement) Frames() int { return m.KSpace.Dim(0) }

// Coils returns C.
func (m *Measurement) Coils() int { return m.KSpace.Dim(1) }

// Size returns the image height and width.
func (m *Measurement) Size() (h, w int) { return m.KSpace.Dim(2), m.KSpace.Dim(3) }

// MaxRank returns the largest number of coefficients an operator over m can
// reconstruct: the basis width, or T without a basis.
func (m *Measurement) MaxRank() int {
	if m.Basis == nil {
		return m.Frames()
	}
	return m.Basis.Dim(1)
}

// SamplingRate returns the fraction of mask entries that are non-zero.
func (m *Measurement) SamplingRate() float64 {
	n := 0
	for _, v := range m.Mask.Data() {
		if v != 0 {
			n++
		}
	}
	return float64(n) / float64(m.Mask.NumElements())
}

// Scaled returns a copy of m with k-space (and reference) divided by s.
func (m *Measurement) Scaled(s float64) *Measurement {
	out := *m
	out.KSpace = m.KSpace.Scale(complex(1/s, 0))
	if m.Reference != nil {
		out.Reference = m.Reference.Scale(complex(1/s, 0))
	}
	return &out
}
