package mri

import (
	"fmt"

	"github.com/born-ml/mrdiff/internal/tensor"
)

// ImageToComplex converts an image batch [K, C, H, W] to coefficients
// [K, H, W]. Two channels hold real and imaginary parts; one channel is real.
func ImageToComplex(x *tensor.Real) (*tensor.Complex, error) {
	s := x.Shape()
	if len(s) != 4 {
		return nil, fmt.Errorf("%w: image must be [K, C, H, W], got %v", tensor.ErrShape, s)
	}
	switch s[1] {
	case 2:
		return tensor.ChannelsToComplex(x)
	case 1:
		return tensor.Promote(x).Reshape(s[0], s[2], s[3])
	default:
		return nil, fmt.Errorf("%w: images need 1 or 2 channels, got %d", tensor.ErrShape, s[1])
	}
}

// ComplexToImage is the inverse of ImageToComplex. With one channel the
// imaginary part is dropped.
func ComplexToImage(c *tensor.Complex, channels int) (*tensor.Real, error) {
	s := c.Shape()
	if len(s) != 3 {
		return nil, fmt.Errorf("%w: coefficients must be [K, H, W], got %v", tensor.ErrShape, s)
	}
	switch channels {
	case 2:
		return tensor.ComplexToChannels(c)
	case 1:
		return tensor.RealPart(c).Reshape(s[0], 1, s[1], s[2])
	default:
		return nil, fmt.Errorf("%w: images need 1 or 2 channels, got %d", tensor.ErrShape, channels)
	}
}

// ReferenceImage returns the image the final reconstruction is scaled
// against: the measurement's reference when present, otherwise the
// zero-filled reconstruction Aᴴ y.
func (op *Operator) ReferenceImage(channels int) (*tensor.Real, error) {
	ref := op.m.Reference
	if ref == nil {
		ref = op.ZeroFilled()
	}
	if !ref.Shape().Equal(op.ImageShape()) {
		return nil, fmt.Errorf("%w: reference %v, operator images %v", tensor.ErrShape, ref.Shape(), op.ImageShape())
	}
	return ComplexToImage(ref, channels)
}

// Project returns A₁ᴴ A₁ x where A₁ is the fully sampled operator, removing
// the part of x outside the span of the coil and basis model.
func (op *Operator) Project(x *tensor.Real) (*tensor.Real, error) {
	c, err := ImageToComplex(x)
	if err != nil {
		return nil, err
	}
	full := op.FullySampled()
	k, err := full.Forward(c)
	if err != nil {
		return nil, err
	}
	back, err := full.Adjoint(k)
	if err != nil {
		return nil, err
	}
	return ComplexToImage(back, x.Dim(1))
}
