package tensor

import (
	"fmt"
	"math/cmplx"
)

// ChannelsToComplex converts an image batch [B, 2, H, W] whose channels hold
// real and imaginary parts into a complex batch [B, H, W].
func ChannelsToComplex(x *Real) (*Complex, error) {
	s := x.Shape()
	if len(s) != 4 || s[1] != 2 {
		return nil, fmt.Errorf("%w: expected [B, 2, H, W], got %v", ErrShape, s)
	}
	b, hw := s[0], s[2]*s[3]
	out := Zeros[complex128](Shape{b, s[2], s[3]})
	for i := 0; i < b; i++ {
		re := x.data[(2*i)*hw : (2*i+1)*hw]
		im := x.data[(2*i+1)*hw : (2*i+2)*hw]
		dst := out.data[i*hw : (i+1)*hw]
		for j := range dst {
			dst[j] = complex(re[j], im[j])
		}
	}
	return out, nil
}

// ComplexToChannels is the inverse of ChannelsToComplex: [B, H, W] → [B, 2, H, W].
func ComplexToChannels(c *Complex) (*Real, error) {
	s := c.Shape()
	if len(s) != 3 {
		return nil, fmt.Errorf("%w: expected [B, H, W], got %v", ErrShape, s)
	}
	b, hw := s[0], s[1]*s[2]
	out := Zeros[float64](Shape{b, 2, s[1], s[2]})
	for i := 0; i < b; i++ {
		src := c.data[i*hw : (i+1)*hw]
		re := out.data[(2*i)*hw : (2*i+1)*hw]
		im := out.data[(2*i+1)*hw : (2*i+2)*hw]
		for j, v := range src {
			re[j], im[j] = real(v), imag(v)
		}
	}
	return out, nil
}

// ViewAsComplex interprets a real tensor whose last axis has size 2 as a
// complex tensor without that axis (torch.view_as_complex).
func ViewAsComplex(x *Real) (*Complex, error) {
	s := x.Shape()
	if len(s) < 2 || s[len(s)-1] != 2 {
		return nil, fmt.Errorf("%w: expected trailing axis of size 2, got %v", ErrShape, s)
	}
	out := Zeros[complex128](s[:len(s)-1])
	for i := range out.data {
		out.data[i] = complex(x.data[2*i], x.data[2*i+1])
	}
	return out, nil
}

// ViewAsReal appends a trailing axis of size 2 holding real and imaginary parts.
func ViewAsReal(c *Complex) *Real {
	shape := append(c.Shape().Clone(), 2)
	out := Zeros[float64](shape)
	for i, v := range c.data {
		out.data[2*i], out.data[2*i+1] = real(v), imag(v)
	}
	return out
}

// Promote converts a real tensor to complex with zero imaginary part.
func Promote(x *Real) *Complex {
	out := Zeros[complex128](x.Shape())
	for i, v := range x.data {
		out.data[i] = complex(v, 0)
	}
	return out
}

// RealPart returns Re(c).
func RealPart(c *Complex) *Real {
	out := Zeros[float64](c.Shape())
	for i, v := range c.data {
		out.data[i] = real(v)
	}
	return out
}

// Abs returns |c| element-wise.
func Abs(c *Complex) *Real {
	out := Zeros[float64](c.Shape())
	for i, v := range c.data {
		out.data[i] = cmplx.Abs(v)
	}
	return out
}

// Conj returns the complex conjugate of c.
func Conj(c *Complex) *Complex {
	return c.Apply(cmplx.Conj)
}
