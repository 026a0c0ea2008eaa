// Package fft implements the centered, orthonormal 2-D Fourier transform used
// by the MRI encoding operator.
//
// Both directions follow the same centering convention,
// ifftshift → transform → fftshift, and scale by 1/sqrt(H·W), so Forward and
// Inverse are exact adjoints of each other.
package fft

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/born-ml/mrdiff/internal/parallel"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// Plan holds 1-D transforms and scratch space for a fixed H×W plane size.
//
// A Plan is not safe for concurrent use.
type Plan struct {
	h, w  int
	rows  *fourier.CmplxFFT // length w
	cols  *fourier.CmplxFFT // length h
	col   []complex128
	buf   []complex128
	scale float64
}

// NewPlan creates a plan for H×W planes.
func NewPlan(h, w int) *Plan {
	return &Plan{
		h:     h,
		w:     w,
		rows:  fourier.NewCmplxFFT(w),
		cols:  fourier.NewCmplxFFT(h),
		col:   make([]complex128, h),
		buf:   make([]complex128, h*w),
		scale: 1 / math.Sqrt(float64(h*w)),
	}
}

// Size returns the plane height and width.
func (p *Plan) Size() (h, w int) {
	return p.h, p.w
}

// Forward computes the centered orthonormal FFT of one plane. dst and src may alias.
func (p *Plan) Forward(dst, src []complex128) {
	p.transform(dst, src, false)
}

// Inverse computes the centered orthonormal inverse FFT of one plane. dst and src may alias.
func (p *Plan) Inverse(dst, src []complex128) {
	p.transform(dst, src, true)
}

func (p *Plan) transform(dst, src []complex128, inverse bool) {
	if len(src) != p.h*p.w || len(dst) != p.h*p.w {
		panic("fft: plane size does not match plan")
	}
	IfftShift(p.buf, src, p.h, p.w)

	for r := 0; r < p.h; r++ {
		row := p.buf[r*p.w : (r+1)*p.w]
		if inverse {
			p.rows.Sequence(row, row)
		} else {
			p.rows.Coefficients(row, row)
		}
	}
	for c := 0; c < p.w; c++ {
		for r := 0; r < p.h; r++ {
			p.col[r] = p.buf[r*p.w+c]
		}
		if inverse {
			p.cols.Sequence(p.col, p.col)
		} else {
			p.cols.Coefficients(p.col, p.col)
		}
		for r := 0; r < p.h; r++ {
			p.buf[r*p.w+c] = p.col[r] * complex(p.scale, 0)
		}
	}

	FftShift(dst, p.buf, p.h, p.w)
}

// ForwardTensor applies Forward to every H×W plane of x. Large tensors are
// split across goroutines, each with its own scratch plan.
func (p *Plan) ForwardTensor(x *tensor.Complex) *tensor.Complex {
	return p.apply(x, false)
}

// InverseTensor applies Inverse to every H×W plane of x.
func (p *Plan) InverseTensor(x *tensor.Complex) *tensor.Complex {
	return p.apply(x, true)
}

// planesPerWorker is the smallest share of planes worth a goroutine and
// its own plan.
const planesPerWorker = 4

func (p *Plan) apply(x *tensor.Complex, inverse bool) *tensor.Complex {
	out := tensor.ZerosLike(x)
	parallel.Chunks(x.NumPlanes(), parallel.DefaultConfig(planesPerWorker), func(start, end int) {
		q := p
		if start > 0 {
			q = NewPlan(p.h, p.w)
		}
		for i := start; i < end; i++ {
			q.transform(out.Plane(i), x.Plane(i), inverse)
		}
	})
	return out
}

// FftShift moves the zero-frequency entry of an H×W plane to its center.
// dst must not alias src.
func FftShift(dst, src []complex128, h, w int) {
	shift2D(dst, src, h, w, h/2, w/2)
}

// IfftShift is the inverse of FftShift. dst must not alias src.
func IfftShift(dst, src []complex128, h, w int) {
	shift2D(dst, src, h, w, (h+1)/2, (w+1)/2)
}

// shift2D writes src[r][c] to dst[(r+dr)%h][(c+dc)%w].
func shift2D(dst, src []complex128, h, w, dr, dc int) {
	for r := 0; r < h; r++ {
		rr := (r + dr) % h
		for c := 0; c < w; c++ {
			dst[rr*w+(c+dc)%w] = src[r*w+c]
		}
	}
}
