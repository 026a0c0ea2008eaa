package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MixChannels applies a 1×1 convolution to x of shape [B, I, ...]:
// out[b, o, ...] = Σ_i w[o, i]·x[b, i, ...] + bias[o].
//
// w has shape [O, I]; bias may be nil or have shape [O].
func MixChannels(x, w, bias *Real) (*Real, error) {
	xs, ws := x.Shape(), w.Shape()
	if len(xs) < 2 || len(ws) != 2 || ws[1] != xs[1] {
		return nil, fmt.Errorf("%w: cannot mix %v with weight %v", ErrShape, xs, ws)
	}
	if bias != nil && (bias.Dims() != 1 || bias.shape[0] != ws[0]) {
		return nil, fmt.Errorf("%w: bias %v does not match weight %v", ErrShape, bias.Shape(), ws)
	}

	b, in, outCh := xs[0], ws[1], ws[0]
	pixels := 1
	for _, d := range xs[2:] {
		pixels *= d
	}
	outShape := xs.Clone()
	outShape[1] = outCh
	out := Zeros[float64](outShape)

	wm := mat.NewDense(outCh, in, w.data)
	for i := 0; i < b; i++ {
		src := mat.NewDense(in, pixels, x.data[i*in*pixels:(i+1)*in*pixels])
		dst := mat.NewDense(outCh, pixels, out.data[i*outCh*pixels:(i+1)*outCh*pixels])
		dst.Mul(wm, src)
		if bias == nil {
			continue
		}
		for o := 0; o < outCh; o++ {
			row := dst.RawRowView(o)
			for p := range row {
				row[p] += bias.data[o]
			}
		}
	}
	return out, nil
}

// Transpose2D returns the transpose of a matrix.
func Transpose2D(w *Real) *Real {
	if w.Dims() != 2 {
		panic(fmt.Sprintf("Transpose2D: expected a matrix, got %v", w.Shape()))
	}
	r, c := w.shape[0], w.shape[1]
	out := Zeros[float64](Shape{c, r})
	out.data = mat.DenseCopyOf(mat.NewDense(r, c, w.data).T()).RawMatrix().Data
	return out
}
