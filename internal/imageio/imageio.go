// Package imageio writes generated images to disk, one file per seed.
package imageio

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/image/draw"

	"github.com/born-ml/mrdiff/internal/serialization"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// seedDir returns the directory of a seed: dir itself, or with subdirs a
// %06d subdirectory per 1000 seeds.
func seedDir(dir string, seed int64, subdirs bool) (string, error) {
	if subdirs {
		dir = filepath.Join(dir, fmt.Sprintf("%06d", seed-seed%1000))
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}

// quantize maps a sample value in [-1, 1] to a byte.
func quantize(v float64) float64 {
	return math.Trunc(min(max(v*127.5+128, 0), 255))
}

// Gray renders an image batch [K, C, H, W] as one grayscale image with the
// K images side by side. One channel is quantized directly; two channels are
// quantized separately and shown as the magnitude of the pair.
func Gray(x *tensor.Real) (*image.Gray, error) {
	s := x.Shape()
	if len(s) != 4 || (s[1] != 1 && s[1] != 2) {
		return nil, fmt.Errorf("%w: expected [K, 1|2, H, W], got %v", tensor.ErrShape, s)
	}
	k, c, h, w := s[0], s[1], s[2], s[3]
	img := image.NewGray(image.Rect(0, 0, k*w, h))
	data := x.Data()
	for i := 0; i < k; i++ {
		for y := 0; y < h; y++ {
			for xx := 0; xx < w; xx++ {
				re := quantize(data[((i*c)*h+y)*w+xx])
				v := re
				if c == 2 {
					im := quantize(data[((i*c+1)*h+y)*w+xx])
					v = min(math.Hypot(re, im), 255)
				}
				img.Pix[y*img.Stride+i*w+xx] = uint8(v)
			}
		}
	}
	return img, nil
}

// PNGSink writes %06d.png files.
type PNGSink struct {
	Dir     string
	Subdirs bool
	// Zoom, when above 1, enlarges images by nearest-neighbor sampling.
	Zoom int
}

// Write renders and writes the image of one seed.
func (p PNGSink) Write(seed int64, x *tensor.Real) (err error) {
	img, err := Gray(x)
	if err != nil {
		return err
	}
	var out image.Image = img
	if p.Zoom > 1 {
		b := img.Bounds()
		big := image.NewGray(image.Rect(0, 0, b.Dx()*p.Zoom, b.Dy()*p.Zoom))
		draw.NearestNeighbor.Scale(big, big.Rect, img, b, draw.Src, nil)
		out = big
	}

	dir, err := seedDir(p.Dir, seed, p.Subdirs)
	if err != nil {
		return err
	}
	//nolint:gosec // G304: output directory is caller-supplied
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("%06d.png", seed)))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, out)
}

// TensorSink writes the raw sample of every seed as %06d.safetensors with
// the tensor "image" and the seed in the metadata.
type TensorSink struct {
	Dir      string
	Subdirs  bool
	DType    serialization.DType
	Metadata map[string]string
}

// Write writes the sample of one seed.
func (t TensorSink) Write(seed int64, x *tensor.Real) error {
	dtype := t.DType
	if dtype == "" {
		dtype = serialization.F32
	}
	w, err := serialization.NewWriter(dtype)
	if err != nil {
		return err
	}
	if err := w.AddReal("image", x); err != nil {
		return err
	}
	for k, v := range t.Metadata {
		w.SetMetadata(k, v)
	}
	w.SetMetadata("seed", strconv.FormatInt(seed, 10))

	dir, err := seedDir(t.Dir, seed, t.Subdirs)
	if err != nil {
		return err
	}
	return w.WriteFile(filepath.Join(dir, fmt.Sprintf("%06d.safetensors", seed)))
}
