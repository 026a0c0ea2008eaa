package imageio_test

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mrdiff/internal/imageio"
	"github.com/born-ml/mrdiff/internal/serialization"
	"github.com/born-ml/mrdiff/internal/tensor"
)

func TestGray_SingleChannel(t *testing.T) {
	x, err := tensor.FromSlice([]float64{-1, 0, 1, 5}, tensor.Shape{1, 1, 2, 2})
	require.NoError(t, err)

	img, err := imageio.Gray(x)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 128, 255, 255}, img.Pix)
}

func TestGray_TwoChannelsTiled(t *testing.T) {
	// Two images of 1×1 with (re, im) = (-1, -1) and (−1, 0.2).
	x, err := tensor.FromSlice([]float64{-1, -1, -1, 0.2}, tensor.Shape{2, 2, 1, 1})
	require.NoError(t, err)

	img, err := imageio.Gray(x)
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	assert.Equal(t, uint8(0), img.Pix[0])
	assert.Equal(t, uint8(153), img.Pix[1]) // quantized (0, 153)
}

func TestGray_RejectsShape(t *testing.T) {
	_, err := imageio.Gray(tensor.Zeros[float64](tensor.Shape{1, 3, 2, 2}))
	require.ErrorIs(t, err, tensor.ErrShape)
}

func TestPNGSink(t *testing.T) {
	dir := t.TempDir()
	sink := imageio.PNGSink{Dir: dir, Subdirs: true, Zoom: 3}
	require.NoError(t, sink.Write(1234, tensor.Zeros[float64](tensor.Shape{1, 1, 2, 4})))

	f, err := os.Open(filepath.Join(dir, "001000", "001234.png"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())
}

func TestTensorSink(t *testing.T) {
	dir := t.TempDir()
	x, err := tensor.FromSlice([]float64{0.5, -0.25}, tensor.Shape{1, 2, 1, 1})
	require.NoError(t, err)
	sink := imageio.TensorSink{Dir: dir, Metadata: map[string]string{"run_id": "abc"}}
	require.NoError(t, sink.Write(7, x))

	f, err := serialization.Open(filepath.Join(dir, "000007.safetensors"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, "7", f.Metadata()["seed"])
	assert.Equal(t, "abc", f.Metadata()["run_id"])
	got, err := f.Real("image")
	require.NoError(t, err)
	assert.Equal(t, x.Data(), got.Data())
}
