package loader_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mrdiff/loader"
	"github.com/born-ml/mrdiff/sampler"
)

func TestMeasurementRoundTrip(t *testing.T) {
	ksp, err := sampler.FromComplex([]complex128{1, 2i, 3, 4i}, sampler.Shape{1, 1, 2, 2})
	require.NoError(t, err)
	mask, err := sampler.FromReal([]float64{1, 0, 1, 0}, sampler.Shape{1, 1, 2, 2})
	require.NoError(t, err)
	sens, err := sampler.FromComplex([]complex128{1, 1, 1, 1}, sampler.Shape{1, 2, 2})
	require.NoError(t, err)
	m, err := sampler.NewMeasurement(ksp, mask, sens, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "scan.safetensors")
	require.NoError(t, loader.SaveMeasurement(path, m, map[string]string{"source": "test"}))

	got, err := loader.LoadMeasurement(path)
	require.NoError(t, err)
	assert.Equal(t, m.KSpace.Data(), got.KSpace.Data())
	assert.Equal(t, m.Mask.Data(), got.Mask.Data())
	assert.Nil(t, got.Basis)
}

func TestLoadNetwork_Missing(t *testing.T) {
	_, err := loader.LoadNetwork(filepath.Join(t.TempDir(), "none.safetensors"))
	require.Error(t, err)
}
