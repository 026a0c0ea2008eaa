// Package loader reads and writes the safetensors files of mrdiff:
// acquisitions (k-space, mask, coil sensitivities, optional temporal basis
// and reference) and the weights of the pointwise denoising network.
//
// This package wraps the internal loader and exports its public API.
//
// Example usage:
//
//	m, err := loader.LoadMeasurement("scan.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(m.Frames(), m.Coils(), m.MaxRank())
package loader

import (
	"github.com/born-ml/mrdiff/internal/denoise"
	"github.com/born-ml/mrdiff/internal/loader"
	"github.com/born-ml/mrdiff/internal/mri"
)

// Tensor keys of a measurement file. Common aliases such as "kspace" and
// "maps" are accepted when reading.
const (
	KeyKSpace    = loader.KeyKSpace
	KeyMask      = loader.KeyMask
	KeySens      = loader.KeySens
	KeyBasis     = loader.KeyBasis
	KeyReference = loader.KeyReference
)

// ErrMissing is returned when a required tensor is absent.
var ErrMissing = loader.ErrMissing

// LoadMeasurement reads an acquisition.
func LoadMeasurement(path string) (*mri.Measurement, error) {
	return loader.LoadMeasurement(path)
}

// SaveMeasurement writes m with optional string metadata.
func SaveMeasurement(path string, m *mri.Measurement, metadata map[string]string) error {
	return loader.SaveMeasurement(path, m, metadata)
}

// LoadNetwork reads a pointwise denoising network.
func LoadNetwork(path string) (*denoise.Network, error) {
	return loader.LoadNetwork(path)
}

// SaveNetwork writes the weights and metadata of n.
func SaveNetwork(path string, n *denoise.Network) error {
	return loader.SaveNetwork(path, n)
}
