// Package loader reads acquisitions and denoiser weights from safetensors
// files and writes them back.
package loader

import (
	"errors"
	"fmt"

	"github.com/born-ml/mrdiff/internal/serialization"
)

// ErrMissing is returned when a required tensor is absent.
var ErrMissing = errors.New("loader: required tensor missing")

// Canonical measurement keys.
const (
	KeyKSpace    = "ksp"
	KeyMask      = "mask"
	KeySens      = "sens"
	KeyBasis     = "basis"
	KeyReference = "reference"
)

// aliases lists the names other toolchains use for the canonical keys.
var aliases = map[string][]string{
	KeyKSpace:    {"kspace", "k_space"},
	KeyMask:      {"sampling_mask", "pattern"},
	KeySens:      {"maps", "sens_maps", "sensitivities"},
	KeyBasis:     {"phi", "temporal_basis"},
	KeyReference: {"ref", "target"},
}

// resolve returns the name under which key is stored in f, and whether it
// was found.
func resolve(f *serialization.File, key string) (string, bool) {
	if f.Has(key) {
		return key, true
	}
	for _, alt := range aliases[key] {
		if f.Has(alt) {
			return alt, true
		}
	}
	return "", false
}

func lookup(f *serialization.File, key string) (string, error) {
	name, ok := resolve(f, key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissing, key)
	}
	return name, nil
}
