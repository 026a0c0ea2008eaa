package loader

import (
	"fmt"

	"github.com/born-ml/mrdiff/internal/mri"
	"github.com/born-ml/mrdiff/internal/serialization"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// LoadMeasurement reads an acquisition. Complex tensors are stored with a
// trailing axis of size 2:
//
//	ksp       [T, C, H, W, 2]
//	mask      [H, W], [T, H, W] or [T|1, 1, H, W]
//	sens      [C, H, W, 2] or [1, C, H, W, 2]
//	basis     [T, R] or [T, R, 2] (optional)
//	reference [K, H, W] or [K, H, W, 2] (optional)
func LoadMeasurement(path string) (*mri.Measurement, error) {
	f, err := serialization.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	m, err := readMeasurement(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func readMeasurement(f *serialization.File) (*mri.Measurement, error) {
	ksp, err := readComplex(f, KeyKSpace, 4)
	if err != nil {
		return nil, err
	}
	maskName, err := lookup(f, KeyMask)
	if err != nil {
		return nil, err
	}
	mask, err := f.Real(maskName)
	if err != nil {
		return nil, err
	}

	sensName, err := lookup(f, KeySens)
	if err != nil {
		return nil, err
	}
	e, err := f.Entry(sensName)
	if err != nil {
		return nil, err
	}
	sens, err := f.Complex(sensName, len(e.Shape)-1)
	if err != nil {
		return nil, err
	}

	var basis *tensor.Complex
	if name, ok := resolve(f, KeyBasis); ok {
		if basis, err = f.Complex(name, 2); err != nil {
			return nil, err
		}
	}

	m, err := mri.NewMeasurement(ksp, mask, sens, basis)
	if err != nil {
		return nil, err
	}
	if name, ok := resolve(f, KeyReference); ok {
		if m.Reference, err = f.Complex(name, 3); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func readComplex(f *serialization.File, key string, dims int) (*tensor.Complex, error) {
	name, err := lookup(f, key)
	if err != nil {
		return nil, err
	}
	return f.Complex(name, dims)
}

// SaveMeasurement writes m in the layout LoadMeasurement reads.
func SaveMeasurement(path string, m *mri.Measurement, metadata map[string]string) error {
	w, err := serialization.NewWriter(serialization.F64)
	if err != nil {
		return err
	}
	for key, value := range metadata {
		w.SetMetadata(key, value)
	}
	entries := []struct {
		key string
		c   *tensor.Complex
	}{
		{KeyKSpace, m.KSpace},
		{KeySens, m.Sens},
		{KeyBasis, m.Basis},
		{KeyReference, m.Reference},
	}
	for _, e := range entries {
		if e.c == nil {
			continue
		}
		if err := w.AddComplex(e.key, e.c); err != nil {
			return err
		}
	}
	if err := w.AddReal(KeyMask, m.Mask); err != nil {
		return err
	}
	return w.WriteFile(path)
}
