package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/born-ml/mrdiff/internal/tensor"
)

// Writer collects named tensors and writes them as one safetensors file.
// Tensors are written in alphabetical order by name.
type Writer struct {
	dtype    DType
	tensors  map[string]*tensor.Real
	metadata map[string]string
}

// NewWriter creates a writer storing elements as dtype, F64 or F32.
func NewWriter(dtype DType) (*Writer, error) {
	if dtype != F64 && dtype != F32 {
		return nil, fmt.Errorf("%w: cannot write %q", ErrUnsupportedDType, dtype)
	}
	return &Writer{dtype: dtype, tensors: make(map[string]*tensor.Real), metadata: make(map[string]string)}, nil
}

// AddReal adds a real tensor.
func (w *Writer) AddReal(name string, x *tensor.Real) error {
	if err := validateName(name); err != nil {
		return err
	}
	if _, dup := w.tensors[name]; dup {
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "duplicate name"}
	}
	w.tensors[name] = x
	return nil
}

// AddComplex adds a complex tensor stored with a trailing axis of size 2.
func (w *Writer) AddComplex(name string, c *tensor.Complex) error {
	return w.AddReal(name, tensor.ViewAsReal(c))
}

// SetMetadata records a string metadata entry.
func (w *Writer) SetMetadata(key, value string) {
	w.metadata[key] = value
}

// WriteTo writes the file to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	names := make([]string, 0, len(w.tensors))
	for name := range w.tensors {
		names = append(names, name)
	}
	slices.Sort(names)

	head := make(map[string]any, len(names)+1)
	if len(w.metadata) > 0 {
		head[metadataKey] = w.metadata
	}
	var offset int64
	for _, name := range names {
		x := w.tensors[name]
		size := int64(x.NumElements() * w.dtype.Size())
		head[name] = Entry{
			DType:       w.dtype,
			Shape:       []int(x.Shape()),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(head)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal header: %w", err)
	}
	var written int64
	if err := binary.Write(out, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return written, fmt.Errorf("failed to write header size: %w", err)
	}
	written += 8
	n, err := out.Write(headerJSON)
	written += int64(n)
	if err != nil {
		return written, fmt.Errorf("failed to write header: %w", err)
	}

	for _, name := range names {
		data, err := encode(w.dtype, w.tensors[name].Data())
		if err != nil {
			return written, err
		}
		n, err := out.Write(data)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return written, nil
}

// WriteFile writes the file to path.
func (w *Writer) WriteFile(path string) (err error) {
	//nolint:gosec // G304: caller-supplied path is expected
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = w.WriteTo(f)
	return err
}
