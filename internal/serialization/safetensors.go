// Package serialization reads and writes tensors in the safetensors format:
//
//	[8 bytes: header size N (uint64 LE)]
//	[N bytes: JSON header]
//	[tensor data: raw little-endian bytes]
//
// Tensors are decoded to float64. Complex tensors are stored as real tensors
// with a trailing axis of size 2 holding real and imaginary parts.
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

const metadataKey = "__metadata__"

// Entry describes one tensor in the header.
type Entry struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// header is the parsed JSON header.
type header struct {
	Metadata map[string]string
	Tensors  map[string]Entry
}

// UnmarshalJSON separates the metadata block from the tensor entries.
func (h *header) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if meta, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(meta, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		delete(raw, metadataKey)
	}
	h.Tensors = make(map[string]Entry, len(raw))
	for name, value := range raw {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", name, err)
		}
		h.Tensors[name] = e
	}
	return nil
}

// File is an open safetensors file. Reads are independent of each other.
type File struct {
	r          io.ReaderAt
	closer     io.Closer
	header     header
	dataOffset int64
}

// Open opens and validates a safetensors file.
func Open(path string) (*File, error) {
	//nolint:gosec // G304: caller-supplied path is expected
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	sf, err := NewFile(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sf.closer = f
	return sf, nil
}

// NewFile parses the header of safetensors data of the given total size.
func NewFile(r io.ReaderAt, size int64) (*File, error) {
	var prefix [8]byte
	if _, err := r.ReadAt(prefix[:], 0); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	headerSize := binary.LittleEndian.Uint64(prefix[:])
	if headerSize > MaxHeaderSize || int64(headerSize) > size-8 { //nolint:gosec // bounded by MaxHeaderSize
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	buf := make([]byte, headerSize)
	if _, err := r.ReadAt(buf, 8); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	var h header
	if err := json.Unmarshal(buf, &h); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	dataOffset := 8 + int64(headerSize) //nolint:gosec // bounded by MaxHeaderSize
	if err := validateEntries(h.Tensors, size-dataOffset); err != nil {
		return nil, err
	}
	for name, e := range h.Tensors {
		if err := checkEntry(name, e); err != nil {
			return nil, err
		}
	}
	return &File{r: r, header: h, dataOffset: dataOffset}, nil
}

// checkEntry verifies that the byte range of e matches its dtype and shape.
func checkEntry(name string, e Entry) error {
	size := e.DType.Size()
	if size == 0 {
		return fmt.Errorf("tensor %s: %w: %q", name, ErrUnsupportedDType, e.DType)
	}
	n := 1
	for _, d := range e.Shape {
		if d < 0 {
			return fmt.Errorf("tensor %s: %w: negative dimension in %v", name, tensor.ErrShape, e.Shape)
		}
		n *= d
	}
	if got := e.DataOffsets[1] - e.DataOffsets[0]; got != int64(n*size) {
		return &ValidationError{
			Err:     ErrOutOfBounds,
			Tensor:  name,
			Details: fmt.Sprintf("%d bytes for %s%v", got, e.DType, e.Shape),
		}
	}
	return nil
}

// Close releases the underlying file, if any.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Metadata returns the string metadata of the header.
func (f *File) Metadata() map[string]string {
	return f.header.Metadata
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.header.Tensors))
	for name := range f.header.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether the file contains a tensor.
func (f *File) Has(name string) bool {
	_, ok := f.header.Tensors[name]
	return ok
}

// Entry returns the header entry of a tensor.
func (f *File) Entry(name string) (Entry, error) {
	e, ok := f.header.Tensors[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return e, nil
}

// Real loads a tensor as float64.
func (f *File) Real(name string) (*tensor.Real, error) {
	e, err := f.Entry(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, e.DataOffsets[1]-e.DataOffsets[0])
	if _, err := f.r.ReadAt(data, f.dataOffset+e.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}
	shape := tensor.Shape(slices.Clone(e.Shape))
	values, err := decode(e.DType, data, shape.NumElements())
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return tensor.FromSlice(values, shape)
}

// Complex loads a complex tensor of the given rank. The file stores it
// either with a trailing axis of size 2 holding real and imaginary parts, or
// as a real tensor of that rank with zero imaginary part.
func (f *File) Complex(name string, dims int) (*tensor.Complex, error) {
	x, err := f.Real(name)
	if err != nil {
		return nil, err
	}
	switch s := x.Shape(); {
	case len(s) == dims+1 && s[dims] == 2:
		return tensor.ViewAsComplex(x)
	case len(s) == dims:
		return tensor.Promote(x), nil
	default:
		return nil, &ValidationError{
			Err:     ErrNotComplex,
			Tensor:  name,
			Details: fmt.Sprintf("shape %v for a rank-%d complex tensor", s, dims),
		}
	}
}
