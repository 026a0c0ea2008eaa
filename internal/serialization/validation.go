package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// validateEntries checks for negative, overlapping and out-of-bounds data
// offsets. Malformed files must never read past their data section.
func validateEntries(entries map[string]Entry, dataSize int64) error {
	if len(entries) > MaxTensorCount {
		return &ValidationError{
			Err:     ErrOutOfBounds,
			Details: fmt.Sprintf("%d tensors, max %d", len(entries), MaxTensorCount),
		}
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		if err := validateName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return entries[names[i]].DataOffsets[0] < entries[names[j]].DataOffsets[0]
	})

	for i, name := range names {
		start, end := entries[name].DataOffsets[0], entries[name].DataOffsets[1]
		if start < 0 || end < start {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  name,
				Details: fmt.Sprintf("invalid range [%d, %d)", start, end),
			}
		}
		if end > dataSize {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  name,
				Details: fmt.Sprintf("end %d > data size %d", end, dataSize),
			}
		}
		if i < len(names)-1 {
			next := names[i+1]
			if end > entries[next].DataOffsets[0] {
				return &ValidationError{
					Err:     ErrOffsetOverlap,
					Tensor:  name,
					Tensor2: next,
					Details: fmt.Sprintf("regions [%d, %d) and [%d, %d) overlap",
						start, end, entries[next].DataOffsets[0], entries[next].DataOffsets[1]),
				}
			}
		}
	}
	return nil
}

// validateName rejects empty, oversized and control-character names.
func validateName(name string) error {
	if name == "" {
		return &ValidationError{Err: ErrInvalidTensorName, Details: "empty name"}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Err:     ErrInvalidTensorName,
			Tensor:  name[:32] + "...",
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	}
	if strings.ContainsRune(name, 0) {
		return &ValidationError{Err: ErrInvalidTensorName, Tensor: name, Details: "contains null byte"}
	}
	return nil
}
