// Package generate runs a sampler over lists of seeds: it splits the seeds
// into batches, draws latents and class labels per batch from a per-seed
// generator bank, runs the batches on a bounded set of workers and hands
// every finished image to a Sink.
package generate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrSeeds is returned for malformed seed lists.
var ErrSeeds = errors.New("generate: invalid seed list")

var rangeRe = regexp.MustCompile(`^(\d+)-(\d+)$`)

// ParseIntList parses a comma-separated list of integers and inclusive
// ranges, e.g. "1,2,5-10".
func ParseIntList(s string) ([]int64, error) {
	var out []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if m := rangeRe.FindStringSubmatch(p); m != nil {
			lo, err1 := strconv.ParseInt(m[1], 10, 64)
			hi, err2 := strconv.ParseInt(m[2], 10, 64)
			if err := errors.Join(err1, err2); err != nil {
				return nil, fmt.Errorf("%w: %q: %w", ErrSeeds, p, err)
			}
			if hi < lo {
				return nil, fmt.Errorf("%w: descending range %q", ErrSeeds, p)
			}
			for v := lo; v <= hi; v++ {
				out = append(out, v)
			}
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrSeeds, p)
		}
		out = append(out, v)
	}
	return out, nil
}

// SplitBatches divides seeds into a multiple of workers batches of at most
// maxBatch seeds each. The first len(seeds) mod n batches get one extra
// seed; trailing batches may be empty.
func SplitBatches(seeds []int64, maxBatch, workers int) ([][]int64, error) {
	if maxBatch < 1 || workers < 1 {
		return nil, fmt.Errorf("%w: batch size %d and workers %d must be positive", ErrSeeds, maxBatch, workers)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: no seeds", ErrSeeds)
	}
	n := ((len(seeds)-1)/(maxBatch*workers) + 1) * workers
	batches := make([][]int64, n)
	size, extra := len(seeds)/n, len(seeds)%n
	start := 0
	for i := range batches {
		end := start + size
		if i < extra {
			end++
		}
		batches[i] = seeds[start:end]
		start = end
	}
	return batches, nil
}

// expandSeeds derives the generator seeds of a batch whose reconstructions
// each span rank batch elements: seed s owns s·rank, …, s·rank+rank−1.
func expandSeeds(seeds []int64, rank int) []int64 {
	if rank == 1 {
		return seeds
	}
	out := make([]int64, 0, len(seeds)*rank)
	for _, s := range seeds {
		for k := range rank {
			out = append(out, s*int64(rank)+int64(k))
		}
	}
	return out
}
