// Package generate runs a sampler over a list of seeds.
//
// This package wraps the internal generate implementation and exports a
// public API for batch generation with per-seed reproducible latents.
//
// Example usage:
//
//	seeds, _ := generate.ParseIntList("0-63")
//	r := &generate.Runner{
//	    NewSampler: func(obs sampler.Observer) (sampler.Sampler, error) {
//	        return sampler.NewEDM(net, sampler.DefaultEDMConfig(), sampler.WithObserver(obs))
//	    },
//	    Sink:     generate.PNGSink{Dir: "out"},
//	    Channels: 2, Height: 64, Width: 64,
//	    ClassIdx: generate.NoClass,
//	    MaxBatch: 16,
//	}
//	err := r.Run(ctx, seeds)
package generate

import (
	"github.com/born-ml/mrdiff/internal/generate"
	"github.com/born-ml/mrdiff/internal/imageio"
)

// Runner generates one image per seed.
type Runner = generate.Runner

// Factory builds the sampler of one batch.
type Factory = generate.Factory

// Sink receives finished images.
type Sink = generate.Sink

// SinkFunc adapts a function to Sink.
type SinkFunc = generate.SinkFunc

// MultiSink writes every image to each of its sinks.
type MultiSink = generate.MultiSink

// PNGSink writes %06d.png files.
type PNGSink = imageio.PNGSink

// TensorSink writes %06d.safetensors files.
type TensorSink = imageio.TensorSink

// NoClass draws a class label per seed.
const NoClass = generate.NoClass

// Errors for malformed inputs.
var (
	ErrSeeds  = generate.ErrSeeds
	ErrLabels = generate.ErrLabels
)

// ParseIntList parses a comma-separated list of integers and inclusive
// ranges, e.g. "1,2,5-10".
func ParseIntList(s string) ([]int64, error) {
	return generate.ParseIntList(s)
}

// SplitBatches splits seeds into batches of at most maxBatch, in a count
// divisible by workers.
func SplitBatches(seeds []int64, maxBatch, workers int) ([][]int64, error) {
	return generate.SplitBatches(seeds, maxBatch, workers)
}
