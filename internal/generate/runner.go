package generate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/mrdiff/internal/random"
	"github.com/born-ml/mrdiff/internal/sampler"
	"github.com/born-ml/mrdiff/internal/tensor"
)

// Factory builds a fresh sampler for one batch. Every batch owns its
// sampler, so samplers and their operators are never shared between
// goroutines.
type Factory func(obs sampler.Observer) (sampler.Sampler, error)

// Sink receives finished images. Write is called concurrently from
// different batches.
type Sink interface {
	Write(seed int64, image *tensor.Real) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(seed int64, image *tensor.Real) error

// Write implements Sink.
func (f SinkFunc) Write(seed int64, image *tensor.Real) error {
	return f(seed, image)
}

// MultiSink writes every image to each of its sinks in order.
type MultiSink []Sink

// Write implements Sink.
func (m MultiSink) Write(seed int64, image *tensor.Real) error {
	for _, s := range m {
		if err := s.Write(seed, image); err != nil {
			return err
		}
	}
	return nil
}

// Runner generates one image per seed.
type Runner struct {
	NewSampler Factory
	Sink       Sink

	// Channels, Height and Width give the image size of the latents.
	Channels, Height, Width int
	// Rank is the number of batch elements per image, the coefficient
	// count of a measurement operator; 0 means 1.
	Rank int
	// LabelDim is the class-label width of the denoiser, 0 if unconditional.
	LabelDim int
	// ClassIdx fixes the class label; NoClass draws it per seed.
	ClassIdx int

	MaxBatch int
	Workers  int

	// Observer, when set, returns the observer of the batch with the given seeds.
	Observer func(seeds []int64) sampler.Observer
	Logger   *slog.Logger
}

// Run generates images for seeds and stops at the first failing batch.
func (r *Runner) Run(ctx context.Context, seeds []int64) error {
	workers := max(r.Workers, 1)
	batches, err := SplitBatches(seeds, max(r.MaxBatch, 1), workers)
	if err != nil {
		return err
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Info("generating", "images", len(seeds), "batches", len(batches), "workers", workers)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			if err := r.runBatch(ctx, batch); err != nil {
				return fmt.Errorf("batch %d (seeds %d-%d): %w", i, batch[0], batch[len(batch)-1], err)
			}
			logger.Debug("batch finished", "batch", i, "size", len(batch), "elapsed", time.Since(start))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("done", "images", len(seeds))
	return nil
}

func (r *Runner) runBatch(ctx context.Context, seeds []int64) error {
	rank := max(r.Rank, 1)
	rnd := random.NewStackedGenerator(expandSeeds(seeds, rank))
	latents, err := rnd.Randn(tensor.Shape{rnd.Len(), r.Channels, r.Height, r.Width})
	if err != nil {
		return err
	}
	labels, err := drawLabels(rnd, r.LabelDim, r.ClassIdx)
	if err != nil {
		return err
	}

	var obs sampler.Observer = sampler.Nop{}
	if r.Observer != nil {
		obs = r.Observer(seeds)
	}
	s, err := r.NewSampler(obs)
	if err != nil {
		return err
	}
	images, err := s.Sample(ctx, latents, labels, rnd)
	if err != nil {
		return err
	}

	for i, seed := range seeds {
		if err := r.Sink.Write(seed, images.Slice(i*rank, (i+1)*rank).Clone()); err != nil {
			return fmt.Errorf("write seed %d: %w", seed, err)
		}
	}
	return nil
}
