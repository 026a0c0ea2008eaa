package generate_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mrdiff/internal/denoise"
	"github.com/born-ml/mrdiff/internal/generate"
	"github.com/born-ml/mrdiff/internal/mri"
	"github.com/born-ml/mrdiff/internal/random"
	"github.com/born-ml/mrdiff/internal/sampler"
	"github.com/born-ml/mrdiff/internal/tensor"
)

func TestParseIntList(t *testing.T) {
	tests := []struct {
		in      string
		want    []int64
		wantErr bool
	}{
		{"0", []int64{0}, false},
		{"1,2,5-10", []int64{1, 2, 5, 6, 7, 8, 9, 10}, false},
		{"3-3, 7", []int64{3, 7}, false},
		{"5-2", nil, true},
		{"a", nil, true},
		{"1,,2", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := generate.ParseIntList(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, generate.ErrSeeds)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitBatches(t *testing.T) {
	seeds := []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	batches, err := generate.SplitBatches(seeds, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{0, 1, 2}, {3, 4, 5}, {6, 7}, {8, 9}}, batches)

	batches, err = generate.SplitBatches(seeds, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{0, 1, 2}, {3, 4, 5}, {6, 7}, {8, 9}}, batches)

	batches, err = generate.SplitBatches([]int64{42}, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{42}, {}}, batches)

	_, err = generate.SplitBatches(nil, 4, 1)
	require.ErrorIs(t, err, generate.ErrSeeds)
	_, err = generate.SplitBatches(seeds, 0, 1)
	require.ErrorIs(t, err, generate.ErrSeeds)
}

// passthrough returns the latents and records the labels it saw.
type passthrough struct {
	mu     sync.Mutex
	labels []*tensor.Real
}

func (p *passthrough) Sample(_ context.Context, latents, labels *tensor.Real, _ sampler.NoiseSource) (*tensor.Real, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels = append(p.labels, labels)
	return latents.Clone(), nil
}

type collector struct {
	mu     sync.Mutex
	images map[int64]*tensor.Real
}

func (c *collector) Write(seed int64, image *tensor.Real) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.images == nil {
		c.images = make(map[int64]*tensor.Real)
	}
	c.images[seed] = image
	return nil
}

func TestRunner_PerSeedLatents(t *testing.T) {
	sink := &collector{}
	s := &passthrough{}
	r := &generate.Runner{
		NewSampler: func(sampler.Observer) (sampler.Sampler, error) { return s, nil },
		Sink:       sink,
		Channels:   2, Height: 3, Width: 3,
		ClassIdx: generate.NoClass,
		MaxBatch: 2,
		Workers:  3,
	}
	seeds := []int64{5, 6, 7, 8, 9}
	require.NoError(t, r.Run(context.Background(), seeds))
	require.Len(t, sink.images, len(seeds))

	for _, seed := range seeds {
		want, err := random.NewStackedGenerator([]int64{seed}).Randn(tensor.Shape{1, 2, 3, 3})
		require.NoError(t, err)
		assert.Equal(t, want.Data(), sink.images[seed].Data(), "seed %d", seed)
	}
	for _, l := range s.labels {
		assert.Nil(t, l)
	}
}

func TestRunner_RankGroupsBatchElements(t *testing.T) {
	sink := &collector{}
	r := &generate.Runner{
		NewSampler: func(sampler.Observer) (sampler.Sampler, error) { return &passthrough{}, nil },
		Sink:       sink,
		Channels:   2, Height: 2, Width: 2,
		Rank:     3,
		ClassIdx: generate.NoClass,
		MaxBatch: 4,
	}
	require.NoError(t, r.Run(context.Background(), []int64{0, 1}))
	require.Len(t, sink.images, 2)
	assert.Equal(t, tensor.Shape{3, 2, 2, 2}, sink.images[1].Shape())

	want, err := random.NewStackedGenerator([]int64{3, 4, 5}).Randn(tensor.Shape{3, 2, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, want.Data(), sink.images[1].Data())
}

func TestRunner_Labels(t *testing.T) {
	s := &passthrough{}
	r := &generate.Runner{
		NewSampler: func(sampler.Observer) (sampler.Sampler, error) { return s, nil },
		Sink:       &collector{},
		Channels:   1, Height: 2, Width: 2,
		LabelDim: 4,
		ClassIdx: 2,
		MaxBatch: 8,
	}
	require.NoError(t, r.Run(context.Background(), []int64{1, 2, 3}))
	require.Len(t, s.labels, 1)
	labels := s.labels[0]
	assert.Equal(t, tensor.Shape{3, 4}, labels.Shape())
	for i := range 3 {
		assert.Equal(t, []float64{0, 0, 1, 0}, labels.Index(i).Data())
	}

	s.labels = nil
	r.ClassIdx = generate.NoClass
	require.NoError(t, r.Run(context.Background(), []int64{1, 2, 3}))
	for i := range 3 {
		row := s.labels[0].Index(i)
		assert.Equal(t, 1.0, row.Sum(), "one-hot row %d", i)
	}
}

func TestRunner_LabelErrors(t *testing.T) {
	r := &generate.Runner{
		NewSampler: func(sampler.Observer) (sampler.Sampler, error) { return &passthrough{}, nil },
		Sink:       &collector{},
		Channels:   1, Height: 2, Width: 2,
		ClassIdx: 1,
		MaxBatch: 1,
	}
	require.ErrorIs(t, r.Run(context.Background(), []int64{0}), generate.ErrLabels)

	r.LabelDim = 1
	require.ErrorIs(t, r.Run(context.Background(), []int64{0}), generate.ErrLabels)
}

func TestRunner_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	r := &generate.Runner{
		NewSampler: func(sampler.Observer) (sampler.Sampler, error) { return nil, boom },
		Sink:       &collector{},
		Channels:   1, Height: 2, Width: 2,
		ClassIdx: generate.NoClass,
		MaxBatch: 1,
		Workers:  2,
	}
	require.ErrorIs(t, r.Run(context.Background(), []int64{0, 1, 2, 3}), boom)
}

func TestRunner_WithRealSampler(t *testing.T) {
	net, err := denoise.NewGaussian(1, 0.5, 0.1)
	require.NoError(t, err)
	cfg := sampler.DefaultEDMConfig()
	cfg.NumSteps = 4

	var mu sync.Mutex
	started := 0
	sink := &collector{}
	r := &generate.Runner{
		NewSampler: func(obs sampler.Observer) (sampler.Sampler, error) {
			return sampler.NewEDM(net, cfg, sampler.WithObserver(obs))
		},
		Sink:     sink,
		Channels: 1, Height: 4, Width: 4,
		ClassIdx: generate.NoClass,
		MaxBatch: 2,
		Workers:  2,
		Observer: func([]int64) sampler.Observer {
			mu.Lock()
			defer mu.Unlock()
			started++
			return sampler.Nop{}
		},
	}
	require.NoError(t, r.Run(context.Background(), []int64{0, 1, 2}))
	assert.Len(t, sink.images, 3)
	assert.Equal(t, 2, started)
}

func randomComplex(rng *rand.Rand, shape tensor.Shape) *tensor.Complex {
	x := tensor.Zeros[complex128](shape)
	for i := range x.Data() {
		x.Data()[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	return x
}

func TestRunner_AblationUnevenBatches(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	m, err := mri.NewMeasurement(
		randomComplex(rng, tensor.Shape{4, 2, 4, 4}),
		tensor.Ones[float64](tensor.Shape{4, 1, 4, 4}),
		randomComplex(rng, tensor.Shape{2, 4, 4}),
		randomComplex(rng, tensor.Shape{4, 3}),
	)
	require.NoError(t, err)

	cfg := sampler.DefaultAblationConfig()
	cfg.Discretization = "edm"
	cfg.Schedule = "linear"
	cfg.Scaling = "none"
	cfg.NumSteps = 2
	cfg.LikelihoodSteps = []float64{7.5, 15, 20}

	sink := &collector{}
	r := &generate.Runner{
		NewSampler: func(obs sampler.Observer) (sampler.Sampler, error) {
			op, err := mri.NewOperator(m, 3)
			if err != nil {
				return nil, err
			}
			return sampler.NewAblation(denoise.NewIdentity(2), cfg, sampler.WithOperator(op), sampler.WithObserver(obs))
		},
		Sink:     sink,
		Channels: 2, Height: 4, Width: 4,
		Rank:     3,
		ClassIdx: generate.NoClass,
		MaxBatch: 3,
	}
	// Five seeds split into batches of three and two reconstructions.
	require.NoError(t, r.Run(context.Background(), []int64{0, 1, 2, 3, 4}))
	require.Len(t, sink.images, 5)
	for seed, img := range sink.images {
		assert.Equal(t, tensor.Shape{3, 2, 4, 4}, img.Shape(), "seed %d", seed)
	}
}

func TestMultiSink(t *testing.T) {
	var order []string
	boom := errors.New("boom")
	m := generate.MultiSink{
		generate.SinkFunc(func(int64, *tensor.Real) error { order = append(order, "a"); return nil }),
		generate.SinkFunc(func(int64, *tensor.Real) error { order = append(order, "b"); return boom }),
		generate.SinkFunc(func(int64, *tensor.Real) error { order = append(order, "c"); return nil }),
	}
	require.ErrorIs(t, m.Write(1, nil), boom)
	assert.Equal(t, []string{"a", "b"}, order)
}
