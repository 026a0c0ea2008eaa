// Package random provides per-sample seeded noise sources.
//
// A StackedGenerator owns one generator per batch element. Every draw is
// stacked along the leading axis, so the noise a sample receives depends only
// on its own seed, never on the other members of its batch.
package random

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/mrdiff/internal/tensor"
)

// ErrBatchMismatch is returned when the leading dimension of a requested
// shape differs from the number of generators.
var ErrBatchMismatch = errors.New("random: batch size does not match number of seeds")

// seedModulus reduces seeds to 32 bits.
const seedModulus = 1 << 32

// StackedGenerator is a bank of independent generators, one per batch element.
//
// A StackedGenerator is not safe for concurrent use.
type StackedGenerator struct {
	seeds []int64
	gens  []*rand.Rand
}

// NewStackedGenerator creates one generator per seed. Seeds are reduced
// modulo 2³² to a non-negative value first, so s and s+2³² share a stream.
func NewStackedGenerator(seeds []int64) *StackedGenerator {
	g := &StackedGenerator{
		seeds: make([]int64, len(seeds)),
		gens:  make([]*rand.Rand, len(seeds)),
	}
	for i, s := range seeds {
		r := s % seedModulus
		if r < 0 {
			r += seedModulus
		}
		g.seeds[i] = r
		g.gens[i] = rand.New(rand.NewPCG(uint64(r), 0))
	}
	return g
}

// Len returns the number of generators.
func (g *StackedGenerator) Len() int {
	return len(g.gens)
}

// Seeds returns the reduced seeds.
func (g *StackedGenerator) Seeds() []int64 {
	return g.seeds
}

func (g *StackedGenerator) check(shape tensor.Shape) error {
	if len(shape) == 0 || shape[0] != len(g.gens) {
		return fmt.Errorf("%w: shape %v, %d seeds", ErrBatchMismatch, shape, len(g.gens))
	}
	return shape.Validate()
}

// Randn draws standard-normal values of the given shape. Row i of the
// leading axis comes from generator i.
func (g *StackedGenerator) Randn(shape tensor.Shape) (*tensor.Real, error) {
	if err := g.check(shape); err != nil {
		return nil, err
	}
	out := tensor.Zeros[float64](shape)
	for i, gen := range g.gens {
		row := out.Index(i).Data()
		for j := range row {
			row[j] = gen.NormFloat64()
		}
	}
	return out, nil
}

// RandnLike draws standard-normal values shaped like x.
func (g *StackedGenerator) RandnLike(x *tensor.Real) (*tensor.Real, error) {
	return g.Randn(x.Shape())
}

// Randint draws integers uniformly from [low, high) with the given shape,
// returned flat in row-major order.
func (g *StackedGenerator) Randint(low, high int, shape tensor.Shape) ([]int, error) {
	if err := g.check(shape); err != nil {
		return nil, err
	}
	if high <= low {
		return nil, fmt.Errorf("random: empty interval [%d, %d)", low, high)
	}
	out := make([]int, shape.NumElements())
	per := len(out) / len(g.gens)
	for i, gen := range g.gens {
		for j := range per {
			out[i*per+j] = low + gen.IntN(high-low)
		}
	}
	return out, nil
}
