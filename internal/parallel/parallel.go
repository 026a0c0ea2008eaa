// Package parallel splits index ranges across goroutines for per-plane work.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a range is split.
type Config struct {
	Enabled  bool // false runs everything on the calling goroutine
	Workers  int  // upper bound on concurrent chunks
	MinChunk int  // smallest number of indices per chunk
}

// DefaultConfig uses every available CPU and at least minChunk indices
// per goroutine.
func DefaultConfig(minChunk int) Config {
	n := runtime.GOMAXPROCS(0)
	return Config{
		Enabled:  n > 1,
		Workers:  n,
		MinChunk: max(minChunk, 1),
	}
}

// Chunks calls f on disjoint ranges [start, end) that cover [0, n) and
// returns when all calls have returned. Each call may keep its own scratch
// state; ranges run concurrently only when there is more than one.
func Chunks(n int, cfg Config, f func(start, end int)) {
	if n <= 0 {
		return
	}
	if !cfg.Enabled || cfg.Workers < 2 || n < 2*max(cfg.MinChunk, 1) {
		f(0, n)
		return
	}

	size := max((n+cfg.Workers-1)/cfg.Workers, cfg.MinChunk)
	var wg sync.WaitGroup
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(start, end)
		}()
	}
	wg.Wait()
}

// For calls f(i) for every i in [0, n).
func For(n int, cfg Config, f func(i int)) {
	Chunks(n, cfg, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	})
}
