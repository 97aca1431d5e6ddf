// Package parallel provides the worker fan-out used by the leave-one-out
// pipeline and the brain-model fitter.
package parallel

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
)

// Parallelize divides items into one contiguous range per CPU core and runs fn
// on each range concurrently.
func Parallelize(items int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}

	// ceiling division
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially over [0, items) when items is
// at most threshold and falls back to Parallelize otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ParallelizeErr is ParallelizeWithThreshold for range functions that can fail.
// The error of the lowest failing range is returned so that the result does
// not depend on scheduling.
func ParallelizeErr(items int, threshold int, fn func(start, end int) error) error {
	if items <= threshold {
		return fn(0, items)
	}

	var (
		mu       sync.Mutex
		firstErr error
		firstAt  = items
	)
	Parallelize(items, func(start, end int) {
		err := errors.SafeExecute("parallel.range", func() error { return fn(start, end) })
		if err == nil {
			return
		}
		mu.Lock()
		if start < firstAt {
			firstAt, firstErr = start, err
		}
		mu.Unlock()
	})
	return firstErr
}

// ForEach calls fn(ctx, i) for every i in [0, n) using at most workers
// goroutines. The first failure cancels ctx for the remaining calls and is
// returned. Panics inside fn are converted into errors.
func ForEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if workers < 1 {
		workers = 1
	}
	if workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := errors.SafeExecute("parallel.foreach", func() error { return fn(ctx, i) }); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return errors.SafeExecute("parallel.foreach", func() error { return fn(gctx, i) })
		})
	}
	return g.Wait()
}
