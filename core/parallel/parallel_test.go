package parallel

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParallelizeCoversEveryItem(t *testing.T) {
	for _, items := range []int{0, 1, 7, 1000} {
		seen := make([]int32, items)
		Parallelize(items, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, c := range seen {
			assert.Equalf(t, int32(1), c, "item %d of %d visited %d times", i, items, c)
		}
	}
}

func TestParallelizeWithThresholdSequential(t *testing.T) {
	calls := 0
	ParallelizeWithThreshold(10, 100, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, end)
	})
	assert.Equal(t, 1, calls)
}

func TestParallelizeErrReturnsLowestRangeError(t *testing.T) {
	boom := errors.New("boom")
	err := ParallelizeErr(10000, 10, func(start, end int) error {
		if start > 0 {
			return errors.Wrapf(boom, "range %d", start)
		}
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	err = ParallelizeErr(5, 10, func(start, end int) error { return nil })
	assert.NoError(t, err)
}

func TestParallelizeErrRecoversPanics(t *testing.T) {
	err := ParallelizeErr(10000, 10, func(start, end int) error {
		panic("bad edge")
	})
	var panicErr *errors.PanicError
	require.True(t, errors.As(err, &panicErr))
}

func TestForEach(t *testing.T) {
	for _, workers := range []int{0, 1, 4} {
		out := make([]int, 50)
		err := ForEach(context.Background(), len(out), workers, func(_ context.Context, i int) error {
			out[i] = i * i
			return nil
		})
		require.NoError(t, err)
		for i, v := range out {
			assert.Equal(t, i*i, v)
		}
	}
}

func TestForEachStopsOnError(t *testing.T) {
	boom := errors.New("fold failed")
	for _, workers := range []int{1, 3} {
		var ran int32
		err := ForEach(context.Background(), 100, workers, func(ctx context.Context, i int) error {
			atomic.AddInt32(&ran, 1)
			if i == 2 {
				return boom
			}
			return nil
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))
		assert.Less(t, atomic.LoadInt32(&ran), int32(100))
	}
}

func TestForEachCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ForEach(ctx, 5, 1, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForEachRecoversPanics(t *testing.T) {
	err := ForEach(context.Background(), 3, 2, func(_ context.Context, i int) error {
		if i == 1 {
			panic("index out of range")
		}
		return nil
	})
	var panicErr *errors.PanicError
	require.True(t, errors.As(err, &panicErr))
}
