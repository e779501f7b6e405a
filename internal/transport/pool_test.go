package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_ConcurrencyLimit(t *testing.T) {
	pool := NewWorkerPool(3)
	defer pool.Shutdown()

	var current, peak int64
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		err := pool.Submit(context.Background(), func(context.Context) error {
			c := atomic.AddInt64(&current, 1)
			mu.Lock()
			if c > peak {
				peak = c
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return nil
		}, nil)
		require.NoError(t, err)
	}
	pool.Wait()

	assert.LessOrEqual(t, peak, int64(3))
	assert.Equal(t, int64(10), pool.Metrics().Completed)
}

func TestWorkerPool_OnDoneReceivesOutcome(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	results := make(chan error, 2)
	boom := errors.New("boom")
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error { return boom }, func(err error) { results <- err }))
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error { panic("kaput") }, func(err error) { results <- err }))
	pool.Wait()

	first, second := <-results, <-results
	if !errors.Is(first, boom) {
		first, second = second, first
	}
	assert.ErrorIs(t, first, boom)
	assert.ErrorContains(t, second, "kaput")
	m := pool.Metrics()
	assert.Equal(t, int64(2), m.Failed)
	assert.Equal(t, int64(1), m.Panics)
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Shutdown()
	pool.Shutdown()
	err := pool.Submit(context.Background(), func(context.Context) error { return nil }, nil)
	assert.ErrorIs(t, err, ErrPoolShutdown)
}

func TestWorkerPool_SubmitRespectsContext(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Shutdown()

	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		<-release
		return nil
	}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func(context.Context) error { return nil }, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
