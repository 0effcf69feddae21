package pushstream

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

func TestWorkerPoolBasic(t *testing.T) {
	p := NewWorkerPool(context.Background(), 4)

	var (
		count atomic.Int32
		wg    sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		p.Execute(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()

	require.NoError(t, p.Close(), "no callback panicked; Close should return nil")
	assert.Equal(t, int32(10), count.Load(), "all 10 callbacks should have executed")
}

func TestWorkerPoolConcurrencyLimit(t *testing.T) {
	const workers = 3
	p := NewWorkerPool(context.Background(), workers, WithQueueSize(20))

	var (
		active    atomic.Int32
		maxActive atomic.Int32
		wg        sync.WaitGroup
	)

	for range 20 {
		wg.Add(1)
		p.Execute(func() {
			defer wg.Done()
			cur := active.Add(1)
			for {
				old := maxActive.Load()
				if cur <= old || maxActive.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
		})
	}

	wg.Wait()
	require.NoError(t, p.Close())

	assert.Equal(t, int64(0), p.Stats().Spilled, "queue was large enough")
	assert.LessOrEqual(t, maxActive.Load(), int32(workers),
		"concurrent callbacks should never exceed worker count")
}

func TestWorkerPoolSpillsWhenFull(t *testing.T) {
	p := NewWorkerPool(context.Background(), 1, WithQueueSize(0))

	blocker := make(chan struct{})
	started := make(chan struct{})
	p.Execute(func() {
		close(started)
		<-blocker
	})

	// With an unbuffered queue and no idle worker, Execute must not block.
	<-started
	ran := make(chan struct{})
	p.Execute(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("spilled callback did not run while the worker was busy")
	}

	close(blocker)
	require.NoError(t, p.Close())
	assert.GreaterOrEqual(t, p.Stats().Spilled, int64(1))
}

func TestWorkerPoolPanicRecovery(t *testing.T) {
	p := NewWorkerPool(context.Background(), 2)

	p.Execute(func() {
		panic("callback panic!")
	})

	var ran atomic.Bool
	p.Execute(func() {
		ran.Store(true)
	})

	closeErr := p.Close()
	require.Error(t, closeErr, "panic should surface as error in Close")

	var pe *PanicError
	assert.True(t, errors.As(closeErr, &pe), "error should be a PanicError")
	assert.True(t, ran.Load(), "later callbacks should still run after a panic")
	assert.Equal(t, int64(1), p.Stats().Panicked)
}

func TestWorkerPoolExecuteAfterClose(t *testing.T) {
	p := NewWorkerPool(context.Background(), 2)
	require.NoError(t, p.Close())

	ran := make(chan struct{})
	p.Execute(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("callback submitted after Close was lost")
	}
}

func TestWorkerPoolMetrics(t *testing.T) {
	var calls atomic.Int32
	p := NewWorkerPool(context.Background(), 2, WithPoolMetrics(5*time.Millisecond, func(s PoolStats) {
		calls.Add(1)
		assert.Equal(t, 2, s.Workers)
	}))

	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Close())
}

func TestWorkerPoolPanicOnInvalidArgs(t *testing.T) {
	assert.PanicsWithValue(t, "pushstream: NewWorkerPool requires n > 0", func() {
		NewWorkerPool(context.Background(), 0)
	})
	assert.PanicsWithValue(t, "pushstream: WithQueueSize requires non-negative size", func() {
		NewWorkerPool(context.Background(), 1, WithQueueSize(-1))
	})
	assert.Panics(t, func() {
		WithPoolMetrics(0, func(PoolStats) {})
	})
}
