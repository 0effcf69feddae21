package pushstream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// WorkerPool is a [Scheduler] backed by a fixed number of worker
// goroutines reading from a bounded queue.
//
// Execute never blocks: when the queue is full, or the pool is closed, the
// callback runs on a fresh goroutine instead ("spilled"). Acknowledgment
// continuations often schedule further continuations from inside a worker,
// and a blocking Execute would let a saturated pool wait on itself.
type WorkerPool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	errMu sync.Mutex
	errs  []error

	// Observability counters.
	submitted atomic.Int64
	spilled   atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	inFlight  atomic.Int64
	workers   int
}

// PoolStats provides a point-in-time snapshot of pool activity.
type PoolStats struct {
	Submitted  int64 // callbacks queued for the workers
	Spilled    int64 // callbacks run on their own goroutine
	Completed  int64 // callbacks finished, panicked or not
	Panicked   int64 // callbacks that panicked
	InFlight   int64 // callbacks currently executing
	QueueDepth int   // callbacks waiting in the queue
	Workers    int   // worker count (fixed at creation)
}

// PoolOption configures a [WorkerPool].
type PoolOption func(*poolConfig)

type poolConfig struct {
	queueSize       int
	onMetrics       func(PoolStats)
	metricsInterval time.Duration
}

// WithQueueSize sets the callback queue buffer size. Default is n * 2.
func WithQueueSize(size int) PoolOption {
	return func(c *poolConfig) {
		if size < 0 {
			panic("pushstream: WithQueueSize requires non-negative size")
		}
		c.queueSize = size
	}
}

// WithPoolMetrics registers a periodic pool metrics callback that fires
// every interval. The callback receives a snapshot of current pool counters.
//
// Panics if interval <= 0 or fn is nil.
func WithPoolMetrics(interval time.Duration, fn func(PoolStats)) PoolOption {
	if interval <= 0 {
		panic("pushstream: WithPoolMetrics requires interval > 0")
	}
	if fn == nil {
		panic("pushstream: WithPoolMetrics requires non-nil callback")
	}
	return func(c *poolConfig) {
		c.onMetrics = fn
		c.metricsInterval = interval
	}
}

// NewWorkerPool creates a pool with n worker goroutines.
// Workers start immediately and run callbacks until [WorkerPool.Close].
// Panics if n <= 0.
func NewWorkerPool(
	ctx context.Context,
	n int,
	opts ...PoolOption,
) *WorkerPool {
	if n <= 0 {
		panic("pushstream: NewWorkerPool requires n > 0")
	}

	cfg := poolConfig{queueSize: n * 2}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &WorkerPool{
		tasks:   make(chan func(), cfg.queueSize),
		ctx:     ctx,
		cancel:  cancel,
		workers: n,
	}

	p.wg.Add(n)
	for range n {
		go p.worker()
	}

	if cfg.onMetrics != nil {
		go func() {
			ticker := time.NewTicker(cfg.metricsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if p.closed.Load() {
						return
					}
					cfg.onMetrics(p.Stats())
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for fn := range p.tasks {
		p.run(fn)
	}
}

func (p *WorkerPool) run(fn func()) {
	p.inFlight.Add(1)
	defer func() {
		p.inFlight.Add(-1)
		p.completed.Add(1)
	}()

	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.errMu.Lock()
			p.errs = append(p.errs, newPanicError(r))
			p.errMu.Unlock()
		}
	}()
	fn()
}

// Execute queues fn for a worker, or runs it on a new goroutine when the
// queue is full or the pool has been closed.
func (p *WorkerPool) Execute(fn func()) {
	if p.closed.Load() || !p.tryQueue(fn) {
		p.spilled.Add(1)
		go p.run(fn)
	}
}

func (p *WorkerPool) tryQueue(fn func()) (queued bool) {
	// Close may close the queue between the closed check and the send;
	// the send then panics and the callback is spilled instead.
	defer func() {
		if r := recover(); r != nil {
			queued = false
		}
	}()

	select {
	case p.tasks <- fn:
		p.submitted.Add(1)
		return true
	default:
		return false
	}
}

// Stats returns a point-in-time snapshot of pool activity.
// Safe to call concurrently.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Submitted:  p.submitted.Load(),
		Spilled:    p.spilled.Load(),
		Completed:  p.completed.Load(),
		Panicked:   p.panicked.Load(),
		InFlight:   p.inFlight.Load(),
		QueueDepth: len(p.tasks),
		Workers:    p.workers,
	}
}

// Close stops the workers after the queue drains and returns the panics
// raised by callbacks so far, joined, as [*PanicError] values. Spilled
// callbacks still running are not waited for.
// Safe to call multiple times.
func (p *WorkerPool) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		close(p.tasks)
	}
	p.wg.Wait()
	p.cancel()

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return errors.Join(p.errs...)
}
