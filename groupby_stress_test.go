package pushstream

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// epochLog collects what each group consumer read, keyed by epoch.
type epochLog struct {
	mu    sync.Mutex
	keys  map[uint64]string
	items map[uint64][]int
}

func newEpochLog() *epochLog {
	return &epochLog{keys: map[uint64]string{}, items: map[uint64][]int{}}
}

func (l *epochLog) add(epoch uint64, key string, v int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys[epoch] = key
	l.items[epoch] = append(l.items[epoch], v)
}

// perKey concatenates the epochs of every key in epoch order.
func (l *epochLog) perKey() map[string][]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	epochs := make([]uint64, 0, len(l.items))
	for e := range l.items {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })

	out := map[string][]int{}
	for _, e := range epochs {
		out[l.keys[e]] = append(out[l.keys[e]], l.items[e]...)
	}
	return out
}

func TestGroupByAsyncConsumers(t *testing.T) {
	const n = 2000
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sched := NewAsyncScheduler()
	var eg errgroup.Group
	log := newEpochLog()

	down := ObserverFuncs[*GroupedStream[string, kv]]{
		Next: func(g *GroupedStream[string, kv]) Future {
			// A tiny buffer keeps most acknowledgments pending.
			obs := NewChanObserver[kv](1)
			g.Subscribe(obs)
			eg.Go(func() error {
				for v := range obs.C() {
					log.add(g.Epoch(), g.Key(), v.val)
				}
				return obs.Err()
			})
			return Now(Continue)
		},
	}
	op := NewGroupBy(down, byKey, WithScheduler(sched))

	elems := make([]kv, n)
	want := map[string][]int{}
	for i := range elems {
		key := fmt.Sprintf("k%d", i%5)
		elems[i] = kv{key, i}
		want[key] = append(want[key], i)
	}

	require.NoError(t, Feed(ctx, elems, op))
	require.NoError(t, eg.Wait())
	require.NoError(t, sched.Wait())

	if diff := cmp.Diff(want, log.perKey()); diff != "" {
		t.Errorf("per-key items mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5, len(log.items), "no group is recycled without cancellation")
}

func TestGroupByConcurrentCancellation(t *testing.T) {
	const n = 5000
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool := NewWorkerPool(ctx, 4)
	var eg errgroup.Group
	log := newEpochLog()
	m := NewMetrics("stress")

	down := ObserverFuncs[*GroupedStream[string, kv]]{
		Next: func(g *GroupedStream[string, kv]) Future {
			obs := NewChanObserver[kv](2)
			sub := g.Subscribe(obs)
			limit := int(g.Epoch()%4) + 1
			eg.Go(func() error {
				read := 0
				for v := range obs.C() {
					log.add(g.Epoch(), g.Key(), v.val)
					read++
					if read == limit {
						// Leave from this goroutine while the producer keeps
						// routing; buffered elements are still read.
						sub.Cancel()
						obs.Cancel()
					}
				}
				return nil
			})
			return Now(Continue)
		},
	}
	op := NewGroupBy(down, byKey, WithScheduler(pool), WithMetrics(m))

	elems := make([]kv, n)
	want := map[string][]int{}
	for i := range elems {
		key := fmt.Sprintf("k%d", i%7)
		elems[i] = kv{key, i}
		want[key] = append(want[key], i)
	}

	require.NoError(t, Feed(ctx, elems, op))
	require.NoError(t, eg.Wait())
	require.NoError(t, pool.Close())

	// Every element is read exactly once, by a group of its own key, and
	// epochs of one key never interleave out of source order.
	if diff := cmp.Diff(want, log.perKey()); diff != "" {
		t.Errorf("per-key items mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, op.Groups())
	assert.Greater(t, len(log.items), 7, "cancellations must have opened new epochs")
}
