package pushstream

import (
	"cmp"
	"maps"
	"slices"
	"sync/atomic"
)

// registry maps each key to its live group. Every mutation builds a new
// immutable snapshot and publishes it with CompareAndSwap, retrying from a
// fresh load on conflict. The producer and any number of cancellation
// callbacks mutate it concurrently and never block each other.
type registry[K comparable, T any] struct {
	state atomic.Pointer[registrySnapshot[K, T]]
}

type registrySnapshot[K comparable, T any] struct {
	entries map[K]registryEntry[K, T]
	seq     uint64 // insertion counter, orders drainAndClear
	sealed  bool   // set by drainAndClear; rejects inserts
}

type registryEntry[K comparable, T any] struct {
	g   *group[K, T]
	seq uint64
}

func newRegistry[K comparable, T any]() *registry[K, T] {
	r := &registry[K, T]{}
	r.state.Store(&registrySnapshot[K, T]{entries: map[K]registryEntry[K, T]{}})
	return r
}

func (r *registry[K, T]) lookup(key K) (*group[K, T], bool) {
	e, ok := r.state.Load().entries[key]
	return e.g, ok
}

// insertIfAbsent installs g under key and reports whether this call did so.
// It fails when key already has an entry or the registry has been drained.
func (r *registry[K, T]) insertIfAbsent(key K, g *group[K, T]) bool {
	for {
		cur := r.state.Load()
		if cur.sealed {
			return false
		}
		if _, ok := cur.entries[key]; ok {
			return false
		}

		next := &registrySnapshot[K, T]{
			entries: maps.Clone(cur.entries),
			seq:     cur.seq + 1,
		}
		next.entries[key] = registryEntry[K, T]{g: g, seq: next.seq}
		if r.state.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// removeIf deletes key only while it still maps to g. A stale group whose
// key has been taken over by a newer epoch leaves the newer entry alone.
func (r *registry[K, T]) removeIf(key K, g *group[K, T]) bool {
	for {
		cur := r.state.Load()
		e, ok := cur.entries[key]
		if !ok || e.g != g {
			return false
		}

		next := &registrySnapshot[K, T]{
			entries: maps.Clone(cur.entries),
			seq:     cur.seq,
			sealed:  cur.sealed,
		}
		delete(next.entries, key)
		if r.state.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// drainAndClear empties and seals the registry in one swap and returns the
// groups it held in insertion order.
func (r *registry[K, T]) drainAndClear() []*group[K, T] {
	sealed := &registrySnapshot[K, T]{entries: map[K]registryEntry[K, T]{}, sealed: true}
	cur := r.state.Swap(sealed)

	entries := slices.Collect(maps.Values(cur.entries))
	slices.SortFunc(entries, func(a, b registryEntry[K, T]) int {
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]*group[K, T], len(entries))
	for i, e := range entries {
		out[i] = e.g
	}
	return out
}

func (r *registry[K, T]) len() int {
	return len(r.state.Load().entries)
}
