package pushstream

import (
	"sync"
)

// kv is the element type used throughout the operator tests.
type kv struct {
	key string
	val int
}

func byKey(e kv) (string, error) {
	return e.key, nil
}

// groupLog is a downstream that subscribes a recording observer to every
// group it is offered.
type groupLog struct {
	mu        sync.Mutex
	offered   []*GroupedStream[string, kv]
	received  map[uint64][]int
	completed map[uint64]int
	downErrs  []error
	downDone  int

	// offer decides downstream's answer to a new group; nil means Continue.
	offer func(g *GroupedStream[string, kv]) Ack
	// next decides a subscriber's answer; nil means Continue.
	next func(g *GroupedStream[string, kv], v kv) Ack
	// complete runs inside each subscriber's OnComplete.
	complete func(g *GroupedStream[string, kv])
}

func newGroupLog() *groupLog {
	return &groupLog{
		received:  map[uint64][]int{},
		completed: map[uint64]int{},
	}
}

func (l *groupLog) downstream() Observer[*GroupedStream[string, kv]] {
	return ObserverFuncs[*GroupedStream[string, kv]]{
		Next: func(g *GroupedStream[string, kv]) Future {
			l.mu.Lock()
			l.offered = append(l.offered, g)
			l.mu.Unlock()

			g.Subscribe(l.subscriber(g))
			if l.offer != nil {
				return Now(l.offer(g))
			}
			return Now(Continue)
		},
		Error: func(err error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.downErrs = append(l.downErrs, err)
		},
		Complete: func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.downDone++
		},
	}
}

func (l *groupLog) subscriber(g *GroupedStream[string, kv]) Observer[kv] {
	return ObserverFuncs[kv]{
		Next: func(v kv) Future {
			l.mu.Lock()
			l.received[g.Epoch()] = append(l.received[g.Epoch()], v.val)
			l.mu.Unlock()
			if l.next != nil {
				return Now(l.next(g, v))
			}
			return Now(Continue)
		},
		Complete: func() {
			l.mu.Lock()
			l.completed[g.Epoch()]++
			l.mu.Unlock()
			if l.complete != nil {
				l.complete(g)
			}
		},
	}
}

// keys returns the keys of the offered groups in offer order.
func (l *groupLog) keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.offered))
	for i, g := range l.offered {
		out[i] = g.Key()
	}
	return out
}

func (l *groupLog) epochs() []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]uint64, len(l.offered))
	for i, g := range l.offered {
		out[i] = g.Epoch()
	}
	return out
}

func (l *groupLog) items(epoch uint64) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.received[epoch]...)
}

func (l *groupLog) completions(epoch uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completed[epoch]
}

func (l *groupLog) terminal() (done int, errs []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.downDone, append([]error(nil), l.downErrs...)
}

// push offers every element synchronously and returns the acknowledgments.
func push(obs Observer[kv], elems ...kv) []Ack {
	acks := make([]Ack, 0, len(elems))
	for _, e := range elems {
		a, ok := obs.OnNext(e).Poll()
		if !ok {
			panic("push: acknowledgment pending")
		}
		acks = append(acks, a)
	}
	return acks
}
