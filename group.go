package pushstream

import (
	"fmt"
	"slices"
	"sync/atomic"
)

// GroupedStream is the public side of one group: the elements of a single
// key during a single epoch. It is broadcast-style. Every element is pushed
// to the subscribers present when it arrives, and elements that arrive
// while nobody is subscribed are dropped. Late subscribers see no history.
//
// When the last subscriber leaves, either by answering Cancel or through
// [Subscription.Cancel], the group is recycled. The next element with the
// same key opens a new GroupedStream with a higher epoch.
type GroupedStream[K comparable, T any] struct {
	g *group[K, T]
}

// Key returns the classification result shared by every element of the group.
func (s *GroupedStream[K, T]) Key() K {
	return s.g.key
}

// Epoch identifies this lifetime of the key. Epochs are unique per operator
// and increase with creation order.
func (s *GroupedStream[K, T]) Epoch() uint64 {
	return s.g.epoch
}

// Subscribe attaches obs to the group. If the group has already finished,
// obs receives OnComplete immediately.
func (s *GroupedStream[K, T]) Subscribe(obs Observer[T]) *Subscription {
	if obs == nil {
		panic(ErrNilObserver)
	}
	sub := &subscriber[T]{obs: obs}
	sub.active.Store(true)
	s.g.subscribe(sub)
	return &Subscription{cancel: func() { s.g.unsubscribe(sub) }}
}

func (s *GroupedStream[K, T]) String() string {
	return fmt.Sprintf("group(key=%v, epoch=%d)", s.g.key, s.g.epoch)
}

// Subscription is a handle on one subscriber of a [GroupedStream].
type Subscription struct {
	cancel func()
}

// Cancel detaches the subscriber. It receives no terminal event. An element
// that is being delivered while Cancel runs may still arrive. Cancel is
// idempotent.
func (s *Subscription) Cancel() {
	s.cancel()
}

type subscriber[T any] struct {
	obs    Observer[T]
	active atomic.Bool
}

// complete delivers OnComplete once and converts a panic into an error.
func (s *subscriber[T]) complete() (err error) {
	if !s.active.CompareAndSwap(true, false) {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	s.obs.OnComplete()
	return nil
}

// group is the input side of a GroupedStream, not a full Observer: the
// operator pushes with OnNext and ends it with complete, which hands back
// the subscribers' failures. The operator is its only sender; subscribers
// attach and leave from any goroutine.
type group[K comparable, T any] struct {
	key    K
	epoch  uint64
	stream *GroupedStream[K, T]

	subs   atomic.Pointer[[]*subscriber[T]]
	closed atomic.Bool

	// onRecycle runs once when the last subscriber leaves an open group.
	onRecycle func(*group[K, T])
}

func newGroup[K comparable, T any](key K, epoch uint64, onRecycle func(*group[K, T])) *group[K, T] {
	g := &group[K, T]{
		key:       key,
		epoch:     epoch,
		onRecycle: onRecycle,
	}
	g.subs.Store(&[]*subscriber[T]{})
	g.stream = &GroupedStream[K, T]{g: g}
	return g
}

// OnNext broadcasts v. It answers Cancel when nobody took v and the group
// is closed, so the sender has to route v elsewhere.
func (g *group[K, T]) OnNext(v T) Future {
	if g.closed.Load() {
		return Now(Cancel)
	}
	subs := *g.subs.Load()
	if len(subs) == 0 {
		return Now(Continue)
	}

	fs := make([]Future, len(subs))
	for i, s := range subs {
		if !s.active.Load() {
			fs[i] = Now(Cancel)
			continue
		}
		fs[i] = s.obs.OnNext(v)
	}

	return joinAcks(fs, func(acks []Ack) Ack {
		accepted := false
		for i, a := range acks {
			if a == Cancel {
				g.unsubscribe(subs[i])
				continue
			}
			accepted = true
		}
		// An element somebody took must not be routed again, even if the
		// group closed meanwhile.
		if accepted || !g.closed.Load() {
			return Continue
		}
		return Cancel
	})
}

// complete closes the group and completes every subscriber, returning the
// failures they raised in subscription order.
func (g *group[K, T]) complete() error {
	g.closed.Store(true)
	return g.completeSubscribers()
}

func (g *group[K, T]) completeSubscribers() error {
	subs := g.subs.Swap(&[]*subscriber[T]{})
	var errs []error
	for _, s := range *subs {
		if err := s.complete(); err != nil {
			errs = append(errs, err)
		}
	}
	return Aggregate(errs...)
}

func (g *group[K, T]) subscribe(s *subscriber[T]) {
	for {
		cur := g.subs.Load()
		next := append(slices.Clip(*cur), s)
		if g.subs.CompareAndSwap(cur, &next) {
			break
		}
	}
	// The group may have closed while s was being added.
	if g.closed.Load() {
		g.dropSubscriber(s)
		_ = s.complete()
	}
}

// unsubscribe is idempotent. Every caller that finds the list empty
// recycles, so the group is closed by the time any of them returns.
func (g *group[K, T]) unsubscribe(s *subscriber[T]) {
	s.active.Store(false)
	if g.dropSubscriber(s) == 0 {
		g.recycle()
	}
}

// dropSubscriber removes s and returns how many subscribers remain.
func (g *group[K, T]) dropSubscriber(s *subscriber[T]) int {
	for {
		cur := g.subs.Load()
		idx := slices.Index(*cur, s)
		if idx < 0 {
			return len(*cur)
		}
		next := slices.Delete(slices.Clone(*cur), idx, idx+1)
		if g.subs.CompareAndSwap(cur, &next) {
			return len(next)
		}
	}
}

func (g *group[K, T]) recycle() {
	if !g.closed.CompareAndSwap(false, true) {
		return
	}
	if g.onRecycle != nil {
		g.onRecycle(g)
	}
	// Anyone who subscribed while the last one was leaving is finished too.
	_ = g.completeSubscribers()
}
