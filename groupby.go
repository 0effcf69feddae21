package pushstream

import (
	"runtime"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// KeyFunc classifies an element. A returned error, or a panic, fails the
// whole operator.
type KeyFunc[T any, K comparable] func(T) (K, error)

// Operator routes every element of one source to the [GroupedStream] of
// its key and pushes each newly opened GroupedStream downstream.
//
// An Operator is an [Observer] of the source. The source must respect the
// push protocol: one OnNext at a time, each only after the previous
// acknowledgment resolved. Subscribers of the groups may run, and cancel,
// on any goroutine.
type Operator[T any, K comparable] struct {
	id         string
	keyFn      KeyFunc[T, K]
	downstream Observer[*GroupedStream[K, T]]
	registry   *registry[K, T]
	terminated atomic.Bool
	epochs     atomic.Uint64

	cfg config
	log logr.Logger
}

// GroupBy returns an operator that splits its input by keyFn and pushes one
// [GroupedStream] per key epoch into downstream.
//
// See [NewGroupBy] for the concrete type.
func GroupBy[T any, K comparable](
	downstream Observer[*GroupedStream[K, T]],
	keyFn KeyFunc[T, K],
	opts ...Option,
) Observer[T] {
	return NewGroupBy(downstream, keyFn, opts...)
}

// NewGroupBy creates an Operator. It panics if downstream or keyFn is nil.
func NewGroupBy[T any, K comparable](
	downstream Observer[*GroupedStream[K, T]],
	keyFn KeyFunc[T, K],
	opts ...Option,
) *Operator[T, K] {
	if downstream == nil {
		panic(ErrNilObserver)
	}
	if keyFn == nil {
		panic("pushstream: GroupBy requires non-nil key function")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.NewString()
	return &Operator[T, K]{
		id:         id,
		keyFn:      keyFn,
		downstream: downstream,
		registry:   newRegistry[K, T](),
		cfg:        cfg,
		log:        cfg.logger.WithValues("operator", id),
	}
}

// ID returns the operator's unique identifier, also attached to its logs.
func (o *Operator[T, K]) ID() string {
	return o.id
}

// Groups returns the number of live groups.
func (o *Operator[T, K]) Groups() int {
	return o.registry.len()
}

// Terminated reports whether the operator has completed, failed or been
// cancelled by its downstream.
func (o *Operator[T, K]) Terminated() bool {
	return o.terminated.Load()
}

// OnNext classifies v and delivers it to its group, opening the group
// first when the key has none.
func (o *Operator[T, K]) OnNext(v T) Future {
	if o.terminated.Load() {
		return Now(Cancel)
	}

	key, err := o.classify(v)
	if err != nil {
		o.OnError(err)
		return Now(Cancel)
	}
	o.cfg.metrics.recordRouted()
	return o.route(key, v)
}

// OnError completes every live group, then fails downstream with err
// merged with any failures the groups raised.
func (o *Operator[T, K]) OnError(err error) {
	o.terminate(err)
}

// OnComplete completes every live group, then completes downstream, or
// fails it if a group raised while completing.
func (o *Operator[T, K]) OnComplete() {
	o.terminate(nil)
}

func (o *Operator[T, K]) classify(v T) (key K, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return o.keyFn(v)
}

// route loops until v has been handed to a live group of key. When an
// acknowledgment is pending, the loop resumes on the scheduler once it
// resolves.
func (o *Operator[T, K]) route(key K, v T) Future {
	for {
		if o.terminated.Load() {
			return Now(Cancel)
		}

		if g, ok := o.registry.lookup(key); ok {
			ack := g.OnNext(v)
			a, done := ack.Poll()
			if !done {
				return o.awaitHit(ack, key, v)
			}
			if a == Continue {
				return Now(Continue)
			}
			// The group was recycled under us.
			o.retry(key, "group cancelled")
			continue
		}

		g := newGroup(key, o.epochs.Add(1), o.recycle)
		if !o.registry.insertIfAbsent(key, g) {
			o.retry(key, "insert lost")
			continue
		}
		o.cfg.metrics.recordCreated()
		o.log.V(1).Info("Group created", "key", key, "epoch", g.epoch)
		o.emit(GroupEvent{Kind: GroupCreated, Key: key, Epoch: g.epoch})

		ack := o.downstream.OnNext(g.stream)
		if a, done := ack.Poll(); done {
			return o.deliverFirst(a, g, v)
		}
		p := NewPromise()
		ack.OnComplete(func(a Ack) {
			o.cfg.scheduler.Execute(func() {
				p.Complete(o.deliverFirst(a, g, v))
			})
		})
		return p.Future()
	}
}

func (o *Operator[T, K]) awaitHit(ack Future, key K, v T) Future {
	p := NewPromise()
	ack.OnComplete(func(a Ack) {
		if a == Continue {
			p.Resolve(Continue)
			return
		}
		o.cfg.scheduler.Execute(func() {
			o.retry(key, "group cancelled")
			p.Complete(o.route(key, v))
		})
	})
	return p.Future()
}

// deliverFirst finishes opening g once downstream answered its offer.
func (o *Operator[T, K]) deliverFirst(a Ack, g *group[K, T], v T) Future {
	if a == Cancel {
		o.cancel()
		return Now(Cancel)
	}
	// A new group turning down its first element does not stop the source.
	return g.OnNext(v).Then(func(Ack) Ack { return Continue })
}

func (o *Operator[T, K]) retry(key K, reason string) {
	o.cfg.metrics.recordRetry()
	o.log.V(2).Info("Retrying route", "key", key, "reason", reason)
	// A recycle on another goroutine may be between closing the group and
	// removing it from the registry.
	runtime.Gosched()
}

// recycle is the cancellation hook of every group.
func (o *Operator[T, K]) recycle(g *group[K, T]) {
	if !o.registry.removeIf(g.key, g) {
		return
	}
	o.cfg.metrics.recordRecycled()
	o.log.V(1).Info("Group recycled", "key", g.key, "epoch", g.epoch)
	o.emit(GroupEvent{Kind: GroupRecycled, Key: g.key, Epoch: g.epoch})
}

// cancel stops the operator after downstream answered Cancel to a new
// group. Every live group is drained; if any of them failed, downstream
// receives the aggregated failure, otherwise no terminal event.
func (o *Operator[T, K]) cancel() {
	if !o.terminated.CompareAndSwap(false, true) {
		return
	}
	o.log.V(1).Info("Downstream cancelled")
	if err := Aggregate(o.drain()...); err != nil {
		if o.cfg.onError != nil {
			o.cfg.onError(err)
		}
		o.log.V(1).Info("Cancelled with drain failure", "err", err.Error())
		o.downstream.OnError(err)
	}
}

func (o *Operator[T, K]) terminate(cause error) {
	if !o.terminated.CompareAndSwap(false, true) {
		return
	}

	errs := append([]error{cause}, o.drain()...)
	if err := Aggregate(errs...); err != nil {
		o.log.V(1).Info("Terminating with failure", "err", err.Error())
		o.downstream.OnError(err)
		return
	}
	o.downstream.OnComplete()
}

// drain empties the registry and completes every group that was in it, in
// the order the groups were opened. Every group is completed even when an
// earlier one failed.
func (o *Operator[T, K]) drain() []error {
	var errs []error
	for _, g := range o.registry.drainAndClear() {
		err := g.complete()
		if err != nil {
			errs = append(errs, Flatten(err)...)
		}
		o.cfg.metrics.recordDrained(err != nil)
		o.log.V(1).Info("Group drained", "key", g.key, "epoch", g.epoch, "failed", err != nil)
		o.emit(GroupEvent{Kind: GroupDrained, Key: g.key, Epoch: g.epoch, Err: err})
	}
	return errs
}

func (o *Operator[T, K]) emit(e GroupEvent) {
	if o.cfg.onGroup != nil {
		o.cfg.onGroup(e)
	}
}
