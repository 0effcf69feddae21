package pushstream

import "sync/atomic"

// Observer is the receiving end of a push channel.
//
// A sender must not call OnNext again until the [Future] returned by the
// previous call has resolved, and must not call OnNext after OnError or
// OnComplete. OnError and OnComplete are terminal and mutually exclusive;
// at most one of them is delivered.
type Observer[T any] interface {
	// OnNext offers one element. The returned Future resolves to Continue
	// when the receiver wants more, or Cancel when it wants to stop.
	OnNext(v T) Future

	// OnError terminates the channel with a failure.
	OnError(err error)

	// OnComplete terminates the channel normally.
	OnComplete()
}

// ObserverFuncs adapts plain functions to [Observer]. A nil Next answers
// Continue; nil Error and Complete are no-ops.
type ObserverFuncs[T any] struct {
	Next     func(T) Future
	Error    func(error)
	Complete func()
}

func (o ObserverFuncs[T]) OnNext(v T) Future {
	if o.Next == nil {
		return Now(Continue)
	}
	return o.Next(v)
}

func (o ObserverFuncs[T]) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}

func (o ObserverFuncs[T]) OnComplete() {
	if o.Complete != nil {
		o.Complete()
	}
}

// Safe wraps obs so that it sees at most one terminal event and no OnNext
// after it. A panic raised by obs.OnNext is turned into OnError with a
// [*PanicError] and the element is answered with Cancel. Once obs has
// answered Cancel, further OnNext calls are answered with Cancel without
// reaching obs.
func Safe[T any](obs Observer[T]) Observer[T] {
	if obs == nil {
		panic("pushstream: Safe requires non-nil observer")
	}
	if s, ok := obs.(*safeObserver[T]); ok {
		return s
	}
	return &safeObserver[T]{obs: obs}
}

type safeObserver[T any] struct {
	obs  Observer[T]
	done atomic.Bool
}

func (s *safeObserver[T]) OnNext(v T) (f Future) {
	if s.done.Load() {
		return Now(Cancel)
	}
	defer func() {
		if r := recover(); r != nil {
			s.OnError(newPanicError(r))
			f = Now(Cancel)
		}
	}()
	return s.obs.OnNext(v).Then(func(a Ack) Ack {
		if a == Cancel {
			s.done.Store(true)
		}
		return a
	})
}

func (s *safeObserver[T]) OnError(err error) {
	if s.done.CompareAndSwap(false, true) {
		s.obs.OnError(err)
	}
}

func (s *safeObserver[T]) OnComplete() {
	if s.done.CompareAndSwap(false, true) {
		s.obs.OnComplete()
	}
}
