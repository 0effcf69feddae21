package pushstream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Ack is the answer a receiver gives to [Observer.OnNext].
type Ack uint8

const (
	// Continue asks the sender for the next element.
	Continue Ack = iota

	// Cancel tells the sender to stop. No further OnNext may follow.
	Cancel
)

func (a Ack) String() string {
	switch a {
	case Continue:
		return "Continue"
	case Cancel:
		return "Cancel"
	default:
		return "Ack(?)"
	}
}

var resolvedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Future is an acknowledgment that may not have resolved yet.
//
// Receivers that can answer synchronously return [Now]; receivers that
// need time return the Future of a [Promise] and resolve it later. The
// zero Future is a resolved [Continue].
type Future struct {
	ack Ack
	p   *Promise
}

// Now returns an already resolved Future.
func Now(a Ack) Future {
	return Future{ack: a}
}

// Poll returns the acknowledgment and true if the Future has resolved.
func (f Future) Poll() (Ack, bool) {
	if f.p == nil {
		return f.ack, true
	}
	return f.p.poll()
}

// Done returns a channel that is closed once the Future resolves.
func (f Future) Done() <-chan struct{} {
	if f.p == nil {
		return resolvedCh
	}
	return f.p.done
}

// Wait blocks until the Future resolves or ctx is done. On cancellation it
// returns [Cancel] and the context error.
func (f Future) Wait(ctx context.Context) (Ack, error) {
	if a, ok := f.Poll(); ok {
		return a, nil
	}
	select {
	case <-f.p.done:
		a, _ := f.p.poll()
		return a, nil
	case <-ctx.Done():
		return Cancel, ctx.Err()
	}
}

// OnComplete calls fn with the acknowledgment once the Future resolves.
// If it has already resolved, fn runs on the calling goroutine before
// OnComplete returns; otherwise it runs on the goroutine that resolves
// the Promise.
func (f Future) OnComplete(fn func(Ack)) {
	if f.p == nil {
		fn(f.ack)
		return
	}
	f.p.onComplete(fn)
}

// Then returns a Future resolved with fn applied to f's acknowledgment.
func (f Future) Then(fn func(Ack) Ack) Future {
	if a, ok := f.Poll(); ok {
		return Now(fn(a))
	}
	p := NewPromise()
	f.OnComplete(func(a Ack) {
		p.Resolve(fn(a))
	})
	return p.Future()
}

// Promise is the writing side of a pending [Future].
type Promise struct {
	mu        sync.Mutex
	done      chan struct{}
	ack       Ack
	resolved  bool
	callbacks []func(Ack)
}

// NewPromise returns an unresolved Promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Future returns the Future observing p.
func (p *Promise) Future() Future {
	return Future{p: p}
}

// Resolve completes the Promise with a. Only the first call has an effect;
// it reports whether this call resolved the Promise. Registered callbacks
// run on the calling goroutine, in registration order.
func (p *Promise) Resolve(a Ack) bool {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return false
	}
	p.ack = a
	p.resolved = true
	cbs := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, cb := range cbs {
		cb(a)
	}
	return true
}

// Complete resolves p with whatever f resolves to.
func (p *Promise) Complete(f Future) {
	f.OnComplete(func(a Ack) {
		p.Resolve(a)
	})
}

func (p *Promise) poll() (Ack, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ack, p.resolved
}

func (p *Promise) onComplete(fn func(Ack)) {
	p.mu.Lock()
	if !p.resolved {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	a := p.ack
	p.mu.Unlock()
	fn(a)
}

// joinAcks waits for every future in fs and resolves with fold applied to
// their acknowledgments, indexed like fs.
func joinAcks(fs []Future, fold func([]Ack) Ack) Future {
	acks := make([]Ack, len(fs))
	var pending []int
	for i, f := range fs {
		if a, ok := f.Poll(); ok {
			acks[i] = a
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return Now(fold(acks))
	}

	p := NewPromise()
	var remaining atomic.Int32
	remaining.Store(int32(len(pending)))
	for _, i := range pending {
		i := i
		fs[i].OnComplete(func(a Ack) {
			acks[i] = a
			if remaining.Add(-1) == 0 {
				p.Resolve(fold(acks))
			}
		})
	}
	return p.Future()
}
