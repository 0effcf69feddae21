package pushstream

import (
	"errors"
	"sync"

	"github.com/baxromumarov/pushstream/chanx"
)

// ChanObserver is an [Observer] that buffers elements in a channel for a
// consumer to range over. OnNext answers Continue at once while the buffer
// has room and returns a pending Future otherwise, so a slow consumer
// slows the producer down instead of losing data.
//
// Calling [ChanObserver.Cancel] makes every later OnNext answer Cancel.
// Subscribed to a [GroupedStream], that recycles the group.
type ChanObserver[T any] struct {
	buf *chanx.Closable[T]

	once sync.Once
	done chan struct{}
	err  error
}

// NewChanObserver returns a ChanObserver buffering up to capacity elements.
// Panics if capacity is negative.
func NewChanObserver[T any](capacity int) *ChanObserver[T] {
	if capacity < 0 {
		panic("pushstream: NewChanObserver requires non-negative capacity")
	}
	return &ChanObserver[T]{
		buf:  chanx.NewClosable[T](capacity),
		done: make(chan struct{}),
	}
}

func (c *ChanObserver[T]) OnNext(v T) Future {
	err := c.buf.TrySend(v)
	switch {
	case err == nil:
		return Now(Continue)
	case errors.Is(err, chanx.ErrClosed):
		return Now(Cancel)
	}

	p := NewPromise()
	go func() {
		if err := c.buf.Send(v); err != nil {
			p.Resolve(Cancel)
			return
		}
		p.Resolve(Continue)
	}()
	return p.Future()
}

func (c *ChanObserver[T]) OnError(err error) {
	c.finish(err)
}

func (c *ChanObserver[T]) OnComplete() {
	c.finish(nil)
}

func (c *ChanObserver[T]) finish(err error) {
	c.once.Do(func() {
		c.err = err
		c.buf.Close()
		close(c.done)
	})
}

// C returns the channel of received elements. It is closed when the
// observer terminates or is cancelled.
func (c *ChanObserver[T]) C() <-chan T {
	return c.buf.Chan()
}

// Done is closed once the observer received OnError or OnComplete.
func (c *ChanObserver[T]) Done() <-chan struct{} {
	return c.done
}

// Err returns the failure passed to OnError. It is only meaningful after
// Done is closed.
func (c *ChanObserver[T]) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Cancel stops the observer from accepting elements. Buffered elements
// stay readable from C.
func (c *ChanObserver[T]) Cancel() {
	c.buf.Close()
}
