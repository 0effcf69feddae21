package pushstream

import (
	"github.com/sourcegraph/conc"
)

// Scheduler runs callbacks later. The group-by operator submits the
// continuation of a routing decision whenever it had to wait for a pending
// acknowledgment.
type Scheduler interface {
	Execute(fn func())
}

// SchedulerFunc adapts a function to [Scheduler].
type SchedulerFunc func(fn func())

func (f SchedulerFunc) Execute(fn func()) { f(fn) }

// Immediate runs every callback on the calling goroutine. Continuations
// then run on whichever goroutine resolved the acknowledgment.
var Immediate Scheduler = SchedulerFunc(func(fn func()) { fn() })

// AsyncScheduler runs each callback on its own goroutine and keeps track
// of them so tests and shutdown code can wait for quiescence.
type AsyncScheduler struct {
	wg conc.WaitGroup
}

// NewAsyncScheduler returns an AsyncScheduler with nothing running.
func NewAsyncScheduler() *AsyncScheduler {
	return &AsyncScheduler{}
}

func (s *AsyncScheduler) Execute(fn func()) {
	s.wg.Go(fn)
}

// Wait blocks until every submitted callback, including callbacks they
// submitted in turn, has returned. A panic in any callback is returned as
// an error.
func (s *AsyncScheduler) Wait() error {
	if r := s.wg.WaitAndRecover(); r != nil {
		return r.AsError()
	}
	return nil
}
