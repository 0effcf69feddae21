package chanx

import "context"

// Send delivers v on ch unless ctx ends first, in which case it returns the
// context error and v is not sent. Producers feeding a pushstream source
// use it so a cancelled pipeline does not leave them blocked.
func Send[T any](ctx context.Context, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv takes the next value from ch. ok is false once ch is closed and
// drained; err is the context error if ctx ended first. When both are
// ready either may win, so callers check err before ok.
func Recv[T any](ctx context.Context, ch <-chan T) (v T, ok bool, err error) {
	select {
	case v, ok = <-ch:
		return v, ok, nil
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}
