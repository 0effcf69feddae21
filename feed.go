package pushstream

import (
	"context"
	"iter"
	"slices"

	"github.com/baxromumarov/pushstream/chanx"
)

// Feed pushes items into obs one at a time, waiting for each
// acknowledgment before the next OnNext. See [FeedSeq].
func Feed[T any](ctx context.Context, items []T, obs Observer[T]) error {
	return FeedSeq(ctx, slices.Values(items), obs)
}

// FeedSeq pushes every value of seq into obs, waiting for each
// acknowledgment before the next OnNext.
//
// It calls OnComplete once seq is exhausted and returns nil. If obs answers
// Cancel, FeedSeq stops without a terminal event and returns nil. If ctx
// ends first, obs receives OnError with the context error, which is also
// returned; an acknowledgment may still be outstanding at that point.
func FeedSeq[T any](ctx context.Context, seq iter.Seq[T], obs Observer[T]) error {
	for v := range seq {
		if err := ctx.Err(); err != nil {
			obs.OnError(err)
			return err
		}
		ack, err := obs.OnNext(v).Wait(ctx)
		if err != nil {
			obs.OnError(err)
			return err
		}
		if ack == Cancel {
			return nil
		}
	}
	obs.OnComplete()
	return nil
}

// FeedChan pushes values received from ch into obs until ch is closed,
// with the same rules as [FeedSeq].
func FeedChan[T any](ctx context.Context, ch <-chan T, obs Observer[T]) error {
	for {
		v, ok, err := chanx.Recv(ctx, ch)
		if err != nil {
			obs.OnError(err)
			return err
		}
		if !ok {
			obs.OnComplete()
			return nil
		}
		ack, err := obs.OnNext(v).Wait(ctx)
		if err != nil {
			obs.OnError(err)
			return err
		}
		if ack == Cancel {
			return nil
		}
	}
}
