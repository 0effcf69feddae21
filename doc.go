// Package pushstream provides a push-based, backpressure-aware group-by
// operator for Go.
//
// # Push Channels
//
// Every stage of a pipeline is an [Observer]. A sender offers one element
// with [Observer.OnNext] and gets back a [Future] that resolves to
// [Continue] or [Cancel]. The sender must wait for that acknowledgment
// before the next OnNext, which is how a slow receiver slows its sender
// down. Receivers that answer right away return [Now]; receivers that need
// time hand out the Future of a [Promise] and resolve it later, from any
// goroutine.
//
// [Observer.OnError] and [Observer.OnComplete] end a channel. At most one of
// them is delivered and nothing follows it. [Safe] enforces that for an
// observer you do not trust.
//
// # Group-By
//
// [GroupBy] (or [NewGroupBy] for the concrete [Operator]) classifies each
// element with a [KeyFunc] and forwards it to the [GroupedStream] of its
// key:
//
//	groups := pushstream.ObserverFuncs[*pushstream.GroupedStream[string, Event]]{
//	    Next: func(g *pushstream.GroupedStream[string, Event]) pushstream.Future {
//	        g.Subscribe(handlerFor(g.Key()))
//	        return pushstream.Now(pushstream.Continue)
//	    },
//	}
//	op := pushstream.GroupBy(groups, func(e Event) (string, error) {
//	    return e.Tenant, nil
//	})
//	err := pushstream.Feed(ctx, events, op)
//
// The first element of a key opens a group. The group is offered downstream
// and, once downstream answers Continue, receives the element. Elements of
// one key reach its group in source order.
//
// A group is broadcast-style: elements go to the subscribers present when
// they arrive. When its last subscriber cancels, the group is recycled and
// the next element of that key opens a fresh group with a new
// [GroupedStream.Epoch]. The old group is never reused.
//
// When the source completes or fails, every live group is completed, in the
// order the groups were opened, and downstream is told exactly once. If
// groups raise while completing, their failures are merged with the source
// failure by [Aggregate] into a [*CompositeError]. A key function error or
// panic fails the whole operator. Downstream answering Cancel to a new
// group stops the operator and completes every group. Failures the groups
// raise while completing still reach downstream through OnError.
//
// # Scheduling
//
// When an acknowledgment is pending, the operator resumes routing on a
// [Scheduler] once it resolves. [Immediate] (the default) resumes on the
// resolving goroutine; [AsyncScheduler] and [WorkerPool] move the work
// elsewhere.
//
// # Sources and Sinks
//
// [Feed], [FeedSeq] and [FeedChan] push a finite source into an observer
// while honouring acknowledgments. [ChanObserver] turns a push channel
// back into a Go channel with bounded buffering.
//
// # Observability
//
//   - [WithLogger]: structured logging through logr.
//   - [WithMetrics]: Prometheus collectors from [NewMetrics].
//   - [WithOnGroup]: a hook receiving [GroupEvent] for every created,
//     recycled and drained group.
//   - [WithErrorReporter]: drain failures after a downstream Cancel.
//
// # Subpackages
//
// [github.com/baxromumarov/pushstream/celkey] compiles CEL expressions
// into key functions. [github.com/baxromumarov/pushstream/chanx] holds the
// idempotent-close channel wrapper used by [ChanObserver].
package pushstream
