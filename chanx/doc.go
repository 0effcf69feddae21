// Package chanx provides context-aware, goroutine-safe channel utilities
// used by the pushstream sinks and sources.
//
// Go channels have sharp edges: sends to closed channels panic, blocked
// sends leak goroutines, and combining channels with context cancellation
// requires careful select statements.
//
//   - [Send] and [Recv]: context-aware send and receive that unblock on
//     cancellation instead of leaking goroutines.
//   - [Closable]: an idempotent-close channel wrapper that converts
//     send-on-closed panics to errors and releases blocked senders when
//     it is closed.
package chanx
