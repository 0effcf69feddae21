package pushstream

import "github.com/go-logr/logr"

// GroupEventKind names a change in a group's lifecycle.
type GroupEventKind int

const (
	// GroupCreated fires when a new epoch of a key is registered, before
	// its stream is offered downstream.
	GroupCreated GroupEventKind = iota

	// GroupRecycled fires when the last subscriber of a group left and its
	// key was released for a new epoch.
	GroupRecycled

	// GroupDrained fires for every group completed by operator termination.
	GroupDrained
)

func (k GroupEventKind) String() string {
	switch k {
	case GroupCreated:
		return "created"
	case GroupRecycled:
		return "recycled"
	case GroupDrained:
		return "drained"
	default:
		return "unknown"
	}
}

// GroupEvent describes one lifecycle change, passed to [WithOnGroup].
type GroupEvent struct {
	Kind  GroupEventKind
	Key   any
	Epoch uint64
	// Err is the failure a drained group raised while completing, if any.
	Err error
}

type config struct {
	scheduler Scheduler
	logger    logr.Logger
	metrics   *Metrics
	onError   func(error)
	onGroup   func(GroupEvent)
}

// Option configures a group-by operator.
type Option func(*config)

func defaultConfig() config {
	return config{
		scheduler: Immediate,
		logger:    logr.Discard(),
	}
}

// WithScheduler sets where continuations run after a pending
// acknowledgment resolves. The default is [Immediate].
// It panics if s is nil.
func WithScheduler(s Scheduler) Option {
	if s == nil {
		panic("pushstream: WithScheduler requires non-nil scheduler")
	}
	return func(c *config) {
		c.scheduler = s
	}
}

// WithLogger sets the logger. Group lifecycle is logged at V(1), route
// retries at V(2). The default discards everything.
func WithLogger(l logr.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics records operator activity into m. One Metrics value may be
// shared by many operators.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithErrorReporter is told about failures raised by children drained
// after the downstream answered Cancel, just before the same failure is
// delivered to the downstream's OnError.
func WithErrorReporter(fn func(error)) Option {
	return func(c *config) {
		c.onError = fn
	}
}

// WithOnGroup registers a hook invoked on every group lifecycle change.
// Recycle events run on the goroutine of the subscriber that cancelled;
// the hook must be safe for concurrent use.
func WithOnGroup(fn func(GroupEvent)) Option {
	return func(c *config) {
		c.onGroup = fn
	}
}
