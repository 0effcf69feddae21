package pushstream

import "github.com/prometheus/client_golang/prometheus"

const subsystem = "groupby"

// Metrics holds the Prometheus collectors for group-by operators. Register
// it with a prometheus.Registerer and pass it to operators via [WithMetrics].
type Metrics struct {
	groupsCreated  prometheus.Counter
	groupsRecycled prometheus.Counter
	groupsActive   prometheus.Gauge
	elementsRouted prometheus.Counter
	routeRetries   prometheus.Counter
	drainFailures  prometheus.Counter
}

// NewMetrics creates unregistered collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		groupsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "groups_created_total",
			Help:      "Count of groups opened, one per key epoch.",
		}),
		groupsRecycled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "groups_recycled_total",
			Help:      "Count of groups released because their last subscriber cancelled.",
		}),
		groupsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "groups_active",
			Help:      "Number of groups currently registered.",
		}),
		elementsRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "elements_routed_total",
			Help:      "Count of source elements classified and routed to a group.",
		}),
		routeRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "route_retries_total",
			Help:      "Count of routing decisions retried after a lost insert race or a cancelled group.",
		}),
		drainFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "drain_failures_total",
			Help:      "Count of failures raised by groups while they were being completed.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.groupsCreated,
		m.groupsRecycled,
		m.groupsActive,
		m.elementsRouted,
		m.routeRetries,
		m.drainFailures,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// The record helpers accept a nil receiver so operators without metrics
// need no checks.

func (m *Metrics) recordCreated() {
	if m == nil {
		return
	}
	m.groupsCreated.Inc()
	m.groupsActive.Inc()
}

func (m *Metrics) recordRecycled() {
	if m == nil {
		return
	}
	m.groupsRecycled.Inc()
	m.groupsActive.Dec()
}

func (m *Metrics) recordDrained(failed bool) {
	if m == nil {
		return
	}
	m.groupsActive.Dec()
	if failed {
		m.drainFailures.Inc()
	}
}

func (m *Metrics) recordRouted() {
	if m == nil {
		return
	}
	m.elementsRouted.Inc()
}

func (m *Metrics) recordRetry() {
	if m == nil {
		return
	}
	m.routeRetries.Inc()
}
