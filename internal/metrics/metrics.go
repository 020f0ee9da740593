package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "room_signal"

// Event names recorded through Inc/Add. They end up as the `event` label of
// room_signal_events_total.
const (
	ConnectionAccepted = "connection_accepted"
	ConnectionClosed   = "connection_closed"
	AuthFailure        = "auth_failure"
	BadMessage         = "bad_message"
	RoomNotFound       = "room_not_found"
	RoomCreated        = "room_created"
	RoomClosed         = "room_closed"

	DropReasonRateLimited        = "rate_limited"
	DropReasonTooManyConnections = "too_many_connections"
	DropReasonQueueFull          = "queue_full"
	DropReasonSlowConsumer       = "slow_consumer"
	DropReasonDeliveryFailed     = "delivery_failed"
)

// Metrics is a concurrency-safe wrapper around a private Prometheus registry.
//
// All methods are safe to call on a nil *Metrics so components can be
// constructed without metrics in tests.
type Metrics struct {
	reg *prometheus.Registry

	events   *prometheus.CounterVec
	inbound  *prometheus.CounterVec
	relayed  *prometheus.CounterVec
	fanout   prometheus.Histogram
	dispatch prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Internal event counters.",
		}, []string{"event"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Client events received, by event type.",
		}, []string{"type"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_frames_total",
			Help:      "Frames queued to recipients, by event type.",
		}, []string{"type"}),
		fanout: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_fanout_recipients",
			Help:      "Recipients per relayed negotiation event.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		dispatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handling one inbound event.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}),
	}
	reg.MustRegister(
		m.events,
		m.inbound,
		m.relayed,
		m.fanout,
		m.dispatch,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.events.WithLabelValues(name).Add(float64(n))
}

// ObserveInbound counts one client event of the given type.
func (m *Metrics) ObserveInbound(eventType string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(eventType).Inc()
}

// ObserveRelay records a fan-out of one event to n recipients.
func (m *Metrics) ObserveRelay(eventType string, n int) {
	if m == nil {
		return
	}
	m.fanout.Observe(float64(n))
	if n > 0 {
		m.relayed.WithLabelValues(eventType).Add(float64(n))
	}
}

func (m *Metrics) ObserveDispatch(seconds float64) {
	if m == nil {
		return
	}
	m.dispatch.Observe(seconds)
}

// GaugeFunc registers a gauge whose value is computed at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) error {
	if m == nil {
		return nil
	}
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Registry exposes the underlying registry for tests and handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}
