package realtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics 基于 Prometheus 的监控实现，持有独立的注册表
type PrometheusMetrics struct {
	registry *prometheus.Registry

	connectionsOpen     prometheus.Gauge
	connectionsClosed   *prometheus.CounterVec
	connectionsRejected *prometheus.CounterVec
	eventsReceived      *prometheus.CounterVec
	eventDuration       *prometheus.HistogramVec
	eventsRejected      *prometheus.CounterVec
	panicsRecovered     *prometheus.CounterVec
	broadcastFanout     *prometheus.HistogramVec
	pushesDropped       *prometheus.CounterVec
	invalidFrames       prometheus.Counter
}

// NewPrometheusMetrics 创建 Prometheus 监控，namespace 为指标前缀
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),

		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "connections_open",
			Help:      "Number of currently open connections.",
		}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "connections_closed_total",
			Help:      "Total number of closed connections by reason.",
		}, []string{"reason"}),
		connectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "connections_rejected_total",
			Help:      "Total number of rejected connection attempts by reason.",
		}, []string{"reason"}),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "received_total",
			Help:      "Total number of received client events.",
		}, []string{"event"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "duration_seconds",
			Help:      "Event handling duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"event"}),
		eventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "rejected_total",
			Help:      "Total number of rejected events by error code.",
		}, []string{"event", "code"}),
		panicsRecovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "panics_recovered_total",
			Help:      "Total number of handler panics recovered at the dispatch boundary.",
		}, []string{"event"}),
		broadcastFanout: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "broadcast_fanout",
			Help:      "Number of local receivers per broadcast.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"event"}),
		pushesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "pushes_dropped_total",
			Help:      "Total number of pushes dropped due to full send queues.",
		}, []string{"event"}),
		invalidFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "socket",
			Name:      "invalid_frames_total",
			Help:      "Total number of unparsable or oversized inbound frames.",
		}),
	}

	m.registry.MustRegister(
		m.connectionsOpen,
		m.connectionsClosed,
		m.connectionsRejected,
		m.eventsReceived,
		m.eventDuration,
		m.eventsRejected,
		m.panicsRecovered,
		m.broadcastFanout,
		m.pushesDropped,
		m.invalidFrames,
	)
	return m
}

// Registry 返回指标注册表，用于挂载抓取端点
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) ConnectionOpened() {
	m.connectionsOpen.Inc()
}

func (m *PrometheusMetrics) ConnectionClosed(reason string) {
	m.connectionsOpen.Dec()
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) ConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) EventReceived(event string) {
	m.eventsReceived.WithLabelValues(event).Inc()
}

func (m *PrometheusMetrics) EventHandled(event string, elapsed time.Duration) {
	m.eventDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) EventRejected(event string, code string) {
	m.eventsRejected.WithLabelValues(event, code).Inc()
}

func (m *PrometheusMetrics) PanicRecovered(event string) {
	m.panicsRecovered.WithLabelValues(event).Inc()
}

func (m *PrometheusMetrics) BroadcastSent(event string, receivers int) {
	m.broadcastFanout.WithLabelValues(event).Observe(float64(receivers))
}

func (m *PrometheusMetrics) PushDropped(event string, count int) {
	m.pushesDropped.WithLabelValues(event).Add(float64(count))
}

func (m *PrometheusMetrics) InvalidFrame() {
	m.invalidFrames.Inc()
}
