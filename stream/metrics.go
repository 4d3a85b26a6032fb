package stream

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kaipokrandt/iotsecuritydash/metric"
)

// Metrics holds Prometheus metrics for the connection manager.
type Metrics struct {
	core *metric.CoreMetrics

	framesReceived    prometheus.Counter
	decodeErrors      prometheus.Counter
	recordsDropped    prometheus.Counter
	reconnectAttempts prometheus.Counter
	connectionState   prometheus.Gauge
	windowEvictions   prometheus.Counter
}

// newMetrics creates and registers manager metrics. A nil registry disables
// metrics collection.
func newMetrics(registry *metric.Registry, componentName string) *Metrics {
	if registry == nil {
		return nil
	}

	metrics := &Metrics{
		core: registry.Core,

		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "stream",
			Name:        "frames_received_total",
			Help:        "Total frames received over the WebSocket",
			ConstLabels: prometheus.Labels{"component": componentName},
		}),

		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "stream",
			Name:        "decode_errors_total",
			Help:        "Total frames discarded because they failed to decode",
			ConstLabels: prometheus.Labels{"component": componentName},
		}),

		recordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "stream",
			Name:        "records_dropped_total",
			Help:        "Total batch records dropped for missing required fields",
			ConstLabels: prometheus.Labels{"component": componentName},
		}),

		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "stream",
			Name:        "reconnect_attempts_total",
			Help:        "Total reconnection attempts",
			ConstLabels: prometheus.Labels{"component": componentName},
		}),

		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "stream",
			Name:        "connection_state",
			Help:        "Current connection state (0=connecting, 1=open, 2=closed)",
			ConstLabels: prometheus.Labels{"component": componentName},
		}),

		windowEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "stream",
			Name:        "window_evictions_total",
			Help:        "Total readings evicted from the bounded window",
			ConstLabels: prometheus.Labels{"component": componentName},
		}),
	}

	_ = registry.RegisterCounter(componentName, "frames_received_total", metrics.framesReceived)
	_ = registry.RegisterCounter(componentName, "decode_errors_total", metrics.decodeErrors)
	_ = registry.RegisterCounter(componentName, "records_dropped_total", metrics.recordsDropped)
	_ = registry.RegisterCounter(componentName, "reconnect_attempts_total", metrics.reconnectAttempts)
	_ = registry.RegisterGauge(componentName, "connection_state", metrics.connectionState)
	_ = registry.RegisterCounter(componentName, "window_evictions_total", metrics.windowEvictions)

	return metrics
}

func (m *Metrics) setState(state ConnectionState) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

func (m *Metrics) incFrames() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) incDecodeErrors() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) addDropped(n int) {
	if m != nil && n > 0 {
		m.recordsDropped.Add(float64(n))
	}
}

func (m *Metrics) incReconnects() {
	if m != nil {
		m.reconnectAttempts.Inc()
	}
}

func (m *Metrics) incEvictions() {
	if m != nil {
		m.windowEvictions.Inc()
	}
}

func (m *Metrics) setUp(componentName string, up bool) {
	if m == nil || m.core == nil {
		return
	}
	value := 0.0
	if up {
		value = 1.0
	}
	m.core.ComponentUp.WithLabelValues(componentName).Set(value)
}

func (m *Metrics) incError(componentName, class string) {
	if m == nil || m.core == nil {
		return
	}
	m.core.ErrorsTotal.WithLabelValues(componentName, class).Inc()
}

func (m *Metrics) addEvents(kind string, n int) {
	if m == nil || m.core == nil || n <= 0 {
		return
	}
	m.core.EventsTotal.WithLabelValues(kind).Add(float64(n))
}
