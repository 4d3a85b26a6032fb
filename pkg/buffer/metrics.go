package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kaipokrandt/iotsecuritydash/metric"
)

// bufferMetrics exports buffer statistics as Prometheus metrics.
type bufferMetrics struct {
	writesTotal prometheus.Counter
	dropsTotal  prometheus.Counter
	size        prometheus.Gauge
	utilization prometheus.Gauge
}

func newBufferMetrics(registry *metric.Registry, prefix string) (*bufferMetrics, error) {
	m := &bufferMetrics{
		writesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "writes_total",
			Help:        "Total items written to the buffer",
			ConstLabels: prometheus.Labels{"component": prefix},
		}),
		dropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "drops_total",
			Help:        "Total items dropped by the overflow policy",
			ConstLabels: prometheus.Labels{"component": prefix},
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "size",
			Help:        "Current number of items in the buffer",
			ConstLabels: prometheus.Labels{"component": prefix},
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metric.Namespace,
			Subsystem:   "buffer",
			Name:        "utilization",
			Help:        "Buffer utilization (0.0-1.0)",
			ConstLabels: prometheus.Labels{"component": prefix},
		}),
	}

	if err := registry.RegisterCounter(prefix, "buffer_writes", m.writesTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(prefix, "buffer_drops", m.dropsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(prefix, "buffer_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writesTotal.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordDrop() {
	m.dropsTotal.Inc()
}

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	if capacity > 0 {
		m.utilization.Set(float64(size) / float64(capacity))
	}
}
