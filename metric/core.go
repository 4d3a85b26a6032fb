package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the Prometheus namespace shared by all dashboard metrics.
const Namespace = "iotdash"

// CoreMetrics contains platform-level metrics shared by all components.
// Component-specific metrics (frame counters, queue depths) are owned by the
// components themselves and registered through the Registry.
type CoreMetrics struct {
	// ComponentUp reports component liveness (1 running, 0 stopped).
	ComponentUp *prometheus.GaugeVec

	// ErrorsTotal counts errors by component and error class.
	ErrorsTotal *prometheus.CounterVec

	// EventsTotal counts ingested telemetry events by kind (reading, anomaly).
	EventsTotal *prometheus.CounterVec
}

// NewCoreMetrics creates the core platform metrics.
func NewCoreMetrics() *CoreMetrics {
	return &CoreMetrics{
		ComponentUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "component",
				Name:      "up",
				Help:      "Component liveness (1=running, 0=stopped)",
			},
			[]string{"component"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "component",
				Name:      "errors_total",
				Help:      "Total errors by component and class",
			},
			[]string{"component", "class"},
		),

		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "telemetry",
				Name:      "events_total",
				Help:      "Total telemetry events ingested by kind",
			},
			[]string{"kind"},
		),
	}
}
