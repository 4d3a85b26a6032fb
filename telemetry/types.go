// Package telemetry defines the event types carried by the dashboard
// pipeline and the classifier that turns inbound stream frames into them.
package telemetry

import "time"

// DefaultAnomalyMessage is used when an anomaly frame carries no message.
const DefaultAnomalyMessage = "Anomaly detected"

// MetricBundle holds named numeric measurements from a device, for example
// temperature and vibration. Non-numeric entries in inbound JSON are dropped.
type MetricBundle map[string]float64

// ReadingEvent is a single device reading. Readings are immutable once
// classified.
type ReadingEvent struct {
	ID        string       `json:"id"`
	DeviceID  string       `json:"device_id"`
	Timestamp time.Time    `json:"timestamp"`
	Metrics   MetricBundle `json:"metrics"`
}

// AnomalyEvent is an alert raised by the source against a reading.
// DetectedAt is always the wall clock at classification time, never a
// payload-supplied value. ReadingID references the originating reading by
// identity; it may point at a reading that has since been evicted from the
// window, which downstream consumers treat as "no highlight", not an error.
type AnomalyEvent struct {
	DetectedAt time.Time    `json:"detected_at"`
	DeviceID   string       `json:"device_id"`
	Metrics    MetricBundle `json:"metrics,omitempty"`
	Message    string       `json:"message"`
	ReadingID  string       `json:"reading_id,omitempty"`
}
