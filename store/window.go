// Package store holds the in-memory state derived from the telemetry
// stream: a bounded window of recent readings, an anomaly ledger, and the
// correlation between the two. The stream manager's dispatch goroutine is
// the only writer; everyone else reads snapshots.
package store

import (
	"github.com/kaipokrandt/iotsecuritydash/pkg/buffer"
	"github.com/kaipokrandt/iotsecuritydash/telemetry"
)

// DefaultWindowCapacity bounds the reading window when no capacity is
// configured.
const DefaultWindowCapacity = 200

// EventWindow is a fixed-capacity FIFO window over recent readings. When
// full, the oldest readings are evicted so the newest are always retained.
type EventWindow struct {
	buf *buffer.Circular[telemetry.ReadingEvent]
}

// NewEventWindow creates a window with the given capacity. Zero or negative
// capacity falls back to DefaultWindowCapacity. Buffer options (metrics,
// drop callbacks) are passed through to the backing buffer.
func NewEventWindow(capacity int, opts ...buffer.Option[telemetry.ReadingEvent]) (*EventWindow, error) {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	opts = append(opts, buffer.WithOverflowPolicy[telemetry.ReadingEvent](buffer.DropOldest))
	buf, err := buffer.NewCircular[telemetry.ReadingEvent](capacity, opts...)
	if err != nil {
		return nil, err
	}
	return &EventWindow{buf: buf}, nil
}

// Append adds readings in order, trimming the oldest entries once the
// window exceeds capacity.
func (w *EventWindow) Append(readings ...telemetry.ReadingEvent) {
	for _, r := range readings {
		w.buf.Write(r)
	}
}

// Snapshot returns a copy of the window contents oldest-first.
func (w *EventWindow) Snapshot() []telemetry.ReadingEvent {
	return w.buf.Snapshot()
}

// Len returns the number of readings currently held.
func (w *EventWindow) Len() int {
	return w.buf.Size()
}

// Capacity returns the configured maximum window size.
func (w *EventWindow) Capacity() int {
	return w.buf.Capacity()
}
