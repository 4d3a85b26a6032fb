// Package buffer provides a generic, thread-safe circular buffer with
// configurable overflow policies. It is the backing structure for the
// dashboard's bounded event window: fixed capacity, oldest entries evicted
// first, insertion order preserved.
//
// Statistics are always collected for observability; Prometheus metrics are
// optional via the WithMetrics functional option.
package buffer

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called with each item dropped by the overflow policy.
type DropCallback[T any] func(item T)

// NewCircular creates a circular buffer with the given capacity.
// Capacity is required - all other configuration is via functional options.
func NewCircular[T any](capacity int, options ...Option[T]) (*Circular[T], error) {
	opts := applyOptions(options...)
	return newCircular(capacity, opts)
}
