package store

import (
	"sync"

	"github.com/kaipokrandt/iotsecuritydash/telemetry"
)

// AnomalyLedger is an append-only record of anomalies. It is unbounded by
// default; a positive capacity applies the same FIFO trimming the window
// uses.
type AnomalyLedger struct {
	mu       sync.RWMutex
	entries  []telemetry.AnomalyEvent
	capacity int
}

// NewAnomalyLedger creates a ledger. capacity <= 0 means unbounded.
func NewAnomalyLedger(capacity int) *AnomalyLedger {
	return &AnomalyLedger{capacity: capacity}
}

// Append records an anomaly, trimming the oldest entries when a capacity
// is configured.
func (l *AnomalyLedger) Append(anomalies ...telemetry.AnomalyEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, anomalies...)
	if l.capacity > 0 && len(l.entries) > l.capacity {
		excess := len(l.entries) - l.capacity
		l.entries = append(l.entries[:0], l.entries[excess:]...)
	}
}

// Snapshot returns a copy of the ledger in append order.
func (l *AnomalyLedger) Snapshot() []telemetry.AnomalyEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]telemetry.AnomalyEvent, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of anomalies currently held.
func (l *AnomalyLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
