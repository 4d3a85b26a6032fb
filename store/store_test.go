package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaipokrandt/iotsecuritydash/telemetry"
)

func reading(id string) telemetry.ReadingEvent {
	return telemetry.ReadingEvent{
		ID:       id,
		DeviceID: "sensor-1",
		Metrics:  telemetry.MetricBundle{"temperature": 70},
	}
}

func anomaly(readingID string) telemetry.AnomalyEvent {
	return telemetry.AnomalyEvent{
		DetectedAt: time.Now(),
		DeviceID:   "sensor-1",
		Message:    telemetry.DefaultAnomalyMessage,
		ReadingID:  readingID,
	}
}

func TestEventWindowFIFO(t *testing.T) {
	w, err := NewEventWindow(2)
	require.NoError(t, err)

	w.Append(reading("r1"))
	w.Append(reading("r2"), reading("r3"))

	snap := w.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "r2", snap[0].ID)
	assert.Equal(t, "r3", snap[1].ID)
}

func TestEventWindowNeverExceedsCapacity(t *testing.T) {
	w, err := NewEventWindow(5)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		w.Append(reading(fmt.Sprintf("r%d", i)))
		assert.LessOrEqual(t, w.Len(), 5)
	}

	snap := w.Snapshot()
	require.Len(t, snap, 5)
	assert.Equal(t, "r95", snap[0].ID)
	assert.Equal(t, "r99", snap[4].ID)
}

func TestEventWindowDefaultCapacity(t *testing.T) {
	w, err := NewEventWindow(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultWindowCapacity, w.Capacity())
}

func TestEventWindowSnapshotIsCopy(t *testing.T) {
	w, err := NewEventWindow(3)
	require.NoError(t, err)
	w.Append(reading("r1"))

	snap := w.Snapshot()
	snap[0].ID = "mutated"

	assert.Equal(t, "r1", w.Snapshot()[0].ID)
}

func TestAnomalyLedgerUnbounded(t *testing.T) {
	l := NewAnomalyLedger(0)
	for i := 0; i < 500; i++ {
		l.Append(anomaly(fmt.Sprintf("r%d", i)))
	}
	assert.Equal(t, 500, l.Len())
	assert.Equal(t, "r0", l.Snapshot()[0].ReadingID)
}

func TestAnomalyLedgerCapacityFIFO(t *testing.T) {
	l := NewAnomalyLedger(2)
	l.Append(anomaly("r1"))
	l.Append(anomaly("r2"), anomaly("r3"))

	snap := l.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "r2", snap[0].ReadingID)
	assert.Equal(t, "r3", snap[1].ReadingID)
}

func TestCorrelate(t *testing.T) {
	window := []telemetry.ReadingEvent{reading("r1"), reading("r2"), reading("r3")}
	ledger := []telemetry.AnomalyEvent{anomaly("r2")}

	index := Correlate(window, ledger)
	assert.Equal(t, map[int]bool{0: false, 1: true, 2: false}, index)
}

func TestCorrelateDanglingReference(t *testing.T) {
	window := []telemetry.ReadingEvent{reading("r5"), reading("r6")}
	ledger := []telemetry.AnomalyEvent{anomaly("r1")}

	index := Correlate(window, ledger)
	assert.Equal(t, map[int]bool{0: false, 1: false}, index)
}

func TestCorrelateEmptyReadingIDNeverMatches(t *testing.T) {
	window := []telemetry.ReadingEvent{reading("")}
	ledger := []telemetry.AnomalyEvent{anomaly("")}

	index := Correlate(window, ledger)
	assert.Equal(t, map[int]bool{0: false}, index)
}

func TestCorrelateSelfHealsAfterEviction(t *testing.T) {
	w, err := NewEventWindow(2)
	require.NoError(t, err)
	l := NewAnomalyLedger(0)

	w.Append(reading("r1"))
	l.Append(anomaly("r1"))
	assert.Equal(t, map[int]bool{0: true}, Correlate(w.Snapshot(), l.Snapshot()))

	// r1 falls out of the window; its anomaly now matches nothing
	w.Append(reading("r2"), reading("r3"))
	assert.Equal(t, map[int]bool{0: false, 1: false}, Correlate(w.Snapshot(), l.Snapshot()))
}
