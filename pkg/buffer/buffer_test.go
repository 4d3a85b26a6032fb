package buffer

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaipokrandt/iotsecuritydash/metric"
)

func TestCircularPreservesOrder(t *testing.T) {
	cb, err := NewCircular[int](5)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		cb.Write(i)
	}

	assert.Equal(t, []int{1, 2, 3}, cb.Snapshot())
	assert.Equal(t, 3, cb.Size())
	assert.Equal(t, 5, cb.Capacity())
	assert.False(t, cb.IsFull())
	assert.False(t, cb.IsEmpty())
}

func TestCircularDropOldest(t *testing.T) {
	cb, err := NewCircular[string](2)
	require.NoError(t, err)

	cb.Write("r1")
	cb.Write("r2")
	cb.Write("r3")

	assert.Equal(t, []string{"r2", "r3"}, cb.Snapshot())
	assert.Equal(t, 2, cb.Size())
	assert.Equal(t, int64(1), cb.Stats().Drops())
}

func TestCircularNeverExceedsCapacity(t *testing.T) {
	const capacity = 7
	cb, err := NewCircular[int](capacity)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		cb.Write(i)
		assert.LessOrEqual(t, cb.Size(), capacity)
	}

	// Retained entries are exactly the most recent `capacity`, in order
	want := make([]int, capacity)
	for i := range want {
		want[i] = 100 - capacity + i
	}
	assert.Equal(t, want, cb.Snapshot())
}

func TestCircularDropNewest(t *testing.T) {
	cb, err := NewCircular(2, WithOverflowPolicy[int](DropNewest))
	require.NoError(t, err)

	cb.Write(1)
	cb.Write(2)
	cb.Write(3)

	assert.Equal(t, []int{1, 2}, cb.Snapshot())
	assert.Equal(t, int64(1), cb.Stats().Drops())
}

func TestCircularDropCallback(t *testing.T) {
	var dropped []int
	cb, err := NewCircular(1, WithDropCallback[int](func(item int) {
		dropped = append(dropped, item)
	}))
	require.NoError(t, err)

	cb.Write(10)
	cb.Write(20)
	cb.Write(30)

	assert.Equal(t, []int{10, 20}, dropped)
	assert.Equal(t, []int{30}, cb.Snapshot())
}

func TestCircularClear(t *testing.T) {
	cb, err := NewCircular[int](3)
	require.NoError(t, err)

	cb.Write(1)
	cb.Write(2)
	cb.Clear()

	assert.True(t, cb.IsEmpty())
	assert.Empty(t, cb.Snapshot())

	// Writes after Clear start from a clean ring
	cb.Write(9)
	assert.Equal(t, []int{9}, cb.Snapshot())
}

func TestCircularMinimumCapacity(t *testing.T) {
	cb, err := NewCircular[int](0)
	require.NoError(t, err)
	assert.Equal(t, 1, cb.Capacity())
}

func TestCircularSnapshotIsCopy(t *testing.T) {
	cb, err := NewCircular[int](3)
	require.NoError(t, err)

	cb.Write(1)
	snap := cb.Snapshot()
	snap[0] = 99

	assert.Equal(t, []int{1}, cb.Snapshot())
}

func TestCircularMetricsExport(t *testing.T) {
	registry := metric.NewRegistry()
	cb, err := NewCircular(2, WithMetrics[int](registry, "window"))
	require.NoError(t, err)

	cb.Write(1)
	cb.Write(2)
	cb.Write(3) // evicts 1

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	assert.True(t, found["iotdash_buffer_writes_total"])
	assert.True(t, found["iotdash_buffer_drops_total"])
	assert.True(t, found["iotdash_buffer_size"])
}

func TestCircularStats(t *testing.T) {
	cb, err := NewCircular[int](2)
	require.NoError(t, err)

	cb.Write(1)
	cb.Write(2)
	cb.Write(3)

	stats := cb.Stats()
	assert.Equal(t, int64(3), stats.Writes())
	assert.Equal(t, int64(1), stats.Drops())
	assert.Equal(t, int64(2), stats.CurrentSize())
	assert.Equal(t, int64(2), stats.MaxSize())
	assert.InDelta(t, 1.0/3.0, stats.DropRate(), 1e-9)
}

func TestCircularMetricsDuplicatePrefix(t *testing.T) {
	registry := metric.NewRegistry()
	_, err := NewCircular(2, WithMetrics[int](registry, "window"))
	require.NoError(t, err)

	_, err = NewCircular(2, WithMetrics[int](registry, "window"))
	assert.Error(t, err)

	// Sanity: first buffer's collectors remain functional
	count, err := testutil.GatherAndCount(registry.PrometheusRegistry(), "iotdash_buffer_size")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
