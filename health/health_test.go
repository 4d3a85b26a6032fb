package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty message",
			input:    "",
			expected: "",
		},
		{
			name:     "ws url with token query",
			input:    "dial failed: ws://dashboard.local/ws/events?token=abc123",
			expected: "dial failed: [URL]",
		},
		{
			name:     "https url",
			input:    "poll failed: https://api.example.com/events?limit=200",
			expected: "poll failed: [URL]",
		},
		{
			name:     "nats url",
			input:    "publish failed: nats://10.0.0.5:4222",
			expected: "publish failed: [URL]",
		},
		{
			name:     "bare ip and port",
			input:    "connection refused from 192.168.1.10:8080",
			expected: "connection refused from [IP][PORT]",
		},
		{
			name:     "credential assignment",
			input:    "auth rejected: token=supersecret",
			expected: "auth rejected: [REDACTED]",
		},
		{
			name:     "plain message untouched",
			input:    "buffer is full",
			expected: "buffer is full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}

func TestFromCheck(t *testing.T) {
	healthy := FromCheck("stream", true, "")
	assert.True(t, healthy.IsHealthy())
	assert.Equal(t, "Component is operating normally", healthy.Message)

	unhealthy := FromCheck("stream", false, "dial failed: wss://host/ws?token=x")
	assert.True(t, unhealthy.IsUnhealthy())
	assert.Equal(t, "dial failed: [URL]", unhealthy.Message)
}

func TestAggregate(t *testing.T) {
	t.Run("empty is healthy", func(t *testing.T) {
		status := Aggregate("system", nil)
		assert.True(t, status.IsHealthy())
	})

	t.Run("all healthy", func(t *testing.T) {
		status := Aggregate("system", []Status{
			NewHealthy("stream", "ok"),
			NewHealthy("window", "ok"),
		})
		assert.True(t, status.IsHealthy())
		assert.Len(t, status.SubStatuses, 2)
	})

	t.Run("any unhealthy wins", func(t *testing.T) {
		status := Aggregate("system", []Status{
			NewHealthy("window", "ok"),
			NewDegraded("poller", "slow"),
			NewUnhealthy("stream", "disconnected"),
		})
		assert.True(t, status.IsUnhealthy())
	})

	t.Run("degraded without unhealthy", func(t *testing.T) {
		status := Aggregate("system", []Status{
			NewHealthy("window", "ok"),
			NewDegraded("stream", "reconnecting"),
		})
		assert.True(t, status.IsDegraded())
	})
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()

	m.UpdateHealthy("stream", "connected")
	m.UpdateUnhealthy("poller", "http 500")

	status, ok := m.Get("stream")
	require.True(t, ok)
	assert.Equal(t, "stream", status.Component)
	assert.True(t, status.IsHealthy())
	assert.False(t, status.Timestamp.IsZero())

	all := m.GetAll()
	assert.Len(t, all, 2)

	agg := m.AggregateHealth("dashboard")
	assert.True(t, agg.IsUnhealthy())

	m.Remove("poller")
	_, ok = m.Get("poller")
	assert.False(t, ok)
	assert.Equal(t, []string{"stream"}, m.ListComponents())

	agg = m.AggregateHealth("dashboard")
	assert.True(t, agg.IsHealthy())
}

func TestStatusWithMetrics(t *testing.T) {
	status := NewHealthy("stream", "ok").WithMetrics(&Metrics{
		Uptime:          time.Minute,
		EventsProcessed: 42,
	})
	require.NotNil(t, status.Metrics)
	assert.Equal(t, int64(42), status.Metrics.EventsProcessed)
}
