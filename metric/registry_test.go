package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaipokrandt/iotsecuritydash/errors"
)

func TestRegisterCounter(t *testing.T) {
	r := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "test_counter_total",
		Help:      "test counter",
	})

	require.NoError(t, r.RegisterCounter("stream", "test_counter", counter))

	// Same key again is invalid
	err := r.RegisterCounter("stream", "test_counter", counter)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegisterConflictingCollector(t *testing.T) {
	r := NewRegistry()

	mk := func() prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "conflicting_total",
			Help:      "conflicting",
		})
	}

	require.NoError(t, r.RegisterCounter("a", "first", mk()))

	// Different key, same prometheus identity
	err := r.RegisterCounter("b", "second", mk())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "test_gauge",
		Help:      "test gauge",
	})

	require.NoError(t, r.RegisterGauge("stream", "test_gauge", gauge))
	assert.True(t, r.Unregister("stream", "test_gauge"))
	assert.False(t, r.Unregister("stream", "test_gauge"))

	// Re-registration after unregister succeeds
	require.NoError(t, r.RegisterGauge("stream", "test_gauge", gauge))
}

func TestHandlerServesCoreMetrics(t *testing.T) {
	r := NewRegistry()
	r.Core.EventsTotal.WithLabelValues("reading").Inc()

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := make([]byte, 1<<16)
	n, _ := resp.Body.Read(buf)
	body := string(buf[:n])
	assert.Contains(t, body, "iotdash_telemetry_events_total")
}
