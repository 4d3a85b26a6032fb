package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listing = `[
	{"id": "r-1", "device_id": "a", "payload": {"metrics": {"temperature": 70}}},
	{"id": "r-2", "device_id": "b", "payload": {"metrics": {"temperature": 71}}}
]`

func TestPollerFetchesSnapshot(t *testing.T) {
	var gotLimit, gotToken, gotRequestID atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/events", r.URL.Path)
		gotLimit.Store(r.URL.Query().Get("limit"))
		gotToken.Store(r.URL.Query().Get("token"))
		gotRequestID.Store(r.Header.Get("X-Request-ID"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listing))
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, Token: "secret", Limit: 50})
	require.NoError(t, err)

	p.pollOnce(context.Background())

	snap := p.Snapshot()
	require.NotNil(t, snap)
	require.Len(t, snap.Readings, 2)
	assert.Equal(t, "r-1", snap.Readings[0].ID)
	assert.Equal(t, "50", gotLimit.Load())
	assert.Equal(t, "secret", gotToken.Load())
	assert.NotEmpty(t, gotRequestID.Load())
	assert.True(t, p.Health().IsHealthy())
}

func TestPollerKeepsPreviousSnapshotOnFailure(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(listing))
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	p.pollOnce(context.Background())
	require.NotNil(t, p.Snapshot())
	first := p.Snapshot()

	fail.Store(true)
	p.pollOnce(context.Background())

	assert.Same(t, first, p.Snapshot())
	assert.Equal(t, int64(1), p.failures.Load())
}

func TestPollerRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(listing))
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	p.pollOnce(context.Background())

	require.NotNil(t, p.Snapshot())
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollerDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	p.pollOnce(context.Background())

	assert.Nil(t, p.Snapshot())
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, p.Health().IsUnhealthy())
}

func TestPollerSnapshotIsolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(listing))
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	p.pollOnce(context.Background())

	snap := p.Snapshot()
	require.NotNil(t, snap)
	snap.Readings[0].ID = "mutated"

	// a later poll replaces the pointer; the stored snapshot is never
	// mutated in place by the poller itself
	p.limiter.SetLimit(1e9)
	p.pollOnce(context.Background())
	assert.Equal(t, "r-1", p.Snapshot().Readings[0].ID)
}

func TestPollerEmptyListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	p.pollOnce(context.Background())

	snap := p.Snapshot()
	require.NotNil(t, snap)
	assert.Empty(t, snap.Readings)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(listing))
	}))
	defer srv.Close()

	p, err := New(Config{BaseURL: srv.URL, Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = p.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotNil(t, p.Snapshot())
}

func TestNewPollerValidation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "://bad"})
	require.Error(t, err)
}
