// Package api exposes the dashboard's read-only HTTP surface. Renderers
// poll these endpoints for snapshots; nothing here mutates the stores.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kaipokrandt/iotsecuritydash/health"
	"github.com/kaipokrandt/iotsecuritydash/logging"
	"github.com/kaipokrandt/iotsecuritydash/metric"
	"github.com/kaipokrandt/iotsecuritydash/pkg/timestamp"
	"github.com/kaipokrandt/iotsecuritydash/poller"
	"github.com/kaipokrandt/iotsecuritydash/store"
	"github.com/kaipokrandt/iotsecuritydash/stream"
)

// Server serves snapshots of the dashboard state over HTTP.
type Server struct {
	port     int
	manager  *stream.Manager
	window   *store.EventWindow
	ledger   *store.AnomalyLedger
	poll     *poller.Poller
	monitor  *health.Monitor
	registry *metric.Registry
	logger   *logging.Logger

	httpServer *http.Server
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithPoller exposes the secondary poll snapshot under /api/v1/poll.
func WithPoller(p *poller.Poller) Option {
	return func(s *Server) { s.poll = p }
}

// WithHealthMonitor backs /healthz with the aggregate of the given monitor.
func WithHealthMonitor(monitor *health.Monitor) Option {
	return func(s *Server) { s.monitor = monitor }
}

// WithMetrics exposes the registry under /metrics.
func WithMetrics(registry *metric.Registry) Option {
	return func(s *Server) { s.registry = registry }
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates the read-only API server.
func NewServer(port int, manager *stream.Manager, window *store.EventWindow, ledger *store.AnomalyLedger, opts ...Option) *Server {
	s := &Server{
		port:    port,
		manager: manager,
		window:  window,
		ledger:  ledger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router. Exposed separately so tests can drive the
// handlers without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/ready", s.handleReady)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", s.registry.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/readings", s.handleReadings)
		r.Get("/anomalies", s.handleAnomalies)
		r.Get("/correlation", s.handleCorrelation)
		r.Get("/status", s.handleStatus)
		if s.poll != nil {
			r.Get("/poll", s.handlePoll)
		}
	})

	return r
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	if s.logger != nil {
		s.logger.Info(fmt.Sprintf("api listening on :%d", s.port))
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	var status health.Status
	if s.monitor != nil {
		status = s.monitor.AggregateHealth("iotsecuritydash")
	} else {
		status = s.manager.Health()
	}

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// handleReady reports readiness: true only while the stream is open.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := s.manager.State() == stream.Open
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"ready": ready,
		"state": s.manager.State().String(),
	})
}

func (s *Server) handleReadings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.window.Snapshot())
}

func (s *Server) handleAnomalies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Snapshot())
}

// handleCorrelation recomputes the correlation index over fresh snapshots.
// The index is keyed by window position.
func (s *Server) handleCorrelation(w http.ResponseWriter, _ *http.Request) {
	readings := s.window.Snapshot()
	anomalies := s.ledger.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"window_size": len(readings),
		"ledger_size": len(anomalies),
		"correlation": store.Correlate(readings, anomalies),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.manager.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"connection":      status,
		"state":           status.State.String(),
		"last_activity":   timestamp.Format(status.LastActivity),
		"window_size":     s.window.Len(),
		"window_capacity": s.window.Capacity(),
		"ledger_size":     s.ledger.Len(),
	})
}

func (s *Server) handlePoll(w http.ResponseWriter, _ *http.Request) {
	snap := s.poll.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no snapshot yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
