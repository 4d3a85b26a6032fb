// Package stream maintains exactly one logical live connection to the
// telemetry source. The Manager owns the connection lifecycle state
// machine: it dials, sends the readiness frame, reads frames in arrival
// order, routes classified events into the window and ledger, and
// reconnects with capped exponential backoff when the transport drops.
package stream

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kaipokrandt/iotsecuritydash/errors"
	"github.com/kaipokrandt/iotsecuritydash/health"
	"github.com/kaipokrandt/iotsecuritydash/logging"
	"github.com/kaipokrandt/iotsecuritydash/metric"
	"github.com/kaipokrandt/iotsecuritydash/store"
	"github.com/kaipokrandt/iotsecuritydash/telemetry"
)

// readinessFrame is sent once after every successful handshake. The source
// holds back data until it sees this literal.
const readinessFrame = "frontend:ready"

// Backoff defaults.
const (
	DefaultBackoffFloor      = 1000 * time.Millisecond
	DefaultBackoffCeiling    = 10000 * time.Millisecond
	DefaultBackoffMultiplier = 2.0
)

// Config holds the connection parameters for the Manager.
type Config struct {
	// URL is the full WebSocket endpoint, e.g. wss://host/ws/events.
	URL string
	// Token is appended to the URL as a query credential.
	Token string

	BackoffFloor      time.Duration
	BackoffCeiling    time.Duration
	BackoffMultiplier float64
	HandshakeTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = DefaultBackoffFloor
	}
	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = DefaultBackoffCeiling
	}
	if c.BackoffMultiplier <= 1 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
}

// Status is a point-in-time snapshot of the manager's state and counters.
type Status struct {
	State             ConnectionState `json:"state"`
	ConnectionID      string          `json:"connection_id,omitempty"`
	Backoff           time.Duration   `json:"backoff_ns"`
	FramesReceived    int64           `json:"frames_received"`
	DecodeErrors      int64           `json:"decode_errors"`
	RecordsDropped    int64           `json:"records_dropped"`
	ReconnectAttempts int64           `json:"reconnect_attempts"`
	ReadingsRecorded  int64           `json:"readings_recorded"`
	AnomaliesRecorded int64           `json:"anomalies_recorded"`
	LastActivity      time.Time       `json:"last_activity"`
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithDialer overrides the transport dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithClock overrides the clock used for timestamps and reconnect timers.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics registers manager metrics on the given registry.
func WithMetrics(registry *metric.Registry) Option {
	return func(m *Manager) { m.metrics = newMetrics(registry, "stream") }
}

// WithHealthMonitor publishes connection health to the given monitor.
func WithHealthMonitor(monitor *health.Monitor) Option {
	return func(m *Manager) { m.monitor = monitor }
}

// Manager drives the connection state machine. All state fields are
// guarded by one mutex; window and ledger mutations happen only on the
// manager's single read-loop goroutine, so downstream events are applied
// strictly in arrival order.
type Manager struct {
	config Config
	target string

	window *store.EventWindow
	ledger *store.AnomalyLedger

	dialer  Dialer
	clock   Clock
	logger  *logging.Logger
	metrics *Metrics
	monitor *health.Monitor

	mu             sync.Mutex
	started        bool
	tornDown       bool
	state          ConnectionState
	backoff        time.Duration
	conn           Conn
	reconnectTimer Timer
	connectionID   string
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	framesReceived    int64
	decodeErrors      int64
	recordsDropped    int64
	reconnectAttempts int64
	readingsRecorded  int64
	anomaliesRecorded int64
	lastActivity      time.Time
}

// NewManager creates a connection manager routing classified events into
// window and ledger.
func NewManager(config Config, window *store.EventWindow, ledger *store.AnomalyLedger, opts ...Option) (*Manager, error) {
	if config.URL == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "stream", "NewManager", "read endpoint URL")
	}
	if window == nil || ledger == nil {
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "stream", "NewManager", "wire event stores")
	}
	config.applyDefaults()

	target, err := dialURL(config.URL, config.Token)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config:  config,
		target:  target,
		window:  window,
		ledger:  ledger,
		dialer:  NewDialer(config.HandshakeTimeout),
		clock:   NewClock(),
		state:   Closed,
		backoff: config.BackoffFloor,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// dialURL appends the token as a query credential.
func dialURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "stream", "NewManager", "parse endpoint URL")
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Start begins the connect cycle. It is idempotent: calling Start on a
// running manager has no effect. A torn-down manager cannot be restarted.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tornDown {
		return errors.WrapFatal(errors.ErrTornDown, "stream", "Start", "check lifecycle state")
	}
	if m.started {
		return nil
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.started = true
	m.state = Connecting
	m.backoff = m.config.BackoffFloor
	m.metrics.setState(Connecting)
	m.metrics.setUp("stream", true)

	m.wg.Add(1)
	go m.connect(m.ctx)
	return nil
}

// Stop tears the manager down: it cancels any pending reconnect timer,
// closes the transport, and waits up to timeout for the read loop to exit.
// Idempotent; timer or close callbacks firing after Stop are no-ops.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	if m.tornDown || !m.started {
		m.tornDown = true
		m.mu.Unlock()
		return nil
	}
	m.tornDown = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = Closed
	m.mu.Unlock()

	m.metrics.setState(Closed)
	m.metrics.setUp("stream", false)
	if m.monitor != nil {
		m.monitor.UpdateUnhealthy("stream", "stopped")
	}

	doneCh := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"stream", "Stop", "wait for read loop",
		)
	}
	return nil
}

// State returns the current connection state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of state and counters.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:             m.state,
		ConnectionID:      m.connectionID,
		Backoff:           m.backoff,
		FramesReceived:    m.framesReceived,
		DecodeErrors:      m.decodeErrors,
		RecordsDropped:    m.recordsDropped,
		ReconnectAttempts: m.reconnectAttempts,
		ReadingsRecorded:  m.readingsRecorded,
		AnomaliesRecorded: m.anomaliesRecorded,
		LastActivity:      m.lastActivity,
	}
}

// Health reports the manager's health for aggregation.
func (m *Manager) Health() health.Status {
	status := m.Status()
	switch status.State {
	case Open:
		return health.NewHealthy("stream", "connected").WithMetrics(&health.Metrics{
			ErrorCount:      int(status.DecodeErrors),
			EventsProcessed: status.ReadingsRecorded + status.AnomaliesRecorded,
			LastActivity:    status.LastActivity,
		})
	case Connecting:
		return health.NewDegraded("stream", "connecting")
	default:
		return health.NewDegraded("stream", fmt.Sprintf("disconnected, next attempt in %v", status.Backoff))
	}
}

// connect dials the source and, on success, runs the read loop until the
// connection drops. Dial failure goes straight to the reconnect path.
func (m *Manager) connect(ctx context.Context) {
	defer m.wg.Done()

	conn, err := m.dialer.DialContext(ctx, m.target)
	if err != nil {
		if m.logger != nil {
			m.logger.Error("connection attempt failed", err)
		}
		m.handleDisconnect(err.Error())
		return
	}

	m.mu.Lock()
	if m.tornDown {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.state = Open
	m.backoff = m.config.BackoffFloor
	m.connectionID = uuid.NewString()
	m.lastActivity = m.clock.Now()
	m.mu.Unlock()

	m.metrics.setState(Open)
	if m.logger != nil {
		m.logger.Info("connected to telemetry source")
	}
	if m.monitor != nil {
		m.monitor.UpdateHealthy("stream", "connected")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(readinessFrame)); err != nil {
		if m.logger != nil {
			m.logger.Error("readiness frame write failed", err)
		}
		m.handleDisconnect(err.Error())
		return
	}

	m.readLoop(ctx, conn)
}

// readLoop processes frames strictly in arrival order. It exits on
// transport error, which routes to the reconnect path, or on context
// cancellation during teardown.
func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(err.Error())
			return
		}
		m.dispatch(raw)
	}
}

// dispatch classifies one frame and routes the result. Decode failures are
// swallowed and counted; a batch's malformed siblings are dropped without
// affecting the rest. Every successful decode mutates exactly one of the
// window and the ledger.
func (m *Manager) dispatch(raw []byte) {
	now := m.clock.Now()
	result, err := telemetry.Classify(raw, now)

	m.mu.Lock()
	m.framesReceived++
	m.lastActivity = now
	if err != nil {
		m.decodeErrors++
	} else {
		m.recordsDropped += int64(result.Dropped)
	}
	m.mu.Unlock()

	m.metrics.incFrames()
	if err != nil {
		m.metrics.incDecodeErrors()
		m.metrics.incError("stream", "invalid")
		if m.logger != nil {
			m.logger.Warn("discarding undecodable frame: " + err.Error())
		}
		return
	}
	m.metrics.addDropped(result.Dropped)

	if result.Anomaly != nil {
		m.ledger.Append(*result.Anomaly)
		m.metrics.addEvents("anomaly", 1)
		m.mu.Lock()
		m.anomaliesRecorded++
		m.mu.Unlock()
		return
	}

	before := m.window.Len()
	m.window.Append(result.Readings...)
	evicted := before + len(result.Readings) - m.window.Len()
	for i := 0; i < evicted; i++ {
		m.metrics.incEvictions()
	}
	m.metrics.addEvents("reading", len(result.Readings))

	m.mu.Lock()
	m.readingsRecorded += int64(len(result.Readings))
	m.mu.Unlock()
}

// handleDisconnect schedules a reconnect after the current backoff, then
// doubles the backoff up to the ceiling. It is a no-op after teardown.
// reason is the transport error text; it is sanitized before reaching
// health output because it can embed the token-bearing target URL.
func (m *Manager) handleDisconnect(reason string) {
	m.mu.Lock()
	if m.tornDown {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.state = Closed

	wait := m.backoff
	next := time.Duration(float64(m.backoff) * m.config.BackoffMultiplier)
	if next > m.config.BackoffCeiling {
		next = m.config.BackoffCeiling
	}
	m.backoff = next
	m.reconnectAttempts++
	m.reconnectTimer = m.clock.AfterFunc(wait, m.onReconnectTimer)
	m.mu.Unlock()

	m.metrics.setState(Closed)
	m.metrics.incReconnects()
	m.metrics.incError("stream", "transient")
	if m.logger != nil {
		m.logger.Warn(fmt.Sprintf("connection lost, reconnecting in %v", wait))
	}
	if m.monitor != nil {
		m.monitor.Update("stream", health.FromCheck("stream", false, reason))
	}
}

// onReconnectTimer fires on the injected clock. The torn-down check makes
// a timer that slipped past Stop's cancellation harmless.
func (m *Manager) onReconnectTimer() {
	m.mu.Lock()
	if m.tornDown || !m.started {
		m.mu.Unlock()
		return
	}
	m.state = Connecting
	m.reconnectTimer = nil
	ctx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	m.metrics.setState(Connecting)
	go m.connect(ctx)
}
