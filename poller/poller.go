// Package poller periodically fetches a snapshot of recent readings from
// the source's listing endpoint. It is a safety net alongside the live
// stream: its snapshot is swapped atomically and never shares mutable
// state with the stream's stores.
package poller

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kaipokrandt/iotsecuritydash/errors"
	"github.com/kaipokrandt/iotsecuritydash/health"
	"github.com/kaipokrandt/iotsecuritydash/logging"
	"github.com/kaipokrandt/iotsecuritydash/pkg/retry"
	"github.com/kaipokrandt/iotsecuritydash/telemetry"
)

// Defaults.
const (
	DefaultInterval = 10 * time.Second
	DefaultLimit    = 200
)

// Config holds the polling parameters.
type Config struct {
	// BaseURL is the HTTP base of the telemetry source, e.g.
	// https://host. The poller GETs <BaseURL>/events?limit=<Limit>.
	BaseURL string
	Token   string

	Interval time.Duration
	Limit    int
	Timeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// Option configures optional Poller collaborators.
type Option func(*Poller)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Poller) { p.client = client }
}

// WithLogger sets the component logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithHealthMonitor publishes poll health to the given monitor.
func WithHealthMonitor(monitor *health.Monitor) Option {
	return func(p *Poller) { p.monitor = monitor }
}

// Snapshot is one successful poll result.
type Snapshot struct {
	Readings  []telemetry.ReadingEvent `json:"readings"`
	FetchedAt time.Time                `json:"fetched_at"`
}

// Poller fetches reading snapshots on a fixed interval.
type Poller struct {
	config  Config
	target  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
	monitor *health.Monitor

	snapshot atomic.Pointer[Snapshot]
	failures atomic.Int64
	polls    atomic.Int64
}

// New creates a poller for the source's listing endpoint.
func New(config Config, opts ...Option) (*Poller, error) {
	if config.BaseURL == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "poller", "New", "read base URL")
	}
	config.applyDefaults()

	target, err := listURL(config)
	if err != nil {
		return nil, err
	}

	p := &Poller{
		config: config,
		target: target,
		client: &http.Client{Timeout: config.Timeout},
		// one request per interval regardless of reload churn
		limiter: rate.NewLimiter(rate.Every(config.Interval), 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func listURL(config Config) (string, error) {
	u, err := url.Parse(config.BaseURL)
	if err != nil {
		return "", errors.WrapFatal(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "poller", "New", "parse base URL")
	}
	u = u.JoinPath("events")
	q := u.Query()
	q.Set("limit", fmt.Sprintf("%d", config.Limit))
	if config.Token != "" {
		q.Set("token", config.Token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run polls once immediately, then on every interval tick until the
// context is canceled. Failures keep the previous snapshot.
func (p *Poller) Run(ctx context.Context) error {
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// Snapshot returns the latest successful poll result, or nil before the
// first success.
func (p *Poller) Snapshot() *Snapshot {
	return p.snapshot.Load()
}

// Health reports the poller's health for aggregation.
func (p *Poller) Health() health.Status {
	snap := p.snapshot.Load()
	if snap == nil {
		if p.failures.Load() > 0 {
			return health.NewUnhealthy("poller", "no successful poll yet")
		}
		return health.NewDegraded("poller", "waiting for first poll")
	}
	return health.NewHealthy("poller", "polling").WithMetrics(&health.Metrics{
		ErrorCount:      int(p.failures.Load()),
		EventsProcessed: p.polls.Load(),
		LastActivity:    snap.FetchedAt,
	})
}

func (p *Poller) pollOnce(ctx context.Context) {
	if err := p.limiter.Wait(ctx); err != nil {
		return
	}

	cfg := retry.Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}

	readings, err := retry.DoWithResult(ctx, cfg, func() ([]telemetry.ReadingEvent, error) {
		return p.fetch(ctx)
	})
	if err != nil {
		p.failures.Add(1)
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "snapshot poll failed", err)
		}
		if p.monitor != nil {
			p.monitor.UpdateDegraded("poller", "poll failed, serving previous snapshot")
		}
		return
	}

	p.polls.Add(1)
	p.snapshot.Store(&Snapshot{Readings: readings, FetchedAt: time.Now()})
	if p.monitor != nil {
		p.monitor.UpdateHealthy("poller", "polling")
	}
}

// fetch GETs one snapshot. Client errors are not retried; everything else
// is considered transient.
func (p *Poller) fetch(ctx context.Context) ([]telemetry.ReadingEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.target, nil)
	if err != nil {
		return nil, retry.NonRetryable(errors.WrapFatal(err, "poller", "fetch", "build request"))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, "poller", "fetch", "execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errors.WrapTransient(err, "poller", "fetch", "read response body")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, retry.NonRetryable(errors.WrapInvalid(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			"poller", "fetch", "check response status",
		))
	default:
		return nil, errors.WrapTransient(
			fmt.Errorf("unexpected status %d", resp.StatusCode),
			"poller", "fetch", "check response status",
		)
	}

	readings, err := decodeListing(body)
	if err != nil {
		return nil, retry.NonRetryable(err)
	}
	return readings, nil
}

// decodeListing reuses the stream classifier so HTTP snapshots follow the
// same tolerant parsing as live frames. Malformed records are dropped
// rather than failing the poll.
func decodeListing(body []byte) ([]telemetry.ReadingEvent, error) {
	result, err := telemetry.Classify(body, time.Now())
	if err != nil {
		if stderrors.Is(err, errors.ErrEmptyFrame) {
			return nil, nil
		}
		return nil, err
	}
	return result.Readings, nil
}
