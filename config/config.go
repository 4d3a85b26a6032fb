// Package config loads, validates, and watches the dashboard's YAML
// configuration. The two stream credentials can be supplied by
// environment (IOTDASH_ENDPOINT, IOTDASH_WS_TOKEN) and take precedence
// over the file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kaipokrandt/iotsecuritydash/errors"
)

// Environment override variables.
const (
	EnvEndpoint = "IOTDASH_ENDPOINT"
	EnvWSToken  = "IOTDASH_WS_TOKEN"
)

// Duration wraps time.Duration so YAML accepts "10s" style values.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// BackoffConfig bounds the stream reconnect backoff.
type BackoffConfig struct {
	Floor      Duration `yaml:"floor" json:"floor"`
	Ceiling    Duration `yaml:"ceiling" json:"ceiling"`
	Multiplier float64  `yaml:"multiplier" json:"multiplier"`
}

// WindowConfig bounds the in-memory reading window.
type WindowConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
}

// LedgerConfig bounds the anomaly ledger. Zero means unbounded.
type LedgerConfig struct {
	Capacity int `yaml:"capacity" json:"capacity"`
}

// PollConfig drives the secondary snapshot poller.
type PollConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Interval Duration `yaml:"interval" json:"interval"`
	Limit    int      `yaml:"limit" json:"limit"`
}

// APIConfig configures the read-only HTTP surface.
type APIConfig struct {
	Port int `yaml:"port" json:"port"`
}

// NATSConfig enables remote log fan-out when a URL is set.
type NATSConfig struct {
	URL string `yaml:"url" json:"url"`
}

// LogConfig controls local logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Config is the full dashboard configuration.
type Config struct {
	// Endpoint is the telemetry source base URL (http or https); the
	// stream derives its ws/wss URL from it.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// WSPath is the WebSocket path on the source.
	WSPath string `yaml:"ws_path" json:"ws_path"`
	// Token is the stream credential, passed through as a query
	// parameter. The dashboard never issues or refreshes it.
	Token string `yaml:"token" json:"token"`

	Window  WindowConfig  `yaml:"window" json:"window"`
	Ledger  LedgerConfig  `yaml:"ledger" json:"ledger"`
	Backoff BackoffConfig `yaml:"backoff" json:"backoff"`
	Poll    PollConfig    `yaml:"poll" json:"poll"`
	API     APIConfig     `yaml:"api" json:"api"`
	NATS    NATSConfig    `yaml:"nats" json:"nats"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// Default returns the configuration used when the file omits values.
func Default() Config {
	return Config{
		WSPath: "/ws/events",
		Window: WindowConfig{Capacity: 200},
		Ledger: LedgerConfig{Capacity: 0},
		Backoff: BackoffConfig{
			Floor:      Duration(1000 * time.Millisecond),
			Ceiling:    Duration(10000 * time.Millisecond),
			Multiplier: 2.0,
		},
		Poll: PollConfig{
			Enabled:  true,
			Interval: Duration(10 * time.Second),
			Limit:    200,
		},
		API: APIConfig{Port: 8080},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path, validates it against the embedded
// schema, merges it over defaults, applies environment overrides, and
// validates the result. An empty path skips the file and uses defaults
// plus environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := validateSchema(data); err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.WrapFatal(
				fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
				"config", "Load", "parse config file",
			)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if endpoint := os.Getenv(EnvEndpoint); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if token := os.Getenv(EnvWSToken); token != "" {
		cfg.Token = token
	}
}

// Validate checks semantic constraints the schema cannot express.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.WrapFatal(
			fmt.Errorf("%w: endpoint (set %s or the endpoint key)", errors.ErrMissingConfig, EnvEndpoint),
			"config", "Validate", "check endpoint",
		)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.WrapFatal(
			fmt.Errorf("%w: endpoint %q is not an absolute URL", errors.ErrInvalidConfig, c.Endpoint),
			"config", "Validate", "parse endpoint",
		)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WrapFatal(
			fmt.Errorf("%w: endpoint scheme %q (want http or https)", errors.ErrInvalidConfig, u.Scheme),
			"config", "Validate", "check endpoint scheme",
		)
	}
	if c.Window.Capacity <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: window capacity %d", errors.ErrInvalidConfig, c.Window.Capacity),
			"config", "Validate", "check window capacity",
		)
	}
	if c.Backoff.Floor <= 0 || c.Backoff.Ceiling < c.Backoff.Floor {
		return errors.WrapFatal(
			fmt.Errorf("%w: backoff floor %v ceiling %v", errors.ErrInvalidConfig, c.Backoff.Floor.Std(), c.Backoff.Ceiling.Std()),
			"config", "Validate", "check backoff bounds",
		)
	}
	if c.Backoff.Multiplier <= 1 {
		return errors.WrapFatal(
			fmt.Errorf("%w: backoff multiplier %v", errors.ErrInvalidConfig, c.Backoff.Multiplier),
			"config", "Validate", "check backoff multiplier",
		)
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return errors.WrapFatal(
			fmt.Errorf("%w: api port %d", errors.ErrInvalidConfig, c.API.Port),
			"config", "Validate", "check api port",
		)
	}
	return nil
}

// WSURL derives the WebSocket URL from the HTTP endpoint and path.
func (c Config) WSURL() string {
	scheme := "ws"
	rest := c.Endpoint
	switch {
	case strings.HasPrefix(c.Endpoint, "https://"):
		scheme = "wss"
		rest = strings.TrimPrefix(c.Endpoint, "https://")
	case strings.HasPrefix(c.Endpoint, "http://"):
		rest = strings.TrimPrefix(c.Endpoint, "http://")
	}
	return scheme + "://" + strings.TrimSuffix(rest, "/") + c.WSPath
}
