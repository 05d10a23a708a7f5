package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/c360/natsbridge/errors"
	"github.com/c360/natsbridge/pkg/tlsutil"
)

// Config represents the complete application configuration
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Request RequestConfig `yaml:"request"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	Host               string         `yaml:"host"`
	Port               int            `yaml:"port"`
	User               string         `yaml:"user,omitempty"`
	Pass               string         `yaml:"pass,omitempty"`
	Token              string         `yaml:"token,omitempty"`
	Name               string         `yaml:"name,omitempty"`
	MaxReconnects      int            `yaml:"max_reconnects"`
	ReconnectWait      time.Duration  `yaml:"reconnect_wait"`
	ConnectTimeout     time.Duration  `yaml:"connect_timeout"`
	DrainTimeout       time.Duration  `yaml:"drain_timeout"`
	WaitOnFirstConnect bool           `yaml:"wait_on_first_connect"`
	TLS                tlsutil.Config `yaml:"tls"`
}

// URL returns the server URL built from Host and Port. Credentials are not
// part of it; they are passed to the client separately.
func (n NATSConfig) URL() string {
	host := n.Host
	if !strings.Contains(host, "://") {
		host = "nats://" + host
	}
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return host
	}
	if u.Port() == "" && n.Port > 0 {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(n.Port))
	}
	return u.String()
}

// RequestConfig holds request and publish defaults
type RequestConfig struct {
	DefaultTimeout  time.Duration `yaml:"default_timeout"`
	DefaultRetries  int           `yaml:"default_retries"`
	PerfLog         bool          `yaml:"perf_log"`
	PerfLogExcludes []string      `yaml:"perf_log_excludes,omitempty"`
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// MetricsConfig controls the metrics and health HTTP endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			Host:               "localhost",
			Port:               4222,
			MaxReconnects:      1000,
			ReconnectWait:      2 * time.Second,
			ConnectTimeout:     5 * time.Second,
			DrainTimeout:       30 * time.Second,
			WaitOnFirstConnect: true,
		},
		Request: RequestConfig{
			DefaultTimeout: 10 * time.Second,
			DefaultRetries: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.NATS.Host) == "" {
		add("nats.host is required (NATS_HOST)")
	}
	if c.NATS.Port <= 0 || c.NATS.Port > 65535 {
		add("nats.port must be between 1 and 65535, got %d (NATS_PORT)", c.NATS.Port)
	}
	if (c.NATS.User == "") != (c.NATS.Pass == "") {
		add("nats.user and nats.pass must be set together (NATS_USER, NATS_PASS)")
	}
	if c.NATS.MaxReconnects < -1 {
		add("nats.max_reconnects must be -1 (forever) or more, got %d", c.NATS.MaxReconnects)
	}
	if c.NATS.ReconnectWait < 0 {
		add("nats.reconnect_wait cannot be negative")
	}
	if c.NATS.ConnectTimeout <= 0 {
		add("nats.connect_timeout must be positive")
	}
	if c.NATS.DrainTimeout < 0 {
		add("nats.drain_timeout cannot be negative")
	}
	if err := c.NATS.TLS.Validate(); err != nil {
		add("nats.tls: %v", err)
	}

	if c.Request.DefaultTimeout <= 0 {
		add("request.default_timeout must be positive (NATS_DEFAULT_TIMEOUT)")
	}
	if c.Request.DefaultRetries < 0 {
		add("request.default_retries must be a non-negative number, got %d (NATS_DEFAULT_REQUEST_RETRIES)",
			c.Request.DefaultRetries)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		add("log.format must be json or text, got %q", c.Log.Format)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Addr == "" {
			add("metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			add("metrics.path must start with /, got %q", c.Metrics.Path)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %d problem(s): %s", errors.ErrInvalidConfig, len(problems), strings.Join(problems, "; ")),
		"Config", "Validate", "validate configuration")
}

// String renders the config with secrets masked.
func (c *Config) String() string {
	redacted := *c
	if redacted.NATS.Pass != "" {
		redacted.NATS.Pass = "***"
	}
	if redacted.NATS.Token != "" {
		redacted.NATS.Token = "***"
	}
	return fmt.Sprintf("%+v", redacted)
}
