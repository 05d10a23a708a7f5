package natsclient

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/c360/natsbridge/errors"
	"github.com/c360/natsbridge/metric"
	"github.com/c360/natsbridge/pkg/retry"
)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithMaxReconnects sets the maximum number of reconnection attempts (-1 for infinite)
func WithMaxReconnects(max int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithReconnectWait sets the wait time between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return errors.Validation("Client", "WithReconnectWait", "reconnect wait cannot be negative")
		}
		c.reconnectWait = d
		return nil
	}
}

// WithPingInterval sets the ping interval for connection health checks
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.pingInterval = d
		return nil
	}
}

// WithTimeout sets the connection timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return errors.Validation("Client", "WithTimeout", "timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout sets how long Close waits for subscriptions to drain
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.drainTimeout = d
		return nil
	}
}

// WithLogger sets the structured logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithCredentials sets username and password for authentication
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithToken sets a token for authentication
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithName sets the client name for identification
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithMetrics reports connection, publish and delivery metrics into registry.
func WithMetrics(registry *metric.MetricsRegistry) ClientOption {
	return func(c *Client) error {
		c.registry = registry
		c.metrics = registry.CoreMetrics()
		return nil
	}
}

// WithTLSConfig secures the connection with cfg.
// See tlsutil.ClientConfig for building one from configuration.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *Client) error {
		if cfg == nil {
			return errors.Validation("Client", "WithTLSConfig", "tls config must not be nil")
		}
		c.tlsConfig = cfg
		return nil
	}
}

// WithPerfLog enables logging of publish latency.
func WithPerfLog(enabled bool) ClientOption {
	return func(c *Client) error {
		c.perf.enabled = enabled
		return nil
	}
}

// WithPerfLogExcludes replaces the subject tokens whose publishes are never
// latency-logged. See DefaultPerfLogExcludes.
func WithPerfLogExcludes(tokens ...string) ClientOption {
	return func(c *Client) error {
		c.perf.exclude(tokens)
		return nil
	}
}

// WithConnectRetry retries the initial connection under policy instead of
// failing on the first refused dial.
func WithConnectRetry(policy retry.Policy) ClientOption {
	return func(c *Client) error {
		c.connectRetry = &policy
		return nil
	}
}

// WithDispatcher routes lifecycle events through d instead of a private dispatcher.
func WithDispatcher(d *Dispatcher) ClientOption {
	return func(c *Client) error {
		if d == nil {
			return errors.Validation("Client", "WithDispatcher", "dispatcher must not be nil")
		}
		c.dispatcher = d
		return nil
	}
}

// WithGate gates subscriptions through g instead of a private gate.
func WithGate(g *Gate) ClientOption {
	return func(c *Client) error {
		if g == nil {
			return errors.Validation("Client", "WithGate", "gate must not be nil")
		}
		c.gate = g
		return nil
	}
}

// WithUnhandledErrorHandler sets the function receiving errors that a
// lifecycle dispatch returned from inside a connection callback. The default
// panics, so an error event without any error handler stops the process.
func WithUnhandledErrorHandler(fn func(error)) ClientOption {
	return func(c *Client) error {
		if fn == nil {
			return errors.Validation("Client", "WithUnhandledErrorHandler", "handler must not be nil")
		}
		c.onUnhandled = fn
		return nil
	}
}
