package natsclient

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/c360/docstore/metric"
)

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCredentials authenticates with a username and password
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username, c.password = username, password
	}
}

// WithToken authenticates with a token
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTLSConfig connects over TLS. Nil keeps plain TCP.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) { c.tlsConfig = cfg }
}

// WithName sets the connection name shown by the server
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithTimeout bounds the initial dial
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxReconnects limits reconnection attempts; -1 retries forever
func WithMaxReconnects(n int) Option {
	return func(c *Client) { c.maxReconnects = n }
}

// WithReconnectWait sets the pause between reconnection attempts
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) { c.reconnectWait = d }
}

// WithPingInterval sets the client-server keepalive interval
func WithPingInterval(d time.Duration) Option {
	return func(c *Client) { c.pingInterval = d }
}

// WithProbeInterval sets how often a connected client measures RTT. 0 disables probing.
func WithProbeInterval(d time.Duration) Option {
	return func(c *Client) { c.probeInterval = d }
}

// WithDrainTimeout bounds the drain performed by Close
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Client) { c.drainTimeout = d }
}

// WithCircuitBreaker sets how many failures trip the breaker and the longest backoff.
// Values below 1 failure or 1 second keep the defaults of 5 and one minute.
func WithCircuitBreaker(threshold int32, maxBackoff time.Duration) Option {
	return func(c *Client) {
		if threshold >= 1 {
			c.threshold = threshold
		}
		if maxBackoff >= time.Second {
			c.maxBackoff = maxBackoff
		}
	}
}

// WithStateListener is called on every state change, on its own goroutine
func WithStateListener(fn func(ConnState)) Option {
	return func(c *Client) { c.listener = fn }
}

// WithMetrics reports connection state, RTT, reconnects and the breaker to the registry's
// core collectors under backend="nats".
func WithMetrics(registry *metric.Registry) Option {
	return func(c *Client) {
		if registry != nil {
			c.metrics = registry.Core()
		}
	}
}
