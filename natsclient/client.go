// Package natsclient manages the NATS connection used by the document store and exposes
// JetStream key-value buckets as docstore remotes.
package natsclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/docstore/errors"
	"github.com/c360/docstore/metric"
)

// metrics label for every series this package reports
const backendLabel = "nats"

// ConnState is the lifecycle state of a Client's connection
type ConnState int32

// Connection states
const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateCircuitOpen
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateCircuitOpen:
		return "circuit_open"
	}
	return "unknown"
}

// Both wrap errors.ErrNoConnection so document operations treat them as transient.
var (
	ErrNotConnected = fmt.Errorf("not connected to NATS: %w", errors.ErrNoConnection)
	ErrCircuitOpen  = fmt.Errorf("circuit breaker is open: %w", errors.ErrNoConnection)
)

// Status is a point-in-time view of the connection
type Status struct {
	State       ConnState
	Failures    int32
	LastFailure time.Time
	RTT         time.Duration
}

// Client owns one NATS connection and its JetStream context. Connection attempts and bucket
// management calls feed a circuit breaker; once it trips the client fails fast with
// ErrCircuitOpen until the backoff elapses.
type Client struct {
	url    string
	logger *slog.Logger
	state  atomic.Int32
	cb     *breaker

	// connection options
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	probeInterval time.Duration
	tlsConfig     *tls.Config
	name          string

	// cleared on Close
	username string
	password string
	token    string

	threshold  int32
	maxBackoff time.Duration

	metrics  *metric.Core
	listener func(ConnState)

	mu        sync.RWMutex
	conn      *nats.Conn
	js        jetstream.JetStream
	watchStop chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewClient creates a client for url. Nothing is dialed until Connect.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "url is required")
	}

	c := &Client{
		url:           url,
		logger:        slog.Default(),
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		probeInterval: 10 * time.Second,
		threshold:     5,
		maxBackoff:    time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "nats")
	c.cb = newBreaker(c.threshold, c.maxBackoff)
	return c, nil
}

// URL returns the server URL
func (c *Client) URL() string { return c.url }

// State returns the current connection state
func (c *Client) State() ConnState {
	return ConnState(c.state.Load())
}

// IsHealthy reports whether the connection is up
func (c *Client) IsHealthy() bool {
	return c.State() == StateConnected
}

// Failures returns the failures recorded since the last success
func (c *Client) Failures() int32 { return c.cb.failures() }

// Backoff returns the wait applied the next time the breaker trips
func (c *Client) Backoff() time.Duration { return c.cb.currentBackoff() }

// Conn returns the live connection, or nil
func (c *Client) Conn() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Snapshot returns the current status. RTT is zero when the server cannot be reached.
func (c *Client) Snapshot() Status {
	s := Status{
		State:       c.State(),
		Failures:    c.cb.failures(),
		LastFailure: c.cb.lastFailureAt(),
	}
	if rtt, err := c.RTT(); err == nil {
		s.RTT = rtt
	}
	return s
}

func (c *Client) setState(next ConnState) {
	prev := ConnState(c.state.Swap(int32(next)))
	c.observe(prev, next)
}

func (c *Client) observe(prev, next ConnState) {
	c.metrics.SetConnected(backendLabel, next == StateConnected)
	c.metrics.SetCircuitOpen(backendLabel, next == StateCircuitOpen)
	if prev != next && c.listener != nil {
		go c.listener(next)
	}
}

func (c *Client) recordFailure() {
	trip, wait := c.cb.fail()
	if !trip {
		return
	}

	prev := c.State()
	if prev == StateCircuitOpen {
		c.logger.Warn("Circuit breaker still open", "next_backoff", c.cb.currentBackoff())
		return
	}
	// one goroutine wins the transition and schedules the half-open
	if c.state.CompareAndSwap(int32(prev), int32(StateCircuitOpen)) {
		c.observe(prev, StateCircuitOpen)
		c.logger.Warn("Circuit breaker opened", "failures", c.cb.failures(), "backoff", wait)
		time.AfterFunc(wait, c.halfOpen)
	}
}

func (c *Client) recordSuccess() {
	c.cb.reset()
	if c.State() == StateCircuitOpen {
		c.setState(StateDisconnected)
	}
}

// halfOpen lets the next Connect through after the backoff
func (c *Client) halfOpen() {
	if c.state.CompareAndSwap(int32(StateCircuitOpen), int32(StateDisconnected)) {
		c.observe(StateCircuitOpen, StateDisconnected)
		c.logger.Debug("Circuit breaker half-open")
	}
}

// ConnectionOptions returns the options passed to nats.Connect
func (c *Client) ConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.onDisconnect),
		nats.ReconnectHandler(c.onReconnect),
		nats.ClosedHandler(c.onClosed),
		nats.ErrorHandler(c.onAsyncError),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.name != "" {
		opts = append(opts, nats.Name(c.name))
	}
	if c.tlsConfig != nil {
		opts = append(opts, nats.Secure(c.tlsConfig))
	}
	return opts
}

// Connect dials the server and opens a JetStream context. It returns ErrCircuitOpen without
// dialing while the breaker is open.
func (c *Client) Connect(ctx context.Context) error {
	if c.State() == StateCircuitOpen {
		return ErrCircuitOpen
	}
	c.setState(StateConnecting)
	c.logger.Info("Connecting", "url", c.url)

	type result struct {
		conn *nats.Conn
		js   jetstream.JetStream
		err  error
	}
	done := make(chan result, 1)
	opts := c.ConnectionOptions()
	go func() {
		conn, err := nats.Connect(c.url, opts...)
		if err != nil {
			done <- result{err: err}
			return
		}
		js, err := jetstream.New(conn)
		if err != nil {
			conn.Close()
			done <- result{err: err}
			return
		}
		done <- result{conn: conn, js: js}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		c.failConnect()
		// a late success must not leak the connection
		go func() {
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
		}()
		return errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled")
	}
	if r.err != nil {
		c.failConnect()
		if c.State() == StateCircuitOpen {
			return ErrCircuitOpen
		}
		return errors.WrapTransient(r.err, "Client", "Connect", "establish connection")
	}

	c.mu.Lock()
	c.conn, c.js = r.conn, r.js
	c.mu.Unlock()

	c.setState(StateConnected)
	c.recordSuccess()
	c.logger.Info("Connected", "url", c.url, "server", r.conn.ConnectedServerName())

	if c.probeInterval > 0 {
		c.startWatch()
	}
	return nil
}

func (c *Client) failConnect() {
	c.recordFailure()
	if c.State() != StateCircuitOpen {
		c.setState(StateDisconnected)
	}
}

// WaitForConnection blocks until the client is connected or ctx is done
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !c.IsHealthy() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("connection timeout: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Close drains the connection, bounded by the drain timeout and ctx, then closes it.
// Credentials are cleared. Later calls return the first call's result.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.stopWatch()

		c.mu.Lock()
		conn := c.conn
		c.conn, c.js = nil, nil
		c.username, c.password, c.token = "", "", ""
		c.mu.Unlock()

		if conn != nil {
			c.closeErr = c.drain(ctx, conn)
			conn.Close()
		}
		c.setState(StateDisconnected)
	})
	return c.closeErr
}

func (c *Client) drain(ctx context.Context, conn *nats.Conn) error {
	limit := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < limit {
			limit = remaining
		}
	}

	done := make(chan error, 1)
	go func() { done <- conn.Drain() }()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Error("Drain failed", "error", err)
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-timer.C:
		c.logger.Error("Drain timed out, closing", "timeout", limit)
		return errors.WrapTransient(fmt.Errorf("drain timeout after %v", limit), "Client", "Close", "drain")
	case <-ctx.Done():
		c.logger.Error("Drain cancelled, closing")
		return errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
	}
}

// RTT measures a round trip to the server
func (c *Client) RTT() (time.Duration, error) {
	conn := c.Conn()
	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	rtt, err := conn.RTT()
	if err != nil {
		return 0, err
	}
	c.metrics.ObserveRTT(backendLabel, rtt)
	return rtt, nil
}

// Ping checks the connection with a round trip.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.State() == StateCircuitOpen {
		return ErrCircuitOpen
	}
	_, err := c.RTT()
	return err
}

// JetStream returns the JetStream context of the live connection
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, ErrNotConnected
	}
	return c.js, nil
}

func (c *Client) onDisconnect(_ *nats.Conn, err error) {
	c.setState(StateReconnecting)
	if err != nil {
		c.logger.Warn("Disconnected", "error", err)
	}
}

func (c *Client) onReconnect(conn *nats.Conn) {
	c.setState(StateConnected)
	c.recordSuccess()
	c.metrics.AddReconnect(backendLabel)
	if conn != nil {
		c.logger.Info("Reconnected", "url", conn.ConnectedUrlRedacted())
	}
}

func (c *Client) onClosed(_ *nats.Conn) {
	c.setState(StateDisconnected)
}

func (c *Client) onAsyncError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("Async error", "error", err)
}

// startWatch probes the connection every probeInterval so the state and RTT gauges stay
// current between document operations.
func (c *Client) startWatch() {
	c.stopWatch()

	stop := make(chan struct{})
	c.mu.Lock()
	c.watchStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			_, err := c.RTT()
			switch state := c.State(); {
			case err == nil && state == StateReconnecting:
				c.setState(StateConnected)
			case err != nil && state == StateConnected:
				c.logger.Warn("Probe failed", "error", err)
				c.setState(StateReconnecting)
			}
		}
	}()
}

func (c *Client) stopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchStop != nil {
		close(c.watchStop)
		c.watchStop = nil
	}
}
