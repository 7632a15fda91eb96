package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/docstore/metric"
)

// Pinger is implemented by every store backend and by the NATS connection manager.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type probe struct {
	name   string
	pinger Pinger
}

// Checker probes registered backends and aggregates the results: all reachable is healthy,
// some reachable is degraded, none reachable is unhealthy.
type Checker struct {
	name    string
	timeout time.Duration
	metrics *metric.Core
	logger  *slog.Logger

	mu     sync.RWMutex
	probes []probe
	last   map[string]Status
}

// CheckerOption configures a Checker
type CheckerOption func(*Checker)

// WithProbeTimeout bounds each probe. Default 2s.
func WithProbeTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCheckerMetrics records probe results in the core health gauges
func WithCheckerMetrics(m *metric.Core) CheckerOption {
	return func(c *Checker) { c.metrics = m }
}

// WithCheckerLogger sets the logger
func WithCheckerLogger(logger *slog.Logger) CheckerOption {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChecker creates a checker reporting under name
func NewChecker(name string, opts ...CheckerOption) *Checker {
	c := &Checker{
		name:    name,
		timeout: 2 * time.Second,
		logger:  slog.Default(),
		last:    make(map[string]Status),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add registers a backend probe. Adding an existing name replaces it.
func (c *Checker) Add(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.probes {
		if c.probes[i].name == name {
			c.probes[i].pinger = p
			return
		}
	}
	c.probes = append(c.probes, probe{name: name, pinger: p})
}

// Remove drops a backend probe and its last result
func (c *Checker) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.probes {
		if c.probes[i].name == name {
			c.probes = append(c.probes[:i], c.probes[i+1:]...)
			break
		}
	}
	delete(c.last, name)
}

// Check probes every backend concurrently and returns the aggregate status
func (c *Checker) Check(ctx context.Context) Status {
	c.mu.RLock()
	probes := make([]probe, len(c.probes))
	copy(probes, c.probes)
	c.mu.RUnlock()

	results := make([]Status, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		g.Go(func() error {
			results[i] = c.run(gctx, p)
			return nil
		})
	}
	_ = g.Wait() // probes report failures in their Status

	c.mu.Lock()
	for _, st := range results {
		c.last[st.Component] = st
	}
	c.mu.Unlock()

	status := Aggregate(c.name, results)
	c.metrics.SetHealth(c.name, status.Level())
	return status
}

func (c *Checker) run(ctx context.Context, p probe) Status {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := p.pinger.Ping(probeCtx)
	elapsed := time.Since(start)

	if err != nil {
		c.logger.Warn("Health probe failed", "backend", p.name, "error", err, "latency", elapsed)
	}
	c.metrics.ObserveProbe(p.name, elapsed)

	st := FromProbe(p.name, err, elapsed)
	c.metrics.SetHealth(p.name, st.Level())
	return st
}

// Last returns the most recent result for a backend
func (c *Checker) Last(name string) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.last[name]
	return st, ok
}

// HTTPStatus runs a check and renders it for an HTTP health endpoint.
// Healthy and degraded answer 200, unhealthy answers 503.
func (c *Checker) HTTPStatus(ctx context.Context) (int, string) {
	status := c.Check(ctx)

	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}

	body, err := json.Marshal(status)
	if err != nil {
		return http.StatusInternalServerError, `{"status":"unhealthy","message":"encode health status"}`
	}
	return code, string(body)
}
