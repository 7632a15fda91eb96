package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docstore"

// Core holds the process-level collectors every registry carries: health levels reported by the
// checker and connection state reported by remote backends. Backend series are labelled by
// backend name ("nats", "etcd", ...). All methods are safe on a nil *Core.
type Core struct {
	Health        *prometheus.GaugeVec     // component
	ProbeDuration *prometheus.HistogramVec // component
	Connected     *prometheus.GaugeVec     // backend
	RTT           *prometheus.GaugeVec     // backend
	Reconnects    *prometheus.CounterVec   // backend
	CircuitOpen   *prometheus.GaugeVec     // backend
}

func newCore() *Core {
	gauge := func(subsystem, name, help string, label string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, []string{label})
	}

	return &Core{
		Health: gauge("health", "status",
			"Health level per component (0=unhealthy, 1=degraded, 2=healthy)", "component"),
		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "probe_duration_seconds",
			Help:      "Time taken to probe a backend",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"component"}),
		Connected: gauge("backend", "connected",
			"Backend connection state (0=disconnected, 1=connected)", "backend"),
		RTT: gauge("backend", "rtt_seconds",
			"Last measured round trip to the backend", "backend"),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "reconnects_total",
			Help:      "Reconnections to the backend",
		}, []string{"backend"}),
		CircuitOpen: gauge("backend", "circuit_open",
			"Connection circuit breaker (0=closed, 1=open)", "backend"),
	}
}

func (c *Core) collectors() []prometheus.Collector {
	return []prometheus.Collector{c.Health, c.ProbeDuration, c.Connected, c.RTT, c.Reconnects, c.CircuitOpen}
}

// SetHealth records a component's health level
func (c *Core) SetHealth(component string, level int) {
	if c == nil {
		return
	}
	c.Health.WithLabelValues(component).Set(float64(level))
}

// ObserveProbe records how long a probe of component took
func (c *Core) ObserveProbe(component string, d time.Duration) {
	if c == nil {
		return
	}
	c.ProbeDuration.WithLabelValues(component).Observe(d.Seconds())
}

// SetConnected records whether backend currently has a live connection
func (c *Core) SetConnected(backend string, connected bool) {
	if c == nil {
		return
	}
	c.Connected.WithLabelValues(backend).Set(boolValue(connected))
}

// ObserveRTT records the last round trip to backend
func (c *Core) ObserveRTT(backend string, rtt time.Duration) {
	if c == nil {
		return
	}
	c.RTT.WithLabelValues(backend).Set(rtt.Seconds())
}

// AddReconnect counts one reconnection to backend
func (c *Core) AddReconnect(backend string) {
	if c == nil {
		return
	}
	c.Reconnects.WithLabelValues(backend).Inc()
}

// SetCircuitOpen records the circuit breaker state of backend
func (c *Core) SetCircuitOpen(backend string, open bool) {
	if c == nil {
		return
	}
	c.CircuitOpen.WithLabelValues(backend).Set(boolValue(open))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
