package docstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/docstore/metric"
)

const metricsService = "docstore"

// Operation result labels.
const (
	resultOK        = "ok"
	resultNotFound  = "not_found"
	resultConflict  = "conflict"
	resultError     = "error"
	resultCancelled = "cancelled"
	resultMalformed = "malformed"
	resultExhausted = "retries_exhausted"
)

const (
	operationRead   = "read"
	operationWrite  = "write"
	operationDelete = "delete"
)

// Metrics holds the document client's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	retries      *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	payloadBytes *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with registrar.
func NewMetrics(registrar metric.Registrar) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docstore",
				Name:      "operations_total",
				Help:      "Document operations by outcome",
			},
			[]string{"operation", "result"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docstore",
				Name:      "retries_total",
				Help:      "Retries of document operations after transient faults",
			},
			[]string{"operation"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docstore",
				Name:      "operation_duration_seconds",
				Help:      "Document operation latency including retries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		payloadBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docstore",
				Name:      "payload_bytes",
				Help:      "Encoded document size in bytes",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"format"},
		),
	}

	if registrar == nil {
		return m, nil
	}
	for name, c := range map[string]prometheus.Collector{
		"operations_total":           m.operations,
		"retries_total":              m.retries,
		"operation_duration_seconds": m.duration,
		"payload_bytes":              m.payloadBytes,
	} {
		if err := registrar.Register(metricsService, name, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordOperation(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) recordRetry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) recordPayload(format string, size int) {
	if m == nil {
		return
	}
	m.payloadBytes.WithLabelValues(format).Observe(float64(size))
}
