// Package health reports whether the document store backends are reachable.
//
// # Health States
//
//   - Healthy: every backend answered its probe
//   - Degraded: some backends answered
//   - Unhealthy: no backend answered
//
// # Checker
//
// A Checker holds one probe per backend. Anything with a Ping(ctx) error method can be
// registered: memstore.Store, etcdstore.Store and the NATS connection manager all qualify.
// Probes run concurrently, each bounded by the probe timeout.
//
//	checker := health.NewChecker("docstore",
//	    health.WithCheckerMetrics(registry.Core()),
//	    health.WithProbeTimeout(time.Second),
//	)
//	checker.Add("nats", natsClient)
//	checker.Add("etcd", etcdStore)
//
//	status := checker.Check(ctx)
//	if status.IsUnhealthy() {
//	    logger.Error("store unreachable", "message", status.Message)
//	}
//
// HTTPStatus renders a check for the metrics server's /health endpoint:
//
//	server.SetHealthFunc(checker.HTTPStatus)
//
// # Status
//
// Status carries the state, a message, the probe time and latency, and for aggregates the
// per-backend results.
//
// # Security
//
// Probe errors are sanitized before they are stored in a Status. URLs, file paths, IP
// addresses, host:port endpoints and credential-like fragments are replaced with placeholders,
// so health output can be served to unauthenticated clients.
package health
