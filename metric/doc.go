// Package metric provides the Prometheus registry and HTTP exposition server used by the
// document store.
//
// # Architecture
//
//  1. Core: collectors registered with every registry. Health levels come from the
//     checker, connection state from the remote backends.
//  2. Registrar: components such as the document client register their own collectors
//     under a component name. Registering the same component/name pair twice, or
//     colliding on a Prometheus name, is an invalid error.
//  3. HTTP Server: serves the registry at a configurable path, plus /health.
//
// # Basic Usage
//
//	registry := metric.NewRegistry()
//	docMetrics, err := docstore.NewMetrics(registry)
//	if err != nil {
//	    return err
//	}
//	client, err := docstore.NewClient(remote, docstore.WithMetrics(docMetrics))
//
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil {
//	        logger.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop(context.Background())
//
// # Core Metrics
//
//   - docstore_health_status{component}: 0=unhealthy, 1=degraded, 2=healthy
//   - docstore_health_probe_duration_seconds{component}
//   - docstore_backend_connected{backend}, docstore_backend_rtt_seconds{backend}
//   - docstore_backend_reconnects_total{backend}, docstore_backend_circuit_open{backend}
//
// Go runtime and process collectors are registered as well.
//
// # Thread Safety
//
// Registry and Server are safe for concurrent use.
package metric
