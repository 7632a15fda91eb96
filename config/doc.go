// Package config loads and validates docstore configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML or JSON file, then
// DOCSTORE_* environment variables. Nested keys map to upper-case names joined by
// underscores, so nats.url is DOCSTORE_NATS_URL and retry.max_attempts is
// DOCSTORE_RETRY_MAX_ATTEMPTS.
//
// # Basic Usage
//
//	cfg, err := config.Load("/etc/docstore/config.yaml")
//	if err != nil {
//		return err
//	}
//
//	format, _ := cfg.Format()
//	client, err := docstore.NewClient(remote,
//		docstore.WithDefaultFormat(format),
//		docstore.WithRetry(cfg.RetryConfig()),
//		docstore.WithTimeout(cfg.OperationTimeout),
//		docstore.WithCreateOnlyOnZeroToken(cfg.CreateOnlyOnZeroToken),
//	)
//
// # Example File
//
//	backend: etcd
//	bucket: orders
//	default_format: text
//	operation_timeout: 3s
//	retry:
//	  max_attempts: 5
//	  initial_delay: 50ms
//	etcd:
//	  endpoints: ["etcd-0:2379", "etcd-1:2379"]
//	  prefix: /orders/
//
// Validation failures are errors.ErrInvalidConfig or errors.ErrMissingConfig wrapped as
// invalid ClassifiedErrors.
package config
