package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/docstore/config"
	"github.com/c360/docstore/docstore"
	"github.com/c360/docstore/errors"
	"github.com/c360/docstore/etcdstore"
	"github.com/c360/docstore/health"
	"github.com/c360/docstore/memstore"
	"github.com/c360/docstore/metric"
	"github.com/c360/docstore/natsclient"
	"github.com/c360/docstore/pkg/retry"
)

// backend is an opened remote plus the probe used for health reporting
type backend struct {
	remote docstore.Remote
	probe  health.Pinger
	close  func(ctx context.Context) error
}

// opener builds a backend from configuration. Tests replace it with a shared memstore.
type opener func(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *metric.Registry) (*backend, error)

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *metric.Registry) (*backend, error) {
	switch cfg.Backend {
	case config.BackendNATS:
		return openNATS(ctx, cfg, logger, registry)
	case config.BackendEtcd:
		return openEtcd(cfg, logger)
	case config.BackendMemory:
		store := memstore.New(memstore.WithName(cfg.Bucket))
		return &backend{
			remote: store,
			probe:  store,
			close:  func(context.Context) error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

func openNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *metric.Registry) (*backend, error) {
	tlsConfig, err := cfg.NATS.TLS.Load()
	if err != nil {
		return nil, err
	}

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithTLSConfig(tlsConfig),
		natsclient.WithLogger(logger),
		natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password),
		natsclient.WithToken(cfg.NATS.Token),
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithTimeout(cfg.NATS.Timeout),
		natsclient.WithMetrics(registry),
	)
	if err != nil {
		return nil, err
	}

	startup := retry.Startup()
	startup.Retryable = errors.IsTransient
	startup.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("NATS not reachable yet", "attempt", attempt, "retry_in", delay, "error", err)
	}
	if err := retry.Do(ctx, startup, func() error { return client.Connect(ctx) }); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	store, err := client.OpenStore(ctx, natsclient.BucketConfig{
		Name:        cfg.Bucket,
		Description: "docstore documents",
		History:     uint8(cfg.NATS.History),
		Replicas:    cfg.NATS.Replicas,
	}, func(o *natsclient.KVOptions) {
		o.Timeout = cfg.OperationTimeout
	})
	if err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("open bucket %s: %w", cfg.Bucket, err)
	}

	return &backend{remote: store, probe: client, close: client.Close}, nil
}

func openEtcd(cfg *config.Config, logger *slog.Logger) (*backend, error) {
	tlsConfig, err := cfg.Etcd.TLS.Load()
	if err != nil {
		return nil, err
	}

	store, err := etcdstore.Dial(etcdstore.Config{
		TLS:         tlsConfig,
		Endpoints:   cfg.Etcd.Endpoints,
		DialTimeout: cfg.Etcd.DialTimeout,
		Username:    cfg.Etcd.Username,
		Password:    cfg.Etcd.Password,
		Prefix:      cfg.Etcd.Prefix + cfg.Bucket + "/",
		Timeout:     cfg.OperationTimeout,
	}, etcdstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &backend{
		remote: store,
		probe:  store,
		close:  func(context.Context) error { return store.Close() },
	}, nil
}

// newDocumentClient applies the configured client settings
func newDocumentClient(cfg *config.Config, remote docstore.Remote, logger *slog.Logger) (*docstore.Client, error) {
	format, err := cfg.Format()
	if err != nil {
		return nil, err
	}
	return docstore.NewClient(remote,
		docstore.WithLogger(logger),
		docstore.WithDefaultFormat(format),
		docstore.WithRetry(cfg.RetryConfig()),
		docstore.WithTimeout(cfg.OperationTimeout),
		docstore.WithCreateOnlyOnZeroToken(cfg.CreateOnlyOnZeroToken),
	)
}
