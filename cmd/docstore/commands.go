package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/c360/docstore/codec"
	"github.com/c360/docstore/docstore"
	"github.com/c360/docstore/errors"
	"github.com/c360/docstore/health"
	"github.com/c360/docstore/metric"
)

// documentView is the rendered result of get and put
type documentView struct {
	Key      string         `json:"key" yaml:"key"`
	Token    uint64         `json:"token" yaml:"token"`
	Document map[string]any `json:"document,omitempty" yaml:"document,omitempty"`
}

func newGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get TYPE ID",
		Short: "Read a document and its token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType, entityID := args[0], args[1]
			return a.withClient(cmd.Context(), func(client *docstore.Client) error {
				var doc map[string]any
				token, found, err := client.Read(cmd.Context(), entityType, entityID, &doc)
				if err != nil {
					return err
				}
				key, _ := docstore.BuildKey(entityType, entityID)
				if !found {
					return fmt.Errorf("%s: %w", key, errors.ErrNotFound)
				}
				return a.render(documentView{Key: key, Token: token, Document: doc})
			})
		},
	}
}

func newPutCommand(a *app) *cobra.Command {
	var (
		data       string
		token      uint64
		format     string
		createOnly bool
	)

	cmd := &cobra.Command{
		Use:   "put TYPE [ID]",
		Short: "Write a JSON object as a document, generating an ID when none is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityType := args[0]
			entityID := uuid.NewString()
			if len(args) == 2 {
				entityID = args[1]
			}

			doc, err := parseDocument(cmd.InOrStdin(), data)
			if err != nil {
				return err
			}

			var opts []docstore.WriteOption
			if format != "" {
				f, err := codec.ParseFormat(format)
				if err != nil {
					return err
				}
				opts = append(opts, docstore.WithFormat(f))
			}
			if createOnly {
				opts = append(opts, docstore.WithCreateOnly())
			}

			return a.withClient(cmd.Context(), func(client *docstore.Client) error {
				newToken, err := client.Write(cmd.Context(), entityType, entityID, doc, token, opts...)
				if err != nil {
					return err
				}
				key, _ := docstore.BuildKey(entityType, entityID)
				return a.render(documentView{Key: key, Token: newToken})
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Document as a JSON object, or - to read stdin")
	cmd.Flags().Uint64Var(&token, "token", 0, "Expected token; 0 writes without a guard")
	cmd.Flags().StringVar(&format, "format", "", "Wire format: binary or text (default from config)")
	cmd.Flags().BoolVar(&createOnly, "create-only", false, "Fail if the document already exists")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func parseDocument(stdin io.Reader, data string) (map[string]any, error) {
	raw := []byte(data)
	if data == "-" {
		var err error
		if raw, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.WrapInvalid(err, "cli", "put", "--data must be a JSON object")
	}
	if doc == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "cli", "put", "--data must be a JSON object")
	}
	return doc, nil
}

func newDeleteCommand(a *app) *cobra.Command {
	var token uint64

	cmd := &cobra.Command{
		Use:   "delete TYPE ID",
		Short: "Delete a document; deleting an absent document succeeds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(client *docstore.Client) error {
				if err := client.Delete(cmd.Context(), args[0], args[1], token); err != nil {
					return err
				}
				a.logger.Info("Document deleted", "type", args[0], "id", args[1])
				return nil
			})
		},
	}

	cmd.Flags().Uint64Var(&token, "token", 0, "Expected token; 0 deletes without a guard")
	return cmd
}

func newHealthCommand(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.open(cmd.Context(), a.cfg, a.logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = b.close(context.WithoutCancel(cmd.Context())) }()

			checker := health.NewChecker(appName,
				health.WithProbeTimeout(timeout),
				health.WithCheckerLogger(a.logger))
			checker.Add(string(a.cfg.Backend), b.probe)

			status := checker.Check(cmd.Context())
			if err := a.render(status); err != nil {
				return err
			}
			if status.IsUnhealthy() {
				return fmt.Errorf("backend %s is unhealthy", a.cfg.Backend)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "Probe timeout")
	return cmd
}

func newServeMetricsCommand(a *app) *cobra.Command {
	var (
		port     int
		path     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve Prometheus metrics and a health endpoint backed by periodic probes",
		Long: `Serve Prometheus metrics and a health endpoint backed by periodic probes.

The endpoint carries the backend gauges: health, probe duration, connection state,
RTT, reconnects and circuit breaker. The docstore_* operation metrics are recorded by
document clients, so they appear only in applications that register them on their own
registry with docstore.NewMetrics and docstore.WithMetrics.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("port") {
				port = a.cfg.Metrics.Port
			}
			if !cmd.Flags().Changed("path") {
				path = a.cfg.Metrics.Path
			}
			return a.serveMetrics(cmd.Context(), port, path, interval)
		},
	}

	cmd.Flags().IntVar(&port, "port", 9090, "Metrics port (default from config)")
	cmd.Flags().StringVar(&path, "path", "/metrics", "Metrics path (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "Health probe interval")
	return cmd
}

func (a *app) serveMetrics(ctx context.Context, port int, path string, interval time.Duration) error {
	if interval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidArgument, "cli", "serve-metrics", "interval must be positive")
	}

	registry := metric.NewRegistry()
	b, err := a.open(ctx, a.cfg, a.logger, registry)
	if err != nil {
		return err
	}
	defer func() { _ = b.close(context.WithoutCancel(ctx)) }()

	checker := health.NewChecker(appName,
		health.WithCheckerMetrics(registry.Core()),
		health.WithCheckerLogger(a.logger))
	checker.Add(string(a.cfg.Backend), b.probe)

	server := metric.NewServer(port, path, registry)
	server.SetHealthFunc(checker.HTTPStatus)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	a.logger.Info("Serving metrics", "address", server.Address(), "backend", a.cfg.Backend)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	checker.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			a.logger.Info("Shutting down metrics server")
			return server.Stop(stopCtx)
		case err := <-errCh:
			return err
		case <-ticker.C:
			status := checker.Check(ctx)
			a.logger.Debug("Health probe", "status", status.Status, "message", status.Message)
		}
	}
}
