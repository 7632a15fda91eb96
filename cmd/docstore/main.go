// Package main implements the docstore command line tool for reading, writing and
// deleting versioned documents, checking backend health and serving metrics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360/docstore/config"
	"github.com/c360/docstore/docstore"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "docstore"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr, open: openBackend}
	if err := newRootCommand(a).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// app carries the state shared by every subcommand
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	output     string

	stdout io.Writer
	stderr io.Writer
	open   opener

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Versioned document store client",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", os.Getenv("DOCSTORE_CONFIG"),
		"Path to configuration file (env: DOCSTORE_CONFIG)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: json, text")
	flags.StringVarP(&a.output, "output", "o", "json", "Output format: json, yaml")

	root.AddCommand(
		newGetCommand(a),
		newPutCommand(a),
		newDeleteCommand(a),
		newHealthCommand(a),
		newServeMetricsCommand(a),
	)
	return root
}

// init loads configuration and builds the logger; flags override the file
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch a.output {
	case "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", a.output)
	}

	a.cfg = cfg
	a.logger = setupLogger(a.stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(a.logger)
	a.logger.Debug("Configuration loaded",
		"config_path", a.configPath, "backend", cfg.Backend, "bucket", cfg.Bucket)
	return nil
}

// withClient opens the configured backend, runs fn with a document client and closes it
func (a *app) withClient(ctx context.Context, fn func(*docstore.Client) error) error {
	b, err := a.open(ctx, a.cfg, a.logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("Failed to close backend", "error", err)
		}
	}()

	client, err := newDocumentClient(a.cfg, b.remote, a.logger)
	if err != nil {
		return err
	}
	return fn(client)
}

// render writes v to stdout in the selected output format
func (a *app) render(v any) error {
	if a.output == "yaml" {
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}
