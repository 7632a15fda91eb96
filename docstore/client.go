package docstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/c360/docstore/codec"
	"github.com/c360/docstore/errors"
	"github.com/c360/docstore/pkg/retry"
)

// Client reads, writes and deletes versioned documents through a Remote.
// It holds no per-key state; concurrent writers are arbitrated by the backend's CAS check.
type Client struct {
	remote        Remote
	defaultFormat codec.Format
	createOnly    bool
	retry         retry.Config
	timeout       time.Duration
	logger        *slog.Logger
	metrics       *Metrics
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithDefaultFormat sets the format used by Write when none is given.
func WithDefaultFormat(f codec.Format) Option {
	return func(c *Client) error {
		if _, err := codec.ForFormat(f); err != nil {
			return err
		}
		c.defaultFormat = f
		return nil
	}
}

// WithRetry replaces the retry schedule. The classifier is always errors.IsTransient.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) error {
		if cfg.MaxAttempts < 1 {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithRetry", "MaxAttempts must be at least 1")
		}
		c.retry = cfg
		return nil
	}
}

// WithTimeout bounds every individual remote call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "WithTimeout", "timeout cannot be negative")
		}
		c.timeout = d
		return nil
	}
}

// WithMetrics records operation metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithCreateOnlyOnZeroToken makes a zero-token Write insert-only instead of upsert.
func WithCreateOnlyOnZeroToken(createOnly bool) Option {
	return func(c *Client) error {
		c.createOnly = createOnly
		return nil
	}
}

// NewClient wraps an already connected remote. The client never closes it.
func NewClient(remote Remote, opts ...Option) (*Client, error) {
	if remote == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "NewClient", "remote cannot be nil")
	}

	c := &Client{
		remote:        remote,
		defaultFormat: codec.FormatBinary,
		retry:         retry.DefaultConfig(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Bucket names the remote bucket or namespace this client targets.
func (c *Client) Bucket() string {
	return c.remote.Name()
}

// DefaultFormat returns the format Write uses when none is given.
func (c *Client) DefaultFormat() codec.Format {
	return c.defaultFormat
}

// writeOptions are per-call Write settings.
type writeOptions struct {
	format     codec.Format
	createOnly *bool
}

// WriteOption adjusts a single Write.
type WriteOption func(*writeOptions)

// WithFormat encodes this write with f instead of the client default.
func WithFormat(f codec.Format) WriteOption {
	return func(o *writeOptions) { o.format = f }
}

// WithCreateOnly makes a zero-token write fail with ErrConcurrentModification if the document exists.
func WithCreateOnly() WriteOption {
	return func(o *writeOptions) {
		v := true
		o.createOnly = &v
	}
}

// WithUpsert makes a zero-token write overwrite an existing document.
func WithUpsert() WriteOption {
	return func(o *writeOptions) {
		v := false
		o.createOnly = &v
	}
}

// Read loads the document into out, which must be a non-nil pointer.
// An absent document is not an error: found is false, token is 0 and out is left untouched.
func (c *Client) Read(ctx context.Context, entityType, entityID string, out any) (token uint64, found bool, err error) {
	start := time.Now()
	key, err := BuildKey(entityType, entityID)
	if err != nil {
		return 0, false, err
	}
	if out == nil || reflect.ValueOf(out).Kind() != reflect.Pointer || reflect.ValueOf(out).IsNil() {
		return 0, false, errors.WrapInvalid(errors.ErrInvalidArgument, "Client", "Read", "out must be a non-nil pointer")
	}

	entry, err := retry.DoWithResult(ctx, c.retryConfig(operationRead, key), func() (*Entry, error) {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		e, err := c.remote.Get(callCtx, key)
		return e, c.translate(ctx, err)
	})
	if err != nil {
		if errors.IsNotFound(err) {
			c.finish(operationRead, key, start, nil, resultNotFound)
			return 0, false, nil
		}
		c.finish(operationRead, key, start, err, "")
		return 0, false, err
	}

	dec, ok := codec.Detect(entry.Value)
	if !ok {
		c.finish(operationRead, key, start, nil, resultNotFound)
		return 0, false, nil
	}
	if err := dec.Decode(entry.Value, out); err != nil {
		c.finish(operationRead, key, start, err, "")
		return 0, false, err
	}

	c.finish(operationRead, key, start, nil, resultOK, "token", entry.Token, "format", dec.Format().String())
	return entry.Token, true, nil
}

// Write stores value and returns the new token.
//
// A non-zero expected token must match the stored token. A zero token upserts unless
// create-only is requested through WithCreateOnly or WithCreateOnlyOnZeroToken.
// A failed guard returns a *errors.ConcurrentModificationError.
func (c *Client) Write(ctx context.Context, entityType, entityID string, value any, expected uint64, opts ...WriteOption) (uint64, error) {
	start := time.Now()
	key, err := BuildKey(entityType, entityID)
	if err != nil {
		return 0, err
	}

	wo := writeOptions{format: c.defaultFormat}
	for _, opt := range opts {
		opt(&wo)
	}
	enc, err := codec.ForFormat(wo.format)
	if err != nil {
		return 0, err
	}
	payload, err := enc.Encode(value)
	if err != nil {
		return 0, err
	}
	c.metrics.recordPayload(wo.format.String(), len(payload))

	cond := Always()
	switch {
	case expected != 0:
		cond = MatchToken(expected)
	case wo.createOnly != nil && *wo.createOnly, wo.createOnly == nil && c.createOnly:
		cond = Absent()
	}

	token, err := retry.DoWithResult(ctx, c.retryConfig(operationWrite, key), func() (uint64, error) {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		t, err := c.remote.Put(callCtx, key, payload, cond)
		return t, c.translate(ctx, err)
	})
	if err != nil {
		err = conflictFor(key, expected, err)
		c.finish(operationWrite, key, start, err, "", "condition", cond.String())
		return 0, err
	}
	if token == 0 {
		err = errors.WrapFatal(fmt.Errorf("backend %s returned token 0", c.remote.Name()), "Client", "Write", "store document")
		c.finish(operationWrite, key, start, err, "")
		return 0, err
	}

	c.finish(operationWrite, key, start, nil, resultOK, "token", token, "condition", cond.String(),
		"format", wo.format.String(), "bytes", len(payload))
	return token, nil
}

// Delete removes the document. A non-zero expected token must match the stored token.
// Deleting an absent document succeeds.
func (c *Client) Delete(ctx context.Context, entityType, entityID string, expected uint64) error {
	start := time.Now()
	key, err := BuildKey(entityType, entityID)
	if err != nil {
		return err
	}

	cond := Always()
	if expected != 0 {
		cond = MatchToken(expected)
	}

	err = retry.Do(ctx, c.retryConfig(operationDelete, key), func() error {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		return c.translate(ctx, c.remote.Remove(callCtx, key, cond))
	})
	if err != nil {
		if errors.IsNotFound(err) {
			c.finish(operationDelete, key, start, nil, resultNotFound)
			return nil
		}
		err = conflictFor(key, expected, err)
		c.finish(operationDelete, key, start, err, "", "condition", cond.String())
		return err
	}

	c.finish(operationDelete, key, start, nil, resultOK, "condition", cond.String())
	return nil
}

func (c *Client) retryConfig(operation, key string) retry.Config {
	cfg := c.retry
	cfg.Retryable = errors.IsTransient
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.metrics.recordRetry(operation)
		c.logger.Warn("Retrying document operation after transient fault",
			"operation", operation, "key", key, "attempt", attempt, "delay", delay, "error", err)
	}
	return cfg
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

// translate turns an expired per-call deadline into a transient timeout while the caller's own
// context is still live. Anything else passes through.
func (c *Client) translate(parent context.Context, err error) error {
	if err == nil || parent.Err() != nil {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) && !errors.IsTransient(err) {
		return fmt.Errorf("%w after %s: %v", errors.ErrTimeout, c.timeout, err)
	}
	return err
}

// conflictFor reports CAS failures against the document key the caller used, keeping the
// stored token when the backend knew it.
func conflictFor(key string, expected uint64, err error) error {
	var cme *errors.ConcurrentModificationError
	if !stderrors.As(err, &cme) {
		return err
	}
	if cme.Key == key && cme.Expected == expected {
		return cme
	}
	if cme.ActualKnown {
		return errors.NewConcurrentModificationActual(key, expected, cme.Actual)
	}
	return errors.NewConcurrentModification(key, expected)
}

func (c *Client) finish(operation, key string, start time.Time, err error, result string, attrs ...any) {
	elapsed := time.Since(start)
	if result == "" {
		result = resultFor(err)
	}
	c.metrics.recordOperation(operation, result, elapsed)

	args := append([]any{"operation", operation, "key", key, "result", result, "duration", elapsed}, attrs...)
	if err != nil {
		args = append(args, "error", err)
		if result == resultConflict || result == resultCancelled {
			c.logger.Debug("Document operation rejected", args...)
			return
		}
		c.logger.Warn("Document operation failed", args...)
		return
	}
	c.logger.Debug("Document operation completed", args...)
}

func resultFor(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.IsNotFound(err):
		return resultNotFound
	case errors.IsConcurrentModification(err):
		return resultConflict
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded) && !errors.IsTransient(err):
		return resultCancelled
	case stderrors.Is(err, errors.ErrMalformedPayload),
		stderrors.Is(err, errors.ErrUnsupportedVersion),
		stderrors.Is(err, errors.ErrUnsupportedFormat):
		return resultMalformed
	case errors.IsTransient(err):
		return resultExhausted
	default:
		return resultError
	}
}
