package natsclient

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/docstore/errors"
)

// BucketConfig describes the KV bucket backing a document store.
type BucketConfig struct {
	Name        string
	Description string
	History     uint8 // revisions kept per key; 1 keeps only the latest
	Replicas    int
	MaxValue    int32
}

func (b BucketConfig) keyValueConfig() jetstream.KeyValueConfig {
	cfg := jetstream.KeyValueConfig{
		Bucket:       b.Name,
		Description:  b.Description,
		History:      max(b.History, 1),
		Replicas:     max(b.Replicas, 1),
		MaxValueSize: b.MaxValue,
	}
	return cfg
}

// ready gates bucket management on the breaker and the connection
func (c *Client) ready() (jetstream.JetStream, error) {
	switch c.State() {
	case StateCircuitOpen:
		return nil, ErrCircuitOpen
	case StateConnected:
	default:
		return nil, ErrNotConnected
	}
	return c.JetStream()
}

// managed runs a bucket management call and feeds its outcome to the breaker.
// Errors for which expected returns true count as successes.
func (c *Client) managed(call func(js jetstream.JetStream) error, expected func(error) bool) error {
	js, err := c.ready()
	if err != nil {
		return err
	}
	err = call(js)
	if err != nil && (expected == nil || !expected(err)) {
		c.recordFailure()
		return err
	}
	c.recordSuccess()
	return err
}

// EnsureBucket returns the bucket named in cfg, creating it on first use. Settings of an
// existing bucket are left as they are.
func (c *Client) EnsureBucket(ctx context.Context, cfg BucketConfig) (jetstream.KeyValue, error) {
	if cfg.Name == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "EnsureBucket", "bucket name is required")
	}

	var bucket jetstream.KeyValue
	err := c.managed(func(js jetstream.JetStream) error {
		var err error
		if bucket, err = js.KeyValue(ctx, cfg.Name); err == nil {
			return nil
		}
		if !stderrors.Is(err, jetstream.ErrBucketNotFound) {
			return err
		}

		bucket, err = js.CreateKeyValue(ctx, cfg.keyValueConfig())
		if err == nil {
			c.logger.Info("Created bucket", "bucket", cfg.Name, "history", cfg.History, "replicas", cfg.Replicas)
			return nil
		}
		if !isBucketExists(err) {
			return err
		}
		// another process created it first
		bucket, err = js.KeyValue(ctx, cfg.Name)
		return err
	}, nil)
	if err != nil {
		if stderrors.Is(err, errors.ErrNoConnection) {
			return nil, err
		}
		return nil, errors.WrapTransient(err, "Client", "EnsureBucket", "open bucket "+cfg.Name)
	}
	return bucket, nil
}

// Bucket returns an existing bucket. A missing bucket is fatal.
func (c *Client) Bucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	var bucket jetstream.KeyValue
	err := c.managed(func(js jetstream.JetStream) error {
		var err error
		bucket, err = js.KeyValue(ctx, name)
		return err
	}, isBucketNotFound)
	switch {
	case err == nil:
		return bucket, nil
	case isBucketNotFound(err):
		return nil, errors.WrapFatal(err, "Client", "Bucket", "bucket "+name)
	}
	return nil, err
}

// DeleteBucket removes a bucket and every document in it
func (c *Client) DeleteBucket(ctx context.Context, name string) error {
	return c.managed(func(js jetstream.JetStream) error {
		return js.DeleteKeyValue(ctx, name)
	}, nil)
}

// BucketNames lists the KV buckets on the server
func (c *Client) BucketNames(ctx context.Context) ([]string, error) {
	names := []string{}
	err := c.managed(func(js jetstream.JetStream) error {
		lister := js.KeyValueStoreNames(ctx)
		for name := range lister.Name() {
			names = append(names, name)
		}
		return lister.Error()
	}, nil)
	if err != nil {
		return nil, err
	}
	return names, nil
}

// OpenStore ensures the bucket exists and wraps it as a document store remote.
func (c *Client) OpenStore(ctx context.Context, cfg BucketConfig, opts ...func(*KVOptions)) (*KVStore, error) {
	bucket, err := c.EnsureBucket(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewKVStore(bucket, c.logger, opts...), nil
}

func isBucketNotFound(err error) bool {
	return stderrors.Is(err, jetstream.ErrBucketNotFound)
}

func isBucketExists(err error) bool {
	if stderrors.Is(err, jetstream.ErrBucketExists) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "already in use") || strings.Contains(msg, "already exists")
}
