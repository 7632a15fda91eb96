package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/docstore/docstore"
	"github.com/c360/docstore/errors"
)

// KVOptions configures KV operations behavior
type KVOptions struct {
	Timeout      time.Duration // Per-operation timeout, 0 disables
	MaxValueSize int           // Maximum size for values (default: 1MB)
}

// DefaultKVOptions returns sensible defaults
func DefaultKVOptions() KVOptions {
	return KVOptions{
		Timeout:      5 * time.Second,
		MaxValueSize: 1024 * 1024,
	}
}

// KVStore is a docstore.Remote backed by a JetStream key-value bucket.
// Tokens are bucket revisions, which JetStream never assigns as 0.
type KVStore struct {
	bucket  jetstream.KeyValue
	options KVOptions
	logger  *slog.Logger

	// lastRevision builds the delete guard for IfToken removals
	lastRevision func(uint64) jetstream.KVDeleteOpt
}

var _ docstore.Remote = (*KVStore)(nil)

// NewKVStore wraps an already opened bucket. A nil logger uses slog.Default().
func NewKVStore(bucket jetstream.KeyValue, logger *slog.Logger, opts ...func(*KVOptions)) *KVStore {
	options := DefaultKVOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &KVStore{
		bucket:       bucket,
		options:      options,
		logger:       logger,
		lastRevision: jetstream.LastRevision,
	}
}

// Name returns the bucket name
func (kv *KVStore) Name() string {
	return kv.bucket.Bucket()
}

// applyTimeout applies the configured timeout to the context if set
func (kv *KVStore) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if kv.options.Timeout > 0 {
		return context.WithTimeout(ctx, kv.options.Timeout)
	}
	return ctx, func() {}
}

// Get retrieves a value with its revision
func (kv *KVStore) Get(ctx context.Context, key string) (*docstore.Entry, error) {
	opCtx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	entry, err := kv.bucket.Get(opCtx, EncodeKey(key))
	if err != nil {
		return nil, kv.classify(ctx, "get", key, err)
	}

	return &docstore.Entry{
		Key:   key,
		Value: entry.Value(),
		Token: entry.Revision(),
	}, nil
}

// Put writes value under cond: Unconditional uses Put, IfAbsent uses Create and IfToken uses Update.
func (kv *KVStore) Put(ctx context.Context, key string, value []byte, cond docstore.Condition) (uint64, error) {
	if kv.options.MaxValueSize > 0 && len(value) > kv.options.MaxValueSize {
		return 0, errors.WrapInvalid(
			fmt.Errorf("value size %d exceeds maximum %d", len(value), kv.options.MaxValueSize),
			"KVStore", "Put", "validate value size")
	}

	opCtx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	natsKey := EncodeKey(key)
	var (
		rev uint64
		err error
	)
	switch cond.Mode {
	case docstore.IfAbsent:
		rev, err = kv.bucket.Create(opCtx, natsKey, value)
	case docstore.IfToken:
		rev, err = kv.bucket.Update(opCtx, natsKey, value, cond.Token)
	default:
		rev, err = kv.bucket.Put(opCtx, natsKey, value)
	}
	if err != nil {
		if IsKVConflictError(err) {
			return 0, kv.conflict(ctx, key, cond, false)
		}
		return 0, kv.classify(ctx, "put", key, err)
	}

	kv.logger.Debug("KV put", "key", natsKey, "condition", cond.String(), "revision", rev)
	return rev, nil
}

// Remove deletes key under cond. JetStream deletes are markers, so an unconditional delete of a
// missing key succeeds; a guarded delete of a missing key reports ErrNotFound.
func (kv *KVStore) Remove(ctx context.Context, key string, cond docstore.Condition) error {
	opCtx, cancel := kv.applyTimeout(ctx)
	defer cancel()

	var opts []jetstream.KVDeleteOpt
	if cond.Mode == docstore.IfToken {
		opts = append(opts, kv.lastRevision(cond.Token))
	}

	if err := kv.bucket.Delete(opCtx, EncodeKey(key), opts...); err != nil {
		if IsKVConflictError(err) {
			return kv.conflict(ctx, key, cond, true)
		}
		return kv.classify(ctx, "delete", key, err)
	}

	kv.logger.Debug("KV delete", "key", EncodeKey(key), "condition", cond.String())
	return nil
}

// conflict builds the CAS error for a failed guard, looking up the stored revision so the
// caller can see what it raced against. A guarded delete of a vanished key is ErrNotFound.
func (kv *KVStore) conflict(ctx context.Context, key string, cond docstore.Condition, removing bool) error {
	current, err := kv.Get(ctx, key)
	if err == nil {
		return errors.NewConcurrentModificationActual(key, cond.Token, current.Token)
	}
	if removing && errors.IsNotFound(err) {
		return err
	}
	return errors.NewConcurrentModification(key, cond.Token)
}

// classify maps NATS errors onto the document error taxonomy.
func (kv *KVStore) classify(parent context.Context, op, key string, err error) error {
	switch {
	case IsKVNotFoundError(err):
		return fmt.Errorf("kv %s %s: %w", op, key, errors.ErrNotFound)
	case parent.Err() != nil:
		// the caller gave up; keep its error visible and non-transient
		return fmt.Errorf("kv %s %s: %w", op, key, parent.Err())
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, nats.ErrTimeout):
		return fmt.Errorf("kv %s %s: %w: %v", op, key, errors.ErrTimeout, err)
	case stderrors.Is(err, nats.ErrNoResponders):
		return fmt.Errorf("kv %s %s: %w: %v", op, key, errors.ErrOverloaded, err)
	case stderrors.Is(err, nats.ErrConnectionClosed), stderrors.Is(err, nats.ErrConnectionReconnecting),
		stderrors.Is(err, nats.ErrConnectionDraining), stderrors.Is(err, nats.ErrDisconnected):
		return fmt.Errorf("kv %s %s: %w: %v", op, key, errors.ErrNoConnection, err)
	case stderrors.Is(err, context.Canceled):
		return fmt.Errorf("kv %s %s: %w: %v", op, key, errors.ErrTransportCancelled, err)
	}

	var apiErr *jetstream.APIError
	if stderrors.As(err, &apiErr) && (apiErr.Code == 503 || apiErr.Code == 429) {
		return fmt.Errorf("kv %s %s: %w: %v", op, key, errors.ErrOverloaded, err)
	}
	return errors.WrapFatal(err, "KVStore", op, fmt.Sprintf("key %s", key))
}

// EncodeKey maps a document key onto the NATS KV key alphabet [-/_=.a-zA-Z0-9].
// Every byte outside [-_a-zA-Z0-9/] is written as "=XX" (uppercase hex), so the mapping is
// injective and keys never contain '.' runs or leading dots.
func EncodeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 8)
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '/':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}

// DecodeKey reverses EncodeKey.
func DecodeKey(natsKey string) (string, error) {
	var b strings.Builder
	b.Grow(len(natsKey))
	for i := 0; i < len(natsKey); i++ {
		c := natsKey[i]
		if c != '=' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(natsKey) {
			return "", errors.WrapInvalid(errors.ErrInvalidArgument, "natsclient", "DecodeKey",
				fmt.Sprintf("truncated escape in %q", natsKey))
		}
		v, err := strconv.ParseUint(natsKey[i+1:i+3], 16, 8)
		if err != nil {
			return "", errors.WrapInvalid(err, "natsclient", "DecodeKey", fmt.Sprintf("bad escape in %q", natsKey))
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}

// Keys lists the document keys in the bucket with the given prefix.
func (kv *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := kv.bucket.ListKeys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, kv.classify(ctx, "keys", prefix, err)
	}
	defer lister.Stop()

	var keys []string
	for natsKey := range lister.Keys() {
		key, err := DecodeKey(natsKey)
		if err != nil {
			kv.logger.Error("Skipping undecodable KV key", "key", natsKey, "error", err)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// IsKVNotFoundError checks if error indicates key not found
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyNotFound) || stderrors.Is(err, jetstream.ErrKeyDeleted) ||
		stderrors.Is(err, errors.ErrNotFound) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "key not found") ||
		strings.Contains(errMsg, "10037")
}

// IsKVConflictError checks if error indicates a conflict (key exists or wrong revision)
func IsKVConflictError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrKeyExists) || stderrors.Is(err, errors.ErrConcurrentModification) {
		return true
	}
	errMsg := err.Error()
	return strings.Contains(errMsg, "wrong last sequence") ||
		strings.Contains(errMsg, "10071") ||
		strings.Contains(errMsg, "key exists") ||
		strings.Contains(errMsg, "10058")
}
