package etcdstore

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/c360/docstore/docstore"
	"github.com/c360/docstore/errors"
)

// Config describes how to reach an etcd cluster.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
	Prefix      string
	Timeout     time.Duration
	TLS         *tls.Config // nil dials without TLS
}

// Store is a docstore.Remote over etcd v3. Tokens are key ModRevisions, which etcd never reports
// as 0 for a stored key.
type Store struct {
	kv        clientv3.KV
	maint     clientv3.Maintenance
	endpoints []string
	closer    func() error
	prefix    string
	name      string
	timeout   time.Duration
	logger    *slog.Logger
}

var _ docstore.Remote = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces every document key, e.g. "/docstore/".
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithName overrides the name reported by Name. The prefix is used otherwise.
func WithName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

// WithTimeout bounds each etcd request. Zero disables the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaintenance enables Ping against the given endpoints.
func WithMaintenance(maint clientv3.Maintenance, endpoints ...string) Option {
	return func(s *Store) {
		s.maint = maint
		s.endpoints = endpoints
	}
}

// Dial connects to etcd and returns a Store that owns the client.
func Dial(cfg Config, opts ...Option) (*Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "etcdstore", "Dial", "at least one endpoint is required")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
		TLS:         cfg.TLS,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "etcdstore", "Dial", "create etcd client")
	}

	base := []Option{WithPrefix(cfg.Prefix), WithTimeout(cfg.Timeout)}
	s := New(cli, append(base, opts...)...)
	s.closer = cli.Close
	return s, nil
}

// New wraps an existing client. The caller keeps ownership of cli.
func New(cli *clientv3.Client, opts ...Option) *Store {
	base := []Option{WithMaintenance(cli.Maintenance, cli.Endpoints()...)}
	return NewWithKV(cli.KV, append(base, opts...)...)
}

// NewWithKV builds a Store over any clientv3.KV, such as a namespaced or mocked one.
func NewWithKV(kv clientv3.KV, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.name == "" {
		s.name = "etcd:" + s.prefix
	}
	s.logger = s.logger.With("component", "etcdstore", "store", s.name)
	return s
}

// Name identifies the store in logs and metrics
func (s *Store) Name() string {
	return s.name
}

// Close releases the client when the Store created it.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *Store) fullKey(key string) string {
	return s.prefix + key
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// Get returns the stored value and its ModRevision.
func (s *Store) Get(ctx context.Context, key string) (*docstore.Entry, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.kv.Get(callCtx, s.fullKey(key))
	if err != nil {
		return nil, s.classify(ctx, "get", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("etcd get %s: %w", key, errors.ErrNotFound)
	}

	kv := resp.Kvs[0]
	return &docstore.Entry{
		Key:   key,
		Value: kv.Value,
		Token: uint64(kv.ModRevision),
	}, nil
}

// Put writes value under cond. Guarded writes run as a single transaction whose else branch
// reads the key back, so a failed guard reports the revision it lost against.
func (s *Store) Put(ctx context.Context, key string, value []byte, cond docstore.Condition) (uint64, error) {
	full := s.fullKey(key)

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	var guard clientv3.Cmp
	switch cond.Mode {
	case docstore.IfAbsent:
		guard = clientv3.Compare(clientv3.CreateRevision(full), "=", 0)
	case docstore.IfToken:
		rev, err := revision(cond.Token)
		if err != nil {
			return 0, err
		}
		guard = clientv3.Compare(clientv3.ModRevision(full), "=", rev)
	default:
		resp, err := s.kv.Put(callCtx, full, string(value))
		if err != nil {
			return 0, s.classify(ctx, "put", key, err)
		}
		return uint64(resp.Header.Revision), nil
	}

	resp, err := s.kv.Txn(callCtx).
		If(guard).
		Then(clientv3.OpPut(full, string(value))).
		Else(clientv3.OpGet(full)).
		Commit()
	if err != nil {
		return 0, s.classify(ctx, "put", key, err)
	}
	if !resp.Succeeded {
		if actual, ok := currentRevision(resp); ok {
			return 0, errors.NewConcurrentModificationActual(key, cond.Token, actual)
		}
		return 0, errors.NewConcurrentModification(key, cond.Token)
	}

	s.logger.Debug("etcd put", "key", key, "condition", cond.String(), "revision", resp.Header.Revision)
	return uint64(resp.Header.Revision), nil
}

// Remove deletes key. A missing key reports ErrNotFound for both unconditional and guarded deletes.
func (s *Store) Remove(ctx context.Context, key string, cond docstore.Condition) error {
	full := s.fullKey(key)

	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	switch cond.Mode {
	case docstore.Unconditional:
		resp, err := s.kv.Delete(callCtx, full)
		if err != nil {
			return s.classify(ctx, "delete", key, err)
		}
		if resp.Deleted == 0 {
			return fmt.Errorf("etcd delete %s: %w", key, errors.ErrNotFound)
		}
		return nil
	case docstore.IfToken:
	default:
		return errors.WrapInvalid(errors.ErrInvalidArgument, "etcdstore", "Remove",
			fmt.Sprintf("condition %s", cond))
	}

	rev, err := revision(cond.Token)
	if err != nil {
		return err
	}

	resp, err := s.kv.Txn(callCtx).
		If(clientv3.Compare(clientv3.ModRevision(full), "=", rev)).
		Then(clientv3.OpDelete(full)).
		Else(clientv3.OpGet(full)).
		Commit()
	if err != nil {
		return s.classify(ctx, "delete", key, err)
	}
	if !resp.Succeeded {
		actual, ok := currentRevision(resp)
		if !ok {
			return fmt.Errorf("etcd delete %s: %w", key, errors.ErrNotFound)
		}
		return errors.NewConcurrentModificationActual(key, cond.Token, actual)
	}
	return nil
}

// Keys lists document keys under prefix, with the store namespace stripped.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.kv.Get(callCtx, s.fullKey(prefix), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, s.classify(ctx, "keys", prefix, err)
	}

	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, strings.TrimPrefix(string(kv.Key), s.prefix))
	}
	return keys, nil
}

// Ping succeeds when at least one endpoint answers a maintenance status request.
func (s *Store) Ping(ctx context.Context) error {
	if s.maint == nil || len(s.endpoints) == 0 {
		return errors.WrapFatal(errors.ErrNoConnection, "etcdstore", "Ping", "no maintenance client configured")
	}

	var lastErr error
	for _, ep := range s.endpoints {
		callCtx, cancel := s.callContext(ctx)
		_, err := s.maint.Status(callCtx, ep)
		cancel()
		if err == nil {
			return nil
		}
		s.logger.Warn("etcd endpoint status failed", "endpoint", ep, "error", err)
		lastErr = err
	}
	return s.classify(ctx, "ping", strings.Join(s.endpoints, ","), lastErr)
}

func revision(token uint64) (int64, error) {
	if token == 0 || token > math.MaxInt64 {
		return 0, errors.WrapInvalid(errors.ErrInvalidArgument, "etcdstore", "revision",
			fmt.Sprintf("token %d is not an etcd revision", token))
	}
	return int64(token), nil
}

// currentRevision reads the else-branch Get of a failed guarded transaction.
func currentRevision(resp *clientv3.TxnResponse) (uint64, bool) {
	for _, op := range resp.Responses {
		rng := op.GetResponseRange()
		if rng == nil || len(rng.Kvs) == 0 {
			continue
		}
		return uint64(rng.Kvs[0].ModRevision), true
	}
	return 0, false
}

var transientRPCErrors = []error{
	rpctypes.ErrTimeout,
	rpctypes.ErrTimeoutDueToLeaderFail,
	rpctypes.ErrTimeoutDueToConnectionLost,
	rpctypes.ErrLeaderChanged,
	rpctypes.ErrNoLeader,
	rpctypes.ErrTooManyRequests,
}

// classify maps etcd client and gRPC errors onto the document error taxonomy.
func (s *Store) classify(parent context.Context, op, key string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("etcd %s %s: %w", op, key, parent.Err())
	}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("etcd %s %s: %w: %v", op, key, errors.ErrTimeout, err)
	case stderrors.Is(err, context.Canceled):
		return fmt.Errorf("etcd %s %s: %w: %v", op, key, errors.ErrTransportCancelled, err)
	case stderrors.Is(err, clientv3.ErrNoAvailableEndpoints):
		return fmt.Errorf("etcd %s %s: %w: %v", op, key, errors.ErrNoConnection, err)
	}

	for _, transient := range transientRPCErrors {
		if stderrors.Is(err, transient) {
			return fmt.Errorf("etcd %s %s: %w: %v", op, key, errors.ErrOverloaded, err)
		}
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.DeadlineExceeded:
			return fmt.Errorf("etcd %s %s: %w: %v", op, key, errors.ErrTimeout, err)
		case codes.Unavailable:
			return fmt.Errorf("etcd %s %s: %w: %v", op, key, errors.ErrNoConnection, err)
		case codes.ResourceExhausted, codes.Aborted:
			return fmt.Errorf("etcd %s %s: %w: %v", op, key, errors.ErrOverloaded, err)
		case codes.Canceled:
			return fmt.Errorf("etcd %s %s: %w: %v", op, key, errors.ErrTransportCancelled, err)
		}
	}

	return errors.WrapFatal(err, "Store", op, fmt.Sprintf("key %s", key))
}
