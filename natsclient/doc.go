// Package natsclient provides a NATS client with circuit breaker protection, automatic
// reconnection, and a JetStream key-value adapter for the document store.
//
// # Core Features
//
// Circuit breaker: connection attempts and bucket management calls count failures. After
// a threshold (default 5) the client fails fast with ErrCircuitOpen for a backoff that
// doubles each round up to a minute, then lets the next Connect through.
//
// Connection states: Disconnected, Connecting, Connected, Reconnecting and CircuitOpen.
// WithStateListener observes transitions; WithMetrics publishes them as gauges.
//
// Document Remote: KVStore implements docstore.Remote over a JetStream KV bucket. Bucket
// revisions are the version tokens, so they are never 0 and grow with every write.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithCircuitBreaker(10, time.Minute),
//	)
//	if err != nil {
//	    return err
//	}
//
//	ctx := context.Background()
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	remote, err := client.OpenStore(ctx, natsclient.BucketConfig{Name: "documents", History: 5})
//	if err != nil {
//	    return err
//	}
//	store, err := docstore.NewClient(remote)
//
// # Condition Mapping
//
// Document writes map onto the KV API as follows:
//
//	Unconditional  -> KeyValue.Put
//	IfAbsent       -> KeyValue.Create
//	IfToken(n)     -> KeyValue.Update(key, value, n)
//	guarded delete -> KeyValue.Delete(key, jetstream.LastRevision(n))
//
// A rejected guard is reported as an errors.ConcurrentModificationError. The store reads the
// key once more so the error can name the revision the caller raced against.
//
// # Key Encoding
//
// NATS KV keys allow only [-/_=.a-zA-Z0-9]. EncodeKey escapes every other byte (and '.', '=')
// as "=XX", so "Account:u-1" is stored as "Account=3Au-1". The mapping is injective and
// DecodeKey reverses it.
//
// # Error Classification
//
// Remote failures are mapped onto the shared taxonomy:
//
//   - missing keys and delete markers: errors.ErrNotFound
//   - request timeouts: errors.ErrTimeout (transient)
//   - no responders, HTTP 503/429 API errors: errors.ErrOverloaded (transient)
//   - closed, draining or reconnecting connections: errors.ErrNoConnection (transient)
//   - anything else: fatal
//
// When the caller's own context is done the caller's error is returned unchanged, so it is
// never retried.
//
// # Testing
//
// NewTestServer starts a JetStream-enabled NATS server in a container via testcontainers:
//
//	srv := natsclient.NewTestServer(t, natsclient.WithBuckets("accounts"))
//	remote, err := srv.OpenStore(ctx, "accounts")
//
// Tests that need a container carry the "integration" build tag.
package natsclient
