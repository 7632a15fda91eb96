// Package docstore is a persistence layer for versioned documents with optimistic
// concurrency control.
//
// Documents are addressed by an entity type and an entity id, stored under the key
// "type:id" in a remote key-value backend, and guarded by an opaque version token.
// Every write compares the caller's token with the stored one; a mismatch fails
// with a concurrent modification error instead of silently overwriting another
// writer's change.
//
// # Architecture
//
//	caller ──► docstore.Client ──► codec (binary | text) ──► docstore.Remote
//	                │                                          │
//	                └── pkg/retry (transient faults only)      ├── natsclient.KVStore (JetStream KV)
//	                                                           ├── etcdstore.Store (etcd v3)
//	                                                           └── memstore.Store (in-process)
//
// The client holds no per-key state. Concurrent writers are arbitrated by the
// backend's compare-and-swap; the client only encodes, retries and translates errors.
//
// # Wire Formats
//
// Binary documents carry a 4-byte header (version, format, two reserved bytes)
// followed by MessagePack. Text documents are plain JSON with no header. Reads
// detect the format from the first byte, so both may coexist in one bucket and a
// document may change format on each write.
//
// # Packages
//
// Core:
//   - docstore: Key Builder, Remote contract, Client, typed helpers, operation metrics
//   - codec: Binary and text codecs and the format detector
//   - errors: Error classes and the document error taxonomy
//   - pkg/retry: Exponential backoff with a pluggable classifier
//
// Backends:
//   - natsclient: NATS connection manager and JetStream KV remote
//   - etcdstore: etcd v3 remote using transactions on ModRevision/CreateRevision
//   - memstore: btree-backed remote for tests and single-process use
//
// Supporting:
//   - statestore: State objects with string ETags on top of the client
//   - health: Backend probes aggregated to healthy, degraded or unhealthy
//   - metric: Prometheus registry and exposition server
//   - config: viper configuration with DOCSTORE_* environment overrides
//   - pkg/tlsutil: Client TLS for backend connections
//
// # Usage
//
//	nc, _ := natsclient.NewClient("nats://localhost:4222")
//	_ = nc.Connect(ctx)
//	remote, _ := nc.OpenStore(ctx, natsclient.BucketConfig{Name: "orders"})
//
//	client, _ := docstore.NewClient(remote)
//
//	token, err := client.Write(ctx, "Order", "o-1", order, 0)
//	// ...
//	var loaded Order
//	token, found, err := client.Read(ctx, "Order", "o-1", &loaded)
//	// ...
//	_, err = client.Write(ctx, "Order", "o-1", loaded, token) // fails if someone wrote in between
//
// # Binary
//
//	docstore put Order o-1 --data '{"sku":"A-1"}'
//	docstore get Order o-1 -o yaml
//	docstore delete Order o-1 --token 1
//	docstore health
//	docstore serve-metrics --port 9090
package docstore
