// Package docstore persists versioned documents in a CAS-capable key-value backend.
//
// A document is addressed by (entity type, entity id), mapped to the key "type:id" by BuildKey.
// Every successful write returns a non-zero version token assigned by the backend. Passing that
// token to the next Write or Delete guards it: if another writer got there first the call fails
// with *errors.ConcurrentModificationError and nothing is changed. Token 0 means "no expectation";
// a zero-token Write upserts unless create-only is requested.
//
// Values are encoded with the client's default format (binary MessagePack with a 4-byte header)
// or per call with WithFormat(codec.FormatText) for plain JSON. Reads detect the format from the
// stored bytes, so documents written in either format can always be read back.
//
// Transient backend faults (errors.IsTransient) are retried with exponential backoff; everything
// else is returned unmodified. Absent documents are not errors: Read reports found=false and
// Delete succeeds.
//
// Basic usage:
//
//	client, err := docstore.NewClient(remote, docstore.WithLogger(logger))
//	token, err := client.Write(ctx, "Account", "u-1", Account{Balance: 10}, 0)
//
//	var acct Account
//	token, found, err := client.Read(ctx, "Account", "u-1", &acct)
//
//	token, err = client.Write(ctx, "Account", "u-1", Account{Balance: 20}, token)
//	if errors.IsConcurrentModification(err) {
//	    // re-read and try again
//	}
//
// Backends live in their own packages: natsclient (JetStream KV), etcdstore (etcd v3) and
// memstore (in-process, for tests and local runs).
package docstore
