// Package etcdstore implements the document store remote over etcd v3.
//
// Every document lives at prefix+key. The version token of a document is the key's
// ModRevision, so it grows with every write to the cluster and is never 0.
//
// Conditions map onto etcd transactions:
//
//	Unconditional -> Put
//	IfAbsent      -> Txn(CreateRevision(key) = 0).Then(Put).Else(Get)
//	IfToken(n)    -> Txn(ModRevision(key) = n).Then(Put).Else(Get)
//
// The else branch lets a failed guard report the revision currently stored. Guarded deletes use
// the same shape with a Delete in the then branch; if the else branch finds nothing the key is
// reported as not found.
//
// gRPC Unavailable, DeadlineExceeded, ResourceExhausted and Aborted, together with the etcd
// leader and timeout errors, are classified as transient so the document client retries them.
package etcdstore
