package natsclient

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docstore/docstore"
	"github.com/c360/docstore/errors"
)

// fakeEntry implements the parts of jetstream.KeyValueEntry the store reads.
type fakeEntry struct {
	jetstream.KeyValueEntry
	key   string
	value []byte
	rev   uint64
}

func (e *fakeEntry) Key() string      { return e.key }
func (e *fakeEntry) Value() []byte    { return e.value }
func (e *fakeEntry) Revision() uint64 { return e.rev }

// fakeBucket mimics JetStream KV revision semantics: one sequence per bucket,
// deletes leave markers, Update checks the last revision of the key.
type fakeBucket struct {
	jetstream.KeyValue
	mu        sync.Mutex
	seq       uint64
	entries   map[string]*fakeEntry
	err     error
	keys    []string
	guard   *uint64 // last revision the next Delete must match
	deletes []int   // options passed to each Delete
}

// guardDeletes makes kv's LastRevision guards visible to bucket, which then enforces them
// the way the server does.
func guardDeletes(kv *KVStore, bucket *fakeBucket) {
	kv.lastRevision = func(rev uint64) jetstream.KVDeleteOpt {
		bucket.mu.Lock()
		bucket.guard = &rev
		bucket.mu.Unlock()
		return jetstream.LastRevision(rev)
	}
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{entries: make(map[string]*fakeEntry)}
}

func (b *fakeBucket) Bucket() string { return "docs" }

func (b *fakeBucket) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	if b.err != nil {
		return nil, b.err
	}
	e, ok := b.entries[key]
	if !ok || e.value == nil {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

func (b *fakeBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	if b.err != nil {
		return 0, b.err
	}
	return b.store(key, value), nil
}

func (b *fakeBucket) Create(_ context.Context, key string, value []byte, _ ...jetstream.KVCreateOpt) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.entries[key]; ok && e.value != nil {
		return 0, jetstream.ErrKeyExists
	}
	return b.store(key, value), nil
}

func (b *fakeBucket) Update(_ context.Context, key string, value []byte, last uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var current uint64
	if e, ok := b.entries[key]; ok {
		current = e.rev
	}
	if current != last {
		return 0, fmt.Errorf("nats: API error: code=400 err_code=10071 description=wrong last sequence: %d", current)
	}
	return b.store(key, value), nil
}

func (b *fakeBucket) Delete(_ context.Context, key string, opts ...jetstream.KVDeleteOpt) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, len(opts))
	guard := b.guard
	b.guard = nil
	if b.err != nil {
		return b.err
	}
	if guard != nil {
		var current uint64
		if e, ok := b.entries[key]; ok {
			current = e.rev
		}
		if current != *guard {
			return fmt.Errorf("nats: API error: code=400 err_code=10071 description=wrong last sequence: %d", current)
		}
	}
	b.seq++
	b.entries[key] = &fakeEntry{key: key, rev: b.seq}
	return nil
}

func (b *fakeBucket) store(key string, value []byte) uint64 {
	b.seq++
	b.entries[key] = &fakeEntry{key: key, value: append([]byte(nil), value...), rev: b.seq}
	return b.seq
}

func TestKVStore_PutConditions(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	kv := NewKVStore(bucket, nil)

	assert.Equal(t, "docs", kv.Name())

	t1, err := kv.Put(ctx, "Account:u-1", []byte("a"), docstore.Absent())
	require.NoError(t, err)
	assert.NotZero(t, t1)

	_, err = kv.Put(ctx, "Account:u-1", []byte("b"), docstore.Absent())
	var cme *errors.ConcurrentModificationError
	require.ErrorAs(t, err, &cme)
	assert.Equal(t, t1, cme.Actual)
	assert.Equal(t, "Account:u-1", cme.Key)

	t2, err := kv.Put(ctx, "Account:u-1", []byte("b"), docstore.MatchToken(t1))
	require.NoError(t, err)
	assert.Greater(t, t2, t1)

	_, err = kv.Put(ctx, "Account:u-1", []byte("c"), docstore.MatchToken(t1))
	require.ErrorAs(t, err, &cme)
	assert.Equal(t, t1, cme.Expected)
	assert.Equal(t, t2, cme.Actual)
	assert.False(t, errors.IsTransient(err))

	_, err = kv.Put(ctx, "Account:u-2", []byte("c"), docstore.MatchToken(9))
	require.ErrorAs(t, err, &cme)
	assert.False(t, cme.ActualKnown)

	t3, err := kv.Put(ctx, "Account:u-1", []byte("d"), docstore.Always())
	require.NoError(t, err)

	entry, err := kv.Get(ctx, "Account:u-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("d"), entry.Value)
	assert.Equal(t, t3, entry.Token)
	assert.Equal(t, "Account:u-1", entry.Key)

	assert.Contains(t, bucket.keys, "Account=3Au-1", "keys are escaped for NATS")
}

func TestKVStore_GetMissing(t *testing.T) {
	kv := NewKVStore(newFakeBucket(), nil)
	_, err := kv.Get(context.Background(), "Account:none")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestKVStore_Remove(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	kv := NewKVStore(bucket, nil)
	guardDeletes(kv, bucket)

	token, err := kv.Put(ctx, "k", []byte("a"), docstore.Always())
	require.NoError(t, err)

	err = kv.Remove(ctx, "k", docstore.MatchToken(token+7))
	var cme *errors.ConcurrentModificationError
	require.ErrorAs(t, err, &cme)
	assert.Equal(t, token, cme.Actual)
	assert.Equal(t, token, bucket.entries[EncodeKey("k")].rev, "a failed guard leaves the document")

	require.NoError(t, kv.Remove(ctx, "k", docstore.MatchToken(token)))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, errors.ErrNotFound, "delete markers read as absent")

	// the marker moved the revision, so the old guard fails and the key reads as gone
	err = kv.Remove(ctx, "k", docstore.MatchToken(token))
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, kv.Remove(ctx, "k", docstore.Always()))
	assert.Equal(t, []int{1, 1, 1, 0}, bucket.deletes, "only guarded removals send LastRevision")
}

func TestKVStore_RemoveGuardsWithStoredRevision(t *testing.T) {
	ctx := context.Background()
	bucket := newFakeBucket()
	kv := NewKVStore(bucket, nil)

	var sent []uint64
	kv.lastRevision = func(rev uint64) jetstream.KVDeleteOpt {
		sent = append(sent, rev)
		return jetstream.LastRevision(rev)
	}

	first, err := kv.Put(ctx, "Order:1", []byte("a"), docstore.Always())
	require.NoError(t, err)
	second, err := kv.Put(ctx, "Order:1", []byte("b"), docstore.MatchToken(first))
	require.NoError(t, err)

	require.NoError(t, kv.Remove(ctx, "Order:1", docstore.MatchToken(second)))
	require.NoError(t, kv.Remove(ctx, "Order:2", docstore.Always()))
	assert.Equal(t, []uint64{second}, sent)
}

func TestKVStore_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		sentinel  error
		transient bool
	}{
		{"not found", jetstream.ErrKeyNotFound, errors.ErrNotFound, false},
		{"timeout", nats.ErrTimeout, errors.ErrTimeout, true},
		{"deadline", context.DeadlineExceeded, errors.ErrTimeout, true},
		{"no responders", nats.ErrNoResponders, errors.ErrOverloaded, true},
		{"closed", nats.ErrConnectionClosed, errors.ErrNoConnection, true},
		{"reconnecting", nats.ErrConnectionReconnecting, errors.ErrNoConnection, true},
		{"transport cancelled", context.Canceled, errors.ErrTransportCancelled, true},
		{"unavailable", &jetstream.APIError{Code: 503, Description: "jetstream unavailable"}, errors.ErrOverloaded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket := newFakeBucket()
			bucket.err = tt.err
			kv := NewKVStore(bucket, nil)

			_, err := kv.Get(context.Background(), "k")
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.transient, errors.IsTransient(err))
		})
	}

	t.Run("unknown errors are fatal", func(t *testing.T) {
		bucket := newFakeBucket()
		bucket.err = fmt.Errorf("permissions violation")
		_, err := NewKVStore(bucket, nil).Put(context.Background(), "k", []byte("v"), docstore.Always())
		assert.True(t, errors.IsFatal(err))
	})
}

func TestKVStore_CallerCancellationNotTransient(t *testing.T) {
	bucket := newFakeBucket()
	bucket.err = context.Canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewKVStore(bucket, nil).Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.IsTransient(err))
}

func TestKVStore_MaxValueSize(t *testing.T) {
	kv := NewKVStore(newFakeBucket(), nil, func(o *KVOptions) { o.MaxValueSize = 4 })
	_, err := kv.Put(context.Background(), "k", []byte("too large"), docstore.Always())
	assert.True(t, errors.IsInvalid(err))
}

func TestKVStore_Timeout(t *testing.T) {
	kv := NewKVStore(newFakeBucket(), nil, func(o *KVOptions) { o.Timeout = 0 })
	ctx, cancel := kv.applyTimeout(context.Background())
	defer cancel()
	_, hasDeadline := ctx.Deadline()
	assert.False(t, hasDeadline)

	kv = NewKVStore(newFakeBucket(), nil, func(o *KVOptions) { o.Timeout = time.Second })
	ctx, cancel = kv.applyTimeout(context.Background())
	defer cancel()
	_, hasDeadline = ctx.Deadline()
	assert.True(t, hasDeadline)
}

func TestEncodeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Account:u-1", "Account=3Au-1"},
		{"a.b", "a=2Eb"},
		{"x=y", "x=3Dy"},
		{"with space", "with=20space"},
		{"path/ok_-", "path/ok_-"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := EncodeKey(tt.in)
			assert.Equal(t, tt.want, got)

			back, err := DecodeKey(got)
			require.NoError(t, err)
			assert.Equal(t, tt.in, back)
		})
	}

	// escaped and literal forms never collide
	assert.NotEqual(t, EncodeKey("a:b"), EncodeKey("a=3Ab"))

	_, err := DecodeKey("bad=4")
	assert.Error(t, err)
	_, err = DecodeKey("bad=ZZ")
	assert.Error(t, err)
}

func TestIsKVErrorHelpers(t *testing.T) {
	assert.True(t, IsKVNotFoundError(jetstream.ErrKeyNotFound))
	assert.True(t, IsKVNotFoundError(fmt.Errorf("nats: key not found")))
	assert.False(t, IsKVNotFoundError(nil))

	assert.True(t, IsKVConflictError(jetstream.ErrKeyExists))
	assert.True(t, IsKVConflictError(fmt.Errorf("wrong last sequence: 5")))
	assert.True(t, IsKVConflictError(fmt.Errorf("err_code=10071")))
	assert.False(t, IsKVConflictError(fmt.Errorf("timeout")))
	assert.False(t, IsKVConflictError(nil))
}

func TestKVStore_WithDocumentClient(t *testing.T) {
	ctx := context.Background()
	client, err := docstore.NewClient(NewKVStore(newFakeBucket(), nil))
	require.NoError(t, err)
	assert.Equal(t, "docs", client.Bucket())

	type account struct {
		Balance int `json:"balance"`
	}

	t1, err := client.Write(ctx, "Account", "u-1", account{Balance: 10}, 0)
	require.NoError(t, err)

	var got account
	token, found, err := client.Read(ctx, "Account", "u-1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, t1, token)
	assert.Equal(t, 10, got.Balance)

	_, err = client.Write(ctx, "Account", "u-1", account{Balance: 20}, t1+100)
	assert.True(t, errors.IsConcurrentModification(err))

	require.NoError(t, client.Delete(ctx, "Account", "u-1", t1))
	_, found, err = client.Read(ctx, "Account", "u-1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
