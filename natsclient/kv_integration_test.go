//go:build integration

package natsclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docstore/codec"
	"github.com/c360/docstore/docstore"
	"github.com/c360/docstore/errors"
)

type ledger struct {
	Owner   string   `json:"owner"`
	Balance int64    `json:"balance"`
	Tags    []string `json:"tags,omitempty"`
}

func TestIntegration_ConnectToRealNATS(t *testing.T) {
	srv := NewTestServer(t)
	ctx := context.Background()

	assert.True(t, srv.Client.IsHealthy())
	assert.Equal(t, StateConnected, srv.Client.State())
	require.NoError(t, srv.Client.Ping(ctx))

	rtt, err := srv.Client.RTT()
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))
	assert.NotNil(t, srv.Client.Conn())
	assert.Equal(t, StateConnected, srv.Client.Snapshot().State)
}

func TestIntegration_BucketLifecycle(t *testing.T) {
	srv := NewTestServer(t, WithBuckets("preset"))
	ctx := context.Background()

	_, err := srv.Client.Bucket(ctx, "preset")
	require.NoError(t, err)

	// creating twice reuses the bucket
	_, err = srv.Client.EnsureBucket(ctx, BucketConfig{Name: "twice"})
	require.NoError(t, err)
	_, err = srv.Client.EnsureBucket(ctx, BucketConfig{Name: "twice"})
	require.NoError(t, err)

	names, err := srv.Client.BucketNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "preset")
	assert.Contains(t, names, "twice")

	require.NoError(t, srv.Client.DeleteBucket(ctx, "twice"))
	_, err = srv.Client.Bucket(ctx, "twice")
	assert.True(t, errors.IsFatal(err))
}

func TestIntegration_DocumentLifecycle(t *testing.T) {
	srv := NewTestServer(t)
	ctx := context.Background()

	remote, err := srv.OpenStore(ctx, "accounts")
	require.NoError(t, err)

	client, err := docstore.NewClient(remote)
	require.NoError(t, err)

	t1, err := client.Write(ctx, "Account", "u-1", ledger{Owner: "ann", Balance: 10}, 0)
	require.NoError(t, err)
	assert.NotZero(t, t1)

	var got ledger
	token, found, err := client.Read(ctx, "Account", "u-1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, t1, token)
	assert.Equal(t, int64(10), got.Balance)

	t2, err := client.Write(ctx, "Account", "u-1", ledger{Owner: "ann", Balance: 25}, t1)
	require.NoError(t, err)
	assert.Greater(t, t2, t1)

	_, err = client.Write(ctx, "Account", "u-1", ledger{Owner: "ann", Balance: 99}, t1)
	var cme *errors.ConcurrentModificationError
	require.ErrorAs(t, err, &cme)
	assert.Equal(t, "Account:u-1", cme.Key)
	assert.Equal(t, t2, cme.Actual)

	keys, err := remote.Keys(ctx, "Account:")
	require.NoError(t, err)
	assert.Equal(t, []string{"Account:u-1"}, keys)

	require.NoError(t, client.Delete(ctx, "Account", "u-1", t2))
	_, found, err = client.Read(ctx, "Account", "u-1", &got)
	require.NoError(t, err)
	assert.False(t, found)

	// deleting again is still a success
	require.NoError(t, client.Delete(ctx, "Account", "u-1", 0))
}

func TestIntegration_MixedFormats(t *testing.T) {
	srv := NewTestServer(t)
	ctx := context.Background()

	remote, err := srv.OpenStore(ctx, "mixed")
	require.NoError(t, err)
	client, err := docstore.NewClient(remote, docstore.WithDefaultFormat(codec.FormatText))
	require.NoError(t, err)

	_, err = client.Write(ctx, "Ledger", "text", ledger{Owner: "t", Tags: []string{"a"}}, 0)
	require.NoError(t, err)
	_, err = client.Write(ctx, "Ledger", "bin", ledger{Owner: "b"}, 0, docstore.WithFormat(codec.FormatBinary))
	require.NoError(t, err)

	textEntry, err := remote.Get(ctx, "Ledger:text")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), textEntry.Value[0])

	binEntry, err := remote.Get(ctx, "Ledger:bin")
	require.NoError(t, err)
	assert.Equal(t, codec.BinaryVersion, binEntry.Value[0])

	for _, id := range []string{"text", "bin"} {
		got, _, found, err := docstore.ReadAs[ledger](ctx, client, "Ledger", id)
		require.NoError(t, err)
		assert.True(t, found)
		assert.NotEmpty(t, got.Owner)
	}
}

func TestIntegration_ConcurrentCreateOneWins(t *testing.T) {
	srv := NewTestServer(t)
	ctx := context.Background()

	remote, err := srv.OpenStore(ctx, "race")
	require.NoError(t, err)
	client, err := docstore.NewClient(remote, docstore.WithCreateOnlyOnZeroToken(true))
	require.NoError(t, err)

	const writers = 8
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := client.Write(ctx, "Account", "shared", ledger{Owner: fmt.Sprintf("w%d", i)}, 0)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.IsConcurrentModification(err):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())
}

func TestIntegration_ClosedConnectionIsTransient(t *testing.T) {
	srv := NewTestServer(t)
	ctx := context.Background()

	remote, err := srv.OpenStore(ctx, "closing", func(o *KVOptions) { o.Timeout = time.Second })
	require.NoError(t, err)

	require.NoError(t, srv.Client.Close(ctx))

	_, err = remote.Get(ctx, "Account:u-1")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err), "got %v", err)
}
