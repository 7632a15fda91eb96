package statestore

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docstore/codec"
	"github.com/c360/docstore/docstore"
	"github.com/c360/docstore/errors"
	"github.com/c360/docstore/memstore"
)

type cart struct {
	Items    []string `json:"items"`
	Currency string   `json:"currency"`
}

func newCart() cart {
	return cart{Items: []string{}, Currency: "EUR"}
}

func newTestStore(t *testing.T, opts ...Option[cart]) (*Store[cart], *memstore.Store) {
	t.Helper()
	remote := memstore.New(memstore.WithRevisionBase(40))
	client, err := docstore.NewClient(remote)
	require.NoError(t, err)

	store, err := New[cart](client, "Cart", append([]Option[cart]{WithFactory(newCart)}, opts...)...)
	require.NoError(t, err)
	return store, remote
}

func TestNew_Validation(t *testing.T) {
	_, err := New[cart](nil, "Cart")
	assert.True(t, errors.IsInvalid(err))

	client, err := docstore.NewClient(memstore.New())
	require.NoError(t, err)
	_, err = New[cart](client, "")
	assert.True(t, errors.IsInvalid(err))

	s, err := New[cart](client, "Cart")
	require.NoError(t, err)
	assert.Equal(t, "Cart", s.Name())
}

func TestStore_ReadAbsentUsesFactory(t *testing.T) {
	store, _ := newTestStore(t)

	state, err := store.Read(context.Background(), "c-1")
	require.NoError(t, err)
	assert.False(t, state.RecordExists)
	assert.Empty(t, state.ETag)
	assert.Equal(t, newCart(), state.Value)
}

func TestStore_ReadAbsentZeroValue(t *testing.T) {
	client, err := docstore.NewClient(memstore.New())
	require.NoError(t, err)
	store, err := New[cart](client, "Cart")
	require.NoError(t, err)

	state, err := store.Read(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, cart{}, state.Value)
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store, remote := newTestStore(t)

	state, err := store.Read(ctx, "c-1")
	require.NoError(t, err)

	state.Value.Items = append(state.Value.Items, "apple")
	require.NoError(t, store.Write(ctx, "c-1", state))
	assert.Equal(t, "41", state.ETag)
	assert.True(t, state.RecordExists)

	loaded, err := store.Read(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, loaded.RecordExists)
	assert.Equal(t, "41", loaded.ETag)
	assert.Equal(t, []string{"apple"}, loaded.Value.Items)

	loaded.Value.Items = append(loaded.Value.Items, "pear")
	require.NoError(t, store.Write(ctx, "c-1", loaded))
	assert.Equal(t, "42", loaded.ETag)

	// the first copy is now stale
	state.Value.Items = []string{"plum"}
	err = store.Write(ctx, "c-1", state)
	assert.True(t, errors.IsConcurrentModification(err))
	assert.Equal(t, "41", state.ETag, "a failed write leaves the ETag alone")

	require.NoError(t, store.Clear(ctx, "c-1", loaded))
	assert.False(t, loaded.RecordExists)
	assert.Empty(t, loaded.ETag)
	assert.Equal(t, newCart(), loaded.Value)
	assert.Equal(t, 0, remote.Len())
}

func TestStore_UnparsableETagWritesUnguarded(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Write(ctx, "c-1", &State[cart]{Value: newCart()}))

	state := &State[cart]{Value: cart{Items: []string{"x"}}, ETag: "not-a-number"}
	require.NoError(t, store.Write(ctx, "c-1", state))
	assert.Equal(t, "42", state.ETag)
}

func TestStore_ClearAbsentSucceeds(t *testing.T) {
	store, _ := newTestStore(t)
	state := &State[cart]{ETag: "7", RecordExists: true}
	require.NoError(t, store.Clear(context.Background(), "missing", state))
	assert.False(t, state.RecordExists)
}

func TestStore_NilState(t *testing.T) {
	store, _ := newTestStore(t)
	assert.True(t, errors.IsInvalid(store.Write(context.Background(), "c-1", nil)))
	assert.True(t, errors.IsInvalid(store.Clear(context.Background(), "c-1", nil)))
}

func TestStore_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	store, remote := newTestStore(t, WithLogger[cart](logger))
	remote.SetFault(func(operation, key string) error {
		return errors.WrapFatal(errors.ErrInvalidConfig, "test", operation, "forced failure")
	})

	_, err := store.Read(context.Background(), "c-9")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Error reading state")
	assert.Contains(t, buf.String(), "state=Cart")
	assert.Contains(t, buf.String(), "id=c-9")
}

type profile struct {
	Labels map[string]string `json:"labels,omitempty"`
	Tags   []string          `json:"tags,omitempty"`
}

func TestStore_ReadReturnsStoredValueNotDefaults(t *testing.T) {
	for _, format := range []codec.Format{codec.FormatBinary, codec.FormatText} {
		t.Run(format.String(), func(t *testing.T) {
			ctx := context.Background()
			client, err := docstore.NewClient(memstore.New(), docstore.WithDefaultFormat(format))
			require.NoError(t, err)
			store, err := New[profile](client, "Profile", WithFactory(func() profile {
				return profile{Labels: map[string]string{"default": "x"}, Tags: []string{"d"}}
			}))
			require.NoError(t, err)

			stored := profile{Labels: map[string]string{"stored": "y"}}
			require.NoError(t, store.Write(ctx, "p-1", &State[profile]{Value: stored}))

			state, err := store.Read(ctx, "p-1")
			require.NoError(t, err)
			assert.True(t, state.RecordExists)
			assert.Equal(t, stored, state.Value)

			absent, err := store.Read(ctx, "p-2")
			require.NoError(t, err)
			assert.Equal(t, []string{"d"}, absent.Value.Tags, "absent records still use the factory")
		})
	}
}
