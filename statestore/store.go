// Package statestore keeps typed state objects in the document store. Each state carries an
// opaque ETag, the decimal form of its version token, and a RecordExists flag.
package statestore

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/c360/docstore/docstore"
	"github.com/c360/docstore/errors"
)

// State is a state object plus its concurrency metadata.
// An empty ETag means no stored version is known.
type State[T any] struct {
	Value        T
	ETag         string
	RecordExists bool
}

// Store reads and writes states of one kind, named by the entity type they are stored under.
type Store[T any] struct {
	name    string
	client  *docstore.Client
	factory func() T
	logger  *slog.Logger
}

// Option configures a Store
type Option[T any] func(*Store[T])

// WithFactory builds the value reported for absent or cleared states. The zero value is used otherwise.
func WithFactory[T any](factory func() T) Option[T] {
	return func(s *Store[T]) {
		s.factory = factory
	}
}

// WithLogger sets the logger used for failed operations.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(s *Store[T]) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store for the state kind name.
func New[T any](client *docstore.Client, name string, opts ...Option[T]) (*Store[T], error) {
	if client == nil {
		return nil, errors.WrapInvalid(nil, "statestore", "New", "document client cannot be nil")
	}
	if _, err := docstore.BuildKey(name, "probe"); err != nil {
		return nil, errors.WrapInvalid(err, "statestore", "New", "invalid state name")
	}

	s := &Store[T]{
		name:   name,
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("state", name)
	return s, nil
}

// Name returns the state kind
func (s *Store[T]) Name() string {
	return s.name
}

func (s *Store[T]) defaultValue() T {
	if s.factory != nil {
		return s.factory()
	}
	var zero T
	return zero
}

// Read loads the state for id. An absent record yields the default value, an empty ETag and
// RecordExists false.
func (s *Store[T]) Read(ctx context.Context, id string) (*State[T], error) {
	// decoders merge into their target, so a prefilled default would leak into the stored value
	var value T
	token, found, err := s.client.Read(ctx, s.name, id, &value)
	if err != nil {
		s.logger.Error("Error reading state", "id", id, "error", err)
		return nil, err
	}
	if !found {
		return &State[T]{Value: s.defaultValue()}, nil
	}
	return &State[T]{
		Value:        value,
		ETag:         formatETag(token),
		RecordExists: true,
	}, nil
}

// Write stores state.Value guarded by state.ETag and refreshes the ETag. An empty or
// unparsable ETag writes without a version guard.
func (s *Store[T]) Write(ctx context.Context, id string, state *State[T]) error {
	if state == nil {
		return errors.WrapInvalid(nil, "statestore", "Write", "state cannot be nil")
	}

	token, err := s.client.Write(ctx, s.name, id, state.Value, parseETag(state.ETag))
	if err != nil {
		s.logger.Error("Error writing state", "id", id, "etag", state.ETag, "error", err)
		return err
	}

	state.ETag = formatETag(token)
	state.RecordExists = true
	return nil
}

// Clear deletes the record guarded by state.ETag and resets state to the default value.
func (s *Store[T]) Clear(ctx context.Context, id string, state *State[T]) error {
	if state == nil {
		return errors.WrapInvalid(nil, "statestore", "Clear", "state cannot be nil")
	}

	if err := s.client.Delete(ctx, s.name, id, parseETag(state.ETag)); err != nil {
		s.logger.Error("Error clearing state", "id", id, "etag", state.ETag, "error", err)
		return err
	}

	state.Value = s.defaultValue()
	state.ETag = ""
	state.RecordExists = false
	return nil
}

func formatETag(token uint64) string {
	return strconv.FormatUint(token, 10)
}

func parseETag(etag string) uint64 {
	token, err := strconv.ParseUint(etag, 10, 64)
	if err != nil {
		return 0
	}
	return token
}
