package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/c360/docstore/docstore"
	"github.com/c360/docstore/errors"
)

const defaultDegree = 32

// FaultFunc is consulted before every operation. A non-nil error is returned instead of
// performing the operation.
type FaultFunc func(operation, key string) error

// item is one key in the tree, carrying the revisions that created and last modified it.
type item struct {
	key      string
	value    []byte
	created  uint64
	modified uint64
}

func (i *item) Less(than btree.Item) bool {
	return i.key < than.(*item).key
}

// Store is an in-process docstore.Remote ordered by key.
// A single revision counter is shared by all keys, so every mutation gets a fresh, increasing
// token the way an etcd cluster assigns them.
//
// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	name     string
	tree     *btree.BTree
	revision uint64
	fault    FaultFunc
}

var _ docstore.Remote = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithName sets the name reported by Name.
func WithName(name string) Option {
	return func(s *Store) { s.name = name }
}

// WithRevisionBase starts the revision counter at base, so the first write gets base+1.
func WithRevisionBase(base uint64) Option {
	return func(s *Store) { s.revision = base }
}

// WithFault installs a fault hook.
func WithFault(f FaultFunc) Option {
	return func(s *Store) { s.fault = f }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		name: "memory",
		tree: btree.New(defaultDegree),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// SetFault replaces the fault hook. Nil removes it.
func (s *Store) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// Revision returns the last assigned revision.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Ping always succeeds; it exists so the store can be health-checked like the remote backends.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) check(ctx context.Context, operation, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.fault != nil {
		return s.fault(operation, key)
	}
	return nil
}

func (s *Store) lookup(key string) *item {
	v := s.tree.Get(&item{key: key})
	if v == nil {
		return nil
	}
	return v.(*item)
}

// Get returns a copy of the stored value.
func (s *Store) Get(ctx context.Context, key string) (*docstore.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(ctx, "get", key); err != nil {
		return nil, err
	}
	it := s.lookup(key)
	if it == nil {
		return nil, fmt.Errorf("memstore get %q: %w", key, errors.ErrNotFound)
	}
	return &docstore.Entry{
		Key:   key,
		Value: append([]byte(nil), it.value...),
		Token: it.modified,
	}, nil
}

// Put stores a copy of value under cond and returns the new revision.
func (s *Store) Put(ctx context.Context, key string, value []byte, cond docstore.Condition) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, "put", key); err != nil {
		return 0, err
	}

	existing := s.lookup(key)
	switch cond.Mode {
	case docstore.IfAbsent:
		if existing != nil {
			return 0, errors.NewConcurrentModificationActual(key, 0, existing.modified)
		}
	case docstore.IfToken:
		if existing == nil {
			return 0, errors.NewConcurrentModification(key, cond.Token)
		}
		if existing.modified != cond.Token {
			return 0, errors.NewConcurrentModificationActual(key, cond.Token, existing.modified)
		}
	}

	s.revision++
	next := &item{
		key:      key,
		value:    append([]byte(nil), value...),
		created:  s.revision,
		modified: s.revision,
	}
	if existing != nil {
		next.created = existing.created
	}
	s.tree.ReplaceOrInsert(next)
	return s.revision, nil
}

// Remove deletes key under cond.
func (s *Store) Remove(ctx context.Context, key string, cond docstore.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(ctx, "remove", key); err != nil {
		return err
	}

	existing := s.lookup(key)
	if existing == nil {
		return fmt.Errorf("memstore remove %q: %w", key, errors.ErrNotFound)
	}
	if cond.Mode == docstore.IfToken && existing.modified != cond.Token {
		return errors.NewConcurrentModificationActual(key, cond.Token, existing.modified)
	}

	s.revision++
	s.tree.Delete(existing)
	return nil
}

// Keys lists stored keys with the given prefix in order.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	s.tree.AscendGreaterOrEqual(&item{key: prefix}, func(i btree.Item) bool {
		it := i.(*item)
		if !strings.HasPrefix(it.key, prefix) {
			return false
		}
		keys = append(keys, it.key)
		return true
	})
	return keys
}
