package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/docstore/errors"
)

// fakeRemote is a map-backed Remote with scripted faults per operation.
type fakeRemote struct {
	mu        sync.Mutex
	data      map[string]*Entry
	rev       uint64
	faults    map[string][]error
	calls     map[string]int
	block     bool
	tokenZero bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		data:   make(map[string]*Entry),
		faults: make(map[string][]error),
		calls:  make(map[string]int),
		rev:    100,
	}
}

func (f *fakeRemote) Name() string { return "fake-bucket" }

// failNext queues errs to be returned by the next calls of op.
func (f *fakeRemote) failNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = append(f.faults[op], errs...)
}

func (f *fakeRemote) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	block := f.block
	var fault error
	if q := f.faults[op]; len(q) > 0 {
		fault, f.faults[op] = q[0], q[1:]
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return fault
}

func (f *fakeRemote) Get(ctx context.Context, key string) (*Entry, error) {
	if err := f.enter(ctx, "get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("fake get %s: %w", key, errors.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (f *fakeRemote) Put(ctx context.Context, key string, value []byte, cond Condition) (uint64, error) {
	if err := f.enter(ctx, "put"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenZero {
		return 0, nil
	}
	e, ok := f.data[key]
	switch cond.Mode {
	case IfAbsent:
		if ok {
			return 0, errors.NewConcurrentModificationActual("bucket/"+key, 0, e.Token)
		}
	case IfToken:
		if !ok {
			return 0, errors.NewConcurrentModification("bucket/"+key, cond.Token)
		}
		if e.Token != cond.Token {
			return 0, errors.NewConcurrentModificationActual("bucket/"+key, cond.Token, e.Token)
		}
	}
	f.rev++
	f.data[key] = &Entry{Key: key, Value: append([]byte(nil), value...), Token: f.rev}
	return f.rev, nil
}

func (f *fakeRemote) Remove(ctx context.Context, key string, cond Condition) error {
	if err := f.enter(ctx, "remove"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.data[key]
	if !ok {
		return fmt.Errorf("fake remove %s: %w", key, errors.ErrNotFound)
	}
	if cond.Mode == IfToken && e.Token != cond.Token {
		return errors.NewConcurrentModificationActual(key, cond.Token, e.Token)
	}
	delete(f.data, key)
	return nil
}

func (f *fakeRemote) raw(key string, value []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rev++
	f.data[key] = &Entry{Key: key, Value: value, Token: f.rev}
}
