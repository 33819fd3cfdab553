// Package memory is the ephemeral Backend: an ordered B-tree of byte pairs
// guarded by one RWMutex. Nothing is persisted.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/unkn0wn-root/tierkv/backend"
)

const degree = 32

type item struct {
	k []byte
	v []byte
}

func less(a, b item) bool { return bytes.Compare(a.k, b.k) < 0 }

// Store is an in-memory backend.Backend. The zero value is not usable; call New.
type Store struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[item]
	closed bool
}

var _ backend.Backend = (*Store)(nil)

func New() *Store {
	return &Store{tree: btree.NewG[item](degree, less)}
}

func (s *Store) Get(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, errClosed()
	}
	it, ok := s.tree.Get(item{k: key})
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), it.v...), true, nil
}

func (s *Store) Put(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	s.put(key, value)
	return nil
}

func (s *Store) put(key, value []byte) {
	s.tree.ReplaceOrInsert(item{
		k: append([]byte(nil), key...),
		v: append([]byte(nil), value...),
	})
}

func (s *Store) Delete(_ context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	s.tree.Delete(item{k: key})
	return nil
}

// WriteBatch validates every op before applying any, so a malformed batch
// leaves the tree untouched.
func (s *Store) WriteBatch(_ context.Context, ops []backend.Op) error {
	for i, op := range ops {
		if op.Kind != backend.OpPut && op.Kind != backend.OpDelete {
			return fmt.Errorf("memory: batch op %d: unknown kind %d", i, op.Kind)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}
	for _, op := range ops {
		if op.Kind == backend.OpPut {
			s.put(op.Key, op.Value)
		} else {
			s.tree.Delete(item{k: op.Key})
		}
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, r backend.Range, fn func(k, v []byte) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed()
	}
	var err error
	visit := func(it item) bool {
		if err = ctx.Err(); err != nil {
			return false
		}
		return fn(it.k, it.v)
	}
	if !r.Reverse {
		if r.Start == nil {
			s.tree.Ascend(func(it item) bool {
				if r.End != nil && bytes.Compare(it.k, r.End) >= 0 {
					return false
				}
				return visit(it)
			})
		} else {
			s.tree.AscendGreaterOrEqual(item{k: r.Start}, func(it item) bool {
				if r.End != nil && bytes.Compare(it.k, r.End) >= 0 {
					return false
				}
				return visit(it)
			})
		}
		return err
	}

	walk := func(it item) bool {
		if r.End != nil && bytes.Compare(it.k, r.End) >= 0 {
			return true // DescendLessOrEqual is inclusive; skip the bound itself
		}
		if r.Start != nil && bytes.Compare(it.k, r.Start) < 0 {
			return false
		}
		return visit(it)
	}
	if r.End == nil {
		s.tree.Descend(walk)
	} else {
		s.tree.DescendLessOrEqual(item{k: r.End}, walk)
	}
	return err
}

func (s *Store) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed()
	}
	return s.tree.Len(), nil
}

func (s *Store) Durable() bool { return false }
func (s *Store) Path() string  { return "" }

func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tree.Clear(false)
	return nil
}

func errClosed() error { return fmt.Errorf("memory: store closed: %w", backend.ErrUnavailable) }
