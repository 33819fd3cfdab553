package tierkv

import (
	"context"
	"fmt"
	"sync"
)

// Vec is an append-oriented sequence stored as a Map keyed by position.
// Indexes are dense when only Push is used; Set may leave holes.
type Vec[V any] struct {
	m    *Map[uint64, V]
	mu   sync.Mutex
	next uint64
}

// NewVec opens the map behind a Vec and resumes after its highest index.
func NewVec[V any](ctx context.Context, opts Options[uint64, V]) (*Vec[V], error) {
	m, err := New(ctx, opts)
	if err != nil {
		return nil, err
	}
	v := &Vec[V]{m: m}
	i, _, ok, err := m.Last(ctx)
	if err != nil {
		_ = m.Close(ctx)
		return nil, fmt.Errorf("tierkv: vec tail: %w", err)
	}
	if ok {
		v.next = i + 1
	}
	return v, nil
}

// Push appends val and returns its index. When the value was stored but the
// eviction after it failed, the index is returned along with the error.
func (v *Vec[V]) Push(ctx context.Context, val V) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := v.next
	stored, err := v.m.store(ctx, i, val)
	if !stored {
		return 0, err
	}
	v.next++
	return i, err
}

func (v *Vec[V]) Get(ctx context.Context, i uint64) (V, bool, error) {
	return v.m.Get(ctx, i)
}

// Set overwrites position i, growing the sequence when i is past the end.
func (v *Vec[V]) Set(ctx context.Context, i uint64, val V) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	stored, err := v.m.store(ctx, i, val)
	if stored && i >= v.next {
		v.next = i + 1
	}
	return err
}

// Last returns the element with the highest index.
func (v *Vec[V]) Last(ctx context.Context) (V, bool, error) {
	_, val, ok, err := v.m.Last(ctx)
	return val, ok, err
}

// Len counts stored elements.
func (v *Vec[V]) Len() int { return v.m.Len() }

// Iterate walks elements in index order.
func (v *Vec[V]) Iterate(ctx context.Context) *Iterator[uint64, V] {
	return v.m.Iterate(ctx, All[uint64]())
}

// Map exposes the underlying map.
func (v *Vec[V]) Map() *Map[uint64, V] { return v.m }

func (v *Vec[V]) Flush(ctx context.Context) error { return v.m.Flush(ctx) }
func (v *Vec[V]) Close(ctx context.Context) error { return v.m.Close(ctx) }
