// Package backend defines the byte-oriented storage tier used beneath a
// tierkv map.
//
// A Backend is an ordered key-value store over raw bytes. Keys compare
// lexicographically; the map above relies on that order for iteration, so
// implementations must scan in bytes.Compare order.
//
// Two implementations exist: backend/memory (ephemeral, an in-process B-tree)
// and backend/boltdb (durable, go.etcd.io/bbolt). A map treats them the same
// except that flushes and deferred deletes are skipped for non-durable ones.
package backend

import (
	"bytes"
	"context"
	"errors"
)

// ErrUnavailable marks storage failures: engine errors, full disks,
// permissions, a closed store. Implementations wrap the cause with %w.
var ErrUnavailable = errors.New("backend: unavailable")

// OpKind is the kind of a batch operation.
type OpKind uint8

const (
	OpPut OpKind = iota + 1
	OpDelete
)

// Op is one mutation inside a WriteBatch.
type Op struct {
	Kind  OpKind
	Key   []byte
	Value []byte // ignored for OpDelete
}

func Put(key, value []byte) Op { return Op{Kind: OpPut, Key: key, Value: value} }
func Delete(key []byte) Op     { return Op{Kind: OpDelete, Key: key} }

// Range selects keys in [Start, End). A nil bound is open.
// Reverse scans from the high end down.
type Range struct {
	Start   []byte
	End     []byte
	Reverse bool
}

// Contains reports whether k lies inside r.
func (r Range) Contains(k []byte) bool {
	if r.Start != nil && bytes.Compare(k, r.Start) < 0 {
		return false
	}
	if r.End != nil && bytes.Compare(k, r.End) >= 0 {
		return false
	}
	return true
}

// Backend is an ordered byte store.
// Must be safe for concurrent use.
type Backend interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// The returned slice is owned by the caller.
	Get(ctx context.Context, key []byte) ([]byte, bool, error)

	Put(ctx context.Context, key, value []byte) error

	// Delete of a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan calls fn for each pair in r, in order, until fn returns false.
	// k and v are only valid during the call.
	Scan(ctx context.Context, r Range, fn func(k, v []byte) bool) error

	// WriteBatch applies all ops or none of them.
	WriteBatch(ctx context.Context, ops []Op) error

	// Len returns the number of stored keys.
	Len(ctx context.Context) (int, error)

	// Durable reports whether writes survive a process restart.
	Durable() bool

	// Path locates the store on disk; empty for ephemeral stores.
	Path() string

	Close(ctx context.Context) error
}
