package tierkv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/unkn0wn-root/tierkv/backend"
	"github.com/unkn0wn-root/tierkv/backend/boltdb"
	"github.com/unkn0wn-root/tierkv/backend/memory"
	"github.com/unkn0wn-root/tierkv/codec"
	"github.com/unkn0wn-root/tierkv/internal/util"
	"github.com/unkn0wn-root/tierkv/keycodec"
)

// SizeFunc charges a resident entry against MaxBytes. raw is nil for pending
// deletes.
type SizeFunc func(key, raw []byte) int64

type Options[K, V any] struct {
	// KeyCodec must preserve order. nil => keycodec.For[K]().
	KeyCodec keycodec.Codec[K]
	// Codec for values. nil => deterministic CBOR.
	Codec codec.Codec[V]

	// Backend is the lower tier; the map closes it. When nil a bbolt file is
	// opened at Path, or an in-memory store is used when Path is empty.
	Backend backend.Backend
	Path    string
	Disk    boltdb.Options

	// Residency bounds; 0 => unbounded.
	MaxEntries int
	MaxBytes   int64
	SizeFunc   SizeFunc

	// Shards is rounded up to a power of two. 0 => 4*GOMAXPROCS.
	Shards int
	// ScanBatch is the number of backend keys read per iteration chunk.
	ScanBatch int

	Logger Logger
	Hooks  Hooks
}

// Map is a concurrent ordered map whose entries are split between memory
// and a backend. All methods are safe for concurrent use.
type Map[K, V any] struct {
	keys  keycodec.Codec[K]
	codec codec.Codec[V]
	be    backend.Backend

	shards []*shard[V]
	mask   uint64

	maxEntries int64
	maxBytes   int64
	sizeOf     SizeFunc
	scanBatch  int

	log   Logger
	hooks Hooks

	clock  atomic.Uint64
	seq    atomic.Uint64
	length atomic.Int64
	c      counters

	evictMu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New opens a map over opts.Backend, a bbolt file at opts.Path, or memory.
// Keys already present in the backend are counted but not loaded.
func New[K, V any](ctx context.Context, opts Options[K, V]) (*Map[K, V], error) {
	keys := opts.KeyCodec
	if keys == nil {
		kc, err := keycodec.For[K]()
		if err != nil {
			return nil, fmt.Errorf("tierkv: %w", err)
		}
		keys = kc
	}
	vc := opts.Codec
	if vc == nil {
		c, err := codec.NewCBOR[V](true)
		if err != nil {
			return nil, fmt.Errorf("tierkv: default codec: %w", err)
		}
		vc = c
	}
	if opts.MaxEntries < 0 || opts.MaxBytes < 0 {
		return nil, fmt.Errorf("tierkv: negative residency bound")
	}
	if opts.Shards < 0 || opts.ScanBatch < 0 {
		return nil, fmt.Errorf("tierkv: negative shard count or scan batch")
	}

	be := opts.Backend
	if be == nil {
		if opts.Path != "" {
			st, err := boltdb.Open(opts.Path, opts.Disk)
			if err != nil {
				return nil, backendErr("open", -1, err)
			}
			be = st
		} else {
			be = memory.New()
		}
	}

	n, err := be.Len(ctx)
	if err != nil {
		_ = be.Close(ctx)
		return nil, backendErr("len", -1, err)
	}

	shards := util.NextPow2(coalesce(opts.Shards, defaultShards()))
	m := &Map[K, V]{
		keys:       keys,
		codec:      vc,
		be:         be,
		shards:     make([]*shard[V], shards),
		mask:       uint64(shards - 1),
		maxEntries: int64(opts.MaxEntries),
		maxBytes:   opts.MaxBytes,
		sizeOf:     opts.SizeFunc,
		scanBatch:  coalesce(opts.ScanBatch, defaultScanBatch),
		log:        opts.Logger,
		hooks:      opts.Hooks,
	}
	if m.sizeOf == nil {
		m.sizeOf = defaultSize
	}
	if m.log == nil {
		m.log = NopLogger{}
	}
	if m.hooks == nil {
		m.hooks = NopHooks{}
	}
	for i := range m.shards {
		m.shards[i] = newShard[V](i, &m.c)
	}
	m.length.Store(int64(n))

	m.log.Info("tierkv opened", Fields{
		"path":        be.Path(),
		"durable":     be.Durable(),
		"shards":      shards,
		"len":         n,
		"max_entries": opts.MaxEntries,
		"max_bytes":   opts.MaxBytes,
	})
	return m, nil
}

// Use opens a map, runs fn and closes the map on every exit path, panics
// included. Close errors are joined with fn's error.
func Use[K, V any](ctx context.Context, opts Options[K, V], fn func(m *Map[K, V]) error) (err error) {
	m, err := New(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, m.Close(ctx))
	}()
	return fn(m)
}

// Close flushes every dirty entry and closes the backend. Flush failures of
// individual shards do not stop the others; all of them are returned.
// Later calls return the first result; other methods return ErrClosed.
func (m *Map[K, V]) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		err := m.flushAll(ctx)
		if cerr := m.be.Close(ctx); cerr != nil {
			err = multierr.Append(err, backendErr("close", -1, cerr))
		}
		m.closeErr = err
		f := Fields{"len": m.length.Load()}
		if err != nil {
			f["err"] = err
			m.log.Error("tierkv closed with errors", f)
			return
		}
		m.log.Info("tierkv closed", f)
	})
	return m.closeErr
}

// Path of the backing store; empty for memory backends.
func (m *Map[K, V]) Path() string { return m.be.Path() }

// Stats is a point-in-time view of the map's counters.
type Stats struct {
	Len           int
	Resident      int
	ResidentBytes int64
	Dirty         int
	Shards        int
	Durable       bool
}

func (m *Map[K, V]) Stats() Stats {
	return Stats{
		Len:           int(m.length.Load()),
		Resident:      int(m.c.resident.Load()),
		ResidentBytes: m.c.bytes.Load(),
		Dirty:         int(m.c.dirty.Load()),
		Shards:        len(m.shards),
		Durable:       m.be.Durable(),
	}
}

func (m *Map[K, V]) checkOpen() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (m *Map[K, V]) encodeKey(k K) ([]byte, error) {
	ek, err := m.keys.EncodeKey(k)
	if err != nil {
		return nil, encodingErr("encode key", err)
	}
	return ek, nil
}

func (m *Map[K, V]) shardFor(ek []byte) *shard[V] {
	return m.shards[util.ShardIndex(ek, m.mask)]
}

func (m *Map[K, V]) tick() uint64 { return m.clock.Add(1) }

// withShard runs fn under s's lock. A panic inside fn poisons the shard
// before it propagates; a poisoned shard refuses to run fn.
// mutate is withShard for writes issued by callers. It re-checks closed under
// the lock, so nothing lands in a shard after Close has flushed it.
func (m *Map[K, V]) mutate(s *shard[V], fn func() error) error {
	return m.withShard(s, true, func() error {
		if m.closed.Load() {
			return ErrClosed
		}
		return fn()
	})
}

func (m *Map[K, V]) withShard(s *shard[V], write bool, fn func() error) (err error) {
	if write {
		s.mu.Lock()
	} else {
		s.mu.RLock()
	}
	defer func() {
		r := recover()
		if r != nil && write {
			s.poisoned.Store(true)
		}
		if write {
			s.mu.Unlock()
		} else {
			s.mu.RUnlock()
		}
		if r != nil {
			if write {
				m.hooks.ShardPoisoned(s.id, r)
				m.log.Error("tierkv shard poisoned", Fields{"shard": s.id, "panic": fmt.Sprint(r)})
			}
			panic(r)
		}
	}()
	if s.poisoned.Load() {
		return poisonedErr(s.id)
	}
	return fn()
}
