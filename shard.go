package tierkv

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"github.com/unkn0wn-root/tierkv/backend"
)

// counters are shared by all shards of a map.
type counters struct {
	resident atomic.Int64
	bytes    atomic.Int64
	dirty    atomic.Int64
}

// shard owns a disjoint slice of the key space: its entries, their LRU order
// and an ordered index used by iteration. Every field except poisoned is
// guarded by mu.
type shard[V any] struct {
	mu       sync.RWMutex
	id       int
	entries  map[string]*entry[V]
	dirtySet map[string]*entry[V]
	index    *btree.BTreeG[*entry[V]]
	lru      lruList[V]
	c        *counters

	poisoned atomic.Bool
}

func newShard[V any](id int, c *counters) *shard[V] {
	return &shard[V]{
		id:       id,
		entries:  make(map[string]*entry[V]),
		dirtySet: make(map[string]*entry[V]),
		index:    btree.NewG[*entry[V]](16, entryLess[V]),
		c:        c,
	}
}

func (s *shard[V]) lookup(key []byte) *entry[V] {
	return s.entries[string(key)]
}

// locate reports the tier of key. A miss in the table asks the backend.
func (s *shard[V]) locate(ctx context.Context, be backend.Backend, key []byte) (Tier, *entry[V], error) {
	if e := s.lookup(key); e != nil {
		if e.live() {
			return TierResident, e, nil
		}
		return TierAbsent, e, nil
	}
	_, ok, err := be.Get(ctx, key)
	if err != nil {
		return TierAbsent, nil, err
	}
	if ok {
		return TierOnDisk, nil, nil
	}
	return TierAbsent, nil, nil
}

func (s *shard[V]) add(e *entry[V]) {
	s.entries[string(e.key)] = e
	s.index.ReplaceOrInsert(e)
	s.lru.pushFront(e)
	s.c.resident.Add(1)
	s.c.bytes.Add(e.size)
}

// remove drops e from the table entirely.
func (s *shard[V]) remove(e *entry[V]) {
	k := string(e.key)
	delete(s.entries, k)
	s.index.Delete(e)
	s.lru.remove(e)
	if e.dirty {
		delete(s.dirtySet, k)
		e.dirty = false
		s.c.dirty.Add(-1)
	}
	s.c.resident.Add(-1)
	s.c.bytes.Add(-e.size)
}

func (s *shard[V]) touch(e *entry[V], tick uint64) {
	e.tick = tick
	s.lru.moveToFront(e)
}

func (s *shard[V]) resize(e *entry[V], size int64) {
	s.c.bytes.Add(size - e.size)
	e.size = size
}

func (s *shard[V]) markDirty(e *entry[V]) {
	if e.dirty {
		return
	}
	e.dirty = true
	s.dirtySet[string(e.key)] = e
	s.c.dirty.Add(1)
}

// markClean records that the backend now holds e's current state.
func (s *shard[V]) markClean(e *entry[V]) {
	e.persisted = true
	e.raw = nil
	if !e.dirty {
		return
	}
	e.dirty = false
	delete(s.dirtySet, string(e.key))
	s.c.dirty.Add(-1)
}

// dirtyEntries returns the dirty entries sorted by key.
func (s *shard[V]) dirtyEntries() []*entry[V] {
	out := make([]*entry[V], 0, len(s.dirtySet))
	for _, e := range s.dirtySet {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].key, out[j].key) < 0 })
	return out
}

// ascend visits entries with keys in [lo, hi); nil bounds are open.
func (s *shard[V]) ascend(lo, hi []byte, fn func(e *entry[V])) {
	visit := func(e *entry[V]) bool {
		if hi != nil && bytes.Compare(e.key, hi) >= 0 {
			return false
		}
		fn(e)
		return true
	}
	if lo == nil {
		s.index.Ascend(visit)
		return
	}
	s.index.AscendGreaterOrEqual(&entry[V]{key: lo}, visit)
}

func writeOp[V any](e *entry[V]) backend.Op {
	if e.live() {
		return backend.Put(e.key, e.raw)
	}
	return backend.Delete(e.key)
}
