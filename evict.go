package tierkv

import (
	"context"

	"github.com/unkn0wn-root/tierkv/backend"
)

func (m *Map[K, V]) overBound() bool {
	if m.maxEntries > 0 && m.c.resident.Load() > m.maxEntries {
		return true
	}
	return m.maxBytes > 0 && m.c.bytes.Load() > m.maxBytes
}

type victim struct {
	shard     int
	key       string
	tick, seq uint64
}

// pickVictim returns the least recently used entry across all shard tails.
// Poisoned shards are skipped.
func (m *Map[K, V]) pickVictim() (victim, bool) {
	var best victim
	found := false
	for _, s := range m.shards {
		if s.poisoned.Load() {
			continue
		}
		s.mu.RLock()
		if t := s.lru.tail; t != nil && (!found || t.olderThan(best.tick, best.seq)) {
			best = victim{shard: s.id, key: string(t.key), tick: t.tick, seq: t.seq}
			found = true
		}
		s.mu.RUnlock()
	}
	return best, found
}

// evict drops least recently used entries until the table is within bound.
// Dirty victims are written back first; a failed write-back stops the pass
// and leaves the victim resident and dirty.
func (m *Map[K, V]) evict(ctx context.Context) error {
	if !m.overBound() {
		return nil
	}
	m.evictMu.Lock()
	defer m.evictMu.Unlock()

	for m.overBound() {
		if m.closed.Load() {
			// Close flushes whatever is still resident
			return nil
		}
		v, ok := m.pickVictim()
		if !ok {
			return nil
		}
		if err := m.evictOne(ctx, v); err != nil {
			m.log.Warn("tierkv eviction failed", Fields{"shard": v.shard, "err": err})
			return err
		}
	}
	return nil
}

func (m *Map[K, V]) evictOne(ctx context.Context, v victim) error {
	s := m.shards[v.shard]
	return m.withShard(s, true, func() error {
		e := s.entries[v.key]
		if e == nil || e.tick != v.tick || e.seq != v.seq {
			// touched or replaced since it was picked
			return nil
		}
		wasDirty := e.dirty
		if wasDirty {
			if err := m.be.WriteBatch(ctx, []backend.Op{writeOp(e)}); err != nil {
				m.hooks.WriteBackFailed(s.id, 1, err)
				return backendErr("write back", s.id, err)
			}
		}
		s.remove(e)
		m.hooks.Evicted(s.id, wasDirty)
		return nil
	})
}
