package tierkv

import "context"

func (m *Map[K, V]) encodeValue(v V) ([]byte, error) {
	raw, err := m.codec.Encode(v)
	if err != nil {
		return nil, encodingErr("encode value", err)
	}
	return raw, nil
}

func (m *Map[K, V]) decodeValue(raw []byte) (V, error) {
	v, err := m.codec.Decode(raw)
	if err != nil {
		var zero V
		return zero, encodingErr("decode value", err)
	}
	return v, nil
}

func (m *Map[K, V]) newEntry(ek []byte, st state, v V, raw []byte, size int64) *entry[V] {
	return &entry[V]{
		key:   ek,
		state: st,
		value: v,
		raw:   raw,
		tick:  m.tick(),
		seq:   m.seq.Add(1),
		size:  size,
	}
}

// readLocked returns the live entry for ek, loading it from the backend on
// a table miss. loaded reports a load-through. Caller holds s.mu for writing.
func (m *Map[K, V]) readLocked(ctx context.Context, s *shard[V], ek []byte) (e *entry[V], loaded bool, err error) {
	if e = s.lookup(ek); e != nil {
		if !e.live() {
			return nil, false, nil
		}
		s.touch(e, m.tick())
		return e, false, nil
	}
	raw, ok, err := m.be.Get(ctx, ek)
	if err != nil {
		return nil, false, backendErr("get", s.id, err)
	}
	if !ok {
		return nil, false, nil
	}
	v, err := m.decodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	e = m.newEntry(ek, stateResident, v, nil, m.sizeOf(ek, raw))
	e.persisted = true
	s.add(e)
	return e, true, nil
}

// writeLocked makes v (encoded as raw) the dirty resident value of ek.
// old is decoded only when wantOld is set. Caller holds s.mu for writing.
func (m *Map[K, V]) writeLocked(ctx context.Context, s *shard[V], ek []byte, v V, raw []byte, wantOld bool) (old V, existed bool, err error) {
	size := m.sizeOf(ek, raw)
	e := s.lookup(ek)
	if e == nil {
		prev, ok, err := m.be.Get(ctx, ek)
		if err != nil {
			return old, false, backendErr("get", s.id, err)
		}
		if ok && wantOld {
			if old, err = m.decodeValue(prev); err != nil {
				return old, false, err
			}
		}
		e = m.newEntry(ek, stateResident, v, raw, size)
		e.persisted = ok
		s.add(e)
		s.markDirty(e)
		if !ok {
			m.length.Add(1)
		}
		return old, ok, nil
	}

	if e.live() {
		old, existed = e.value, true
	} else {
		e.state = stateResident
		m.length.Add(1)
	}
	e.value = v
	e.raw = raw
	s.resize(e, size)
	s.markDirty(e)
	s.touch(e, m.tick())
	return old, existed, nil
}

// removeLocked deletes ek. Durable backends get a dirty tombstone that hides
// the on-disk copy until it is written back; other backends are updated
// immediately. Caller holds s.mu for writing.
func (m *Map[K, V]) removeLocked(ctx context.Context, s *shard[V], ek []byte, wantOld bool) (old V, existed bool, err error) {
	e := s.lookup(ek)
	if e != nil {
		if !e.live() {
			return old, false, nil
		}
		if !e.persisted {
			old = e.value
			s.remove(e)
			m.length.Add(-1)
			return old, true, nil
		}
		if !m.be.Durable() {
			if err := m.be.Delete(ctx, ek); err != nil {
				return old, false, backendErr("delete", s.id, err)
			}
			old = e.value
			s.remove(e)
			m.length.Add(-1)
			return old, true, nil
		}
		old = e.value
		var zero V
		e.state = stateTombstone
		e.value = zero
		e.raw = nil
		s.resize(e, m.sizeOf(ek, nil))
		s.markDirty(e)
		s.touch(e, m.tick())
		m.length.Add(-1)
		return old, true, nil
	}

	prev, ok, err := m.be.Get(ctx, ek)
	if err != nil {
		return old, false, backendErr("get", s.id, err)
	}
	if !ok {
		return old, false, nil
	}
	if wantOld {
		if old, err = m.decodeValue(prev); err != nil {
			return old, false, err
		}
	}
	if !m.be.Durable() {
		if err := m.be.Delete(ctx, ek); err != nil {
			return old, false, backendErr("delete", s.id, err)
		}
		m.length.Add(-1)
		return old, true, nil
	}
	var zero V
	e = m.newEntry(ek, stateTombstone, zero, nil, m.sizeOf(ek, nil))
	e.persisted = true
	s.add(e)
	s.markDirty(e)
	m.length.Add(-1)
	return old, true, nil
}

// Get returns the value for k, loading it from the backend when it is not
// resident. If the load pushed the table over its bound and eviction failed,
// the value is still returned together with the error.
func (m *Map[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	var v V
	if err := m.checkOpen(); err != nil {
		return v, false, err
	}
	ek, err := m.encodeKey(k)
	if err != nil {
		return v, false, err
	}
	s := m.shardFor(ek)
	var found, loaded bool
	err = m.mutate(s, func() error {
		e, l, err := m.readLocked(ctx, s, ek)
		if err != nil || e == nil {
			return err
		}
		v, found, loaded = e.value, true, l
		return nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	if loaded {
		m.hooks.LoadedThrough(s.id)
		if err := m.evict(ctx); err != nil {
			return v, found, err
		}
	}
	return v, found, nil
}

// Locate reports where k currently lives without loading it.
func (m *Map[K, V]) Locate(ctx context.Context, k K) (Tier, error) {
	if err := m.checkOpen(); err != nil {
		return TierAbsent, err
	}
	ek, err := m.encodeKey(k)
	if err != nil {
		return TierAbsent, err
	}
	s := m.shardFor(ek)
	var t Tier
	err = m.withShard(s, false, func() error {
		var err error
		t, _, err = s.locate(ctx, m.be, ek)
		if err != nil {
			return backendErr("get", s.id, err)
		}
		return nil
	})
	return t, err
}

// Contains reports whether k has a live value. It never loads the value
// into memory.
func (m *Map[K, V]) Contains(ctx context.Context, k K) (bool, error) {
	t, err := m.Locate(ctx, k)
	return t != TierAbsent, err
}

// Insert stores v under k and returns the value it replaced, if any.
// The write stays in memory until evicted, flushed or closed.
func (m *Map[K, V]) Insert(ctx context.Context, k K, v V) (old V, existed bool, err error) {
	old, existed, _, err = m.insert(ctx, k, v, true)
	return old, existed, err
}

// Set stores v under k without decoding the previous value.
func (m *Map[K, V]) Set(ctx context.Context, k K, v V) error {
	_, err := m.store(ctx, k, v)
	return err
}

// store is Set that also reports whether v landed in the table. It can be
// true together with an error from the eviction that followed the write.
func (m *Map[K, V]) store(ctx context.Context, k K, v V) (bool, error) {
	_, _, stored, err := m.insert(ctx, k, v, false)
	return stored, err
}

func (m *Map[K, V]) insert(ctx context.Context, k K, v V, wantOld bool) (old V, existed, stored bool, err error) {
	if err := m.checkOpen(); err != nil {
		return old, false, false, err
	}
	ek, err := m.encodeKey(k)
	if err != nil {
		return old, false, false, err
	}
	raw, err := m.encodeValue(v)
	if err != nil {
		return old, false, false, err
	}
	s := m.shardFor(ek)
	err = m.mutate(s, func() error {
		var err error
		old, existed, err = m.writeLocked(ctx, s, ek, v, raw, wantOld)
		return err
	})
	if err != nil {
		var zero V
		return zero, false, false, err
	}
	return old, existed, true, m.evict(ctx)
}

// Remove deletes k and returns the removed value, if any.
func (m *Map[K, V]) Remove(ctx context.Context, k K) (old V, existed bool, err error) {
	return m.remove(ctx, k, true)
}

// Delete removes k without decoding the previous value.
func (m *Map[K, V]) Delete(ctx context.Context, k K) error {
	_, _, err := m.remove(ctx, k, false)
	return err
}

func (m *Map[K, V]) remove(ctx context.Context, k K, wantOld bool) (old V, existed bool, err error) {
	if err := m.checkOpen(); err != nil {
		return old, false, err
	}
	ek, err := m.encodeKey(k)
	if err != nil {
		return old, false, err
	}
	s := m.shardFor(ek)
	err = m.mutate(s, func() error {
		var err error
		old, existed, err = m.removeLocked(ctx, s, ek, wantOld)
		return err
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return old, existed, m.evict(ctx)
}

// Update atomically replaces the value of k with fn(old, ok). Nothing is
// written when fn returns an error.
func (m *Map[K, V]) Update(ctx context.Context, k K, fn func(old V, ok bool) (V, error)) (V, error) {
	var v V
	if err := m.checkOpen(); err != nil {
		return v, err
	}
	ek, err := m.encodeKey(k)
	if err != nil {
		return v, err
	}
	s := m.shardFor(ek)
	var loaded bool
	err = m.mutate(s, func() error {
		e, l, err := m.readLocked(ctx, s, ek)
		if err != nil {
			return err
		}
		loaded = l
		var cur V
		if e != nil {
			cur = e.value
		}
		next, err := fn(cur, e != nil)
		if err != nil {
			return err
		}
		raw, err := m.encodeValue(next)
		if err != nil {
			return err
		}
		if _, _, err := m.writeLocked(ctx, s, ek, next, raw, false); err != nil {
			return err
		}
		v = next
		return nil
	})
	if loaded {
		m.hooks.LoadedThrough(s.id)
	}
	if err != nil {
		var zero V
		return zero, err
	}
	return v, m.evict(ctx)
}

// GetOrInsert returns the value of k, inserting def first when k is absent.
// loaded reports whether the value already existed.
func (m *Map[K, V]) GetOrInsert(ctx context.Context, k K, def V) (v V, loaded bool, err error) {
	return m.GetOrInsertWith(ctx, k, func() V { return def })
}

// GetOrInsertWith is GetOrInsert with a lazily built default.
func (m *Map[K, V]) GetOrInsertWith(ctx context.Context, k K, mk func() V) (v V, loaded bool, err error) {
	if err := m.checkOpen(); err != nil {
		return v, false, err
	}
	ek, err := m.encodeKey(k)
	if err != nil {
		return v, false, err
	}
	s := m.shardFor(ek)
	var fromDisk bool
	err = m.mutate(s, func() error {
		e, l, err := m.readLocked(ctx, s, ek)
		if err != nil {
			return err
		}
		if e != nil {
			v, loaded, fromDisk = e.value, true, l
			return nil
		}
		nv := mk()
		raw, err := m.encodeValue(nv)
		if err != nil {
			return err
		}
		if _, _, err := m.writeLocked(ctx, s, ek, nv, raw, false); err != nil {
			return err
		}
		v = nv
		return nil
	})
	if fromDisk {
		m.hooks.LoadedThrough(s.id)
	}
	if err != nil {
		var zero V
		return zero, false, err
	}
	return v, loaded, m.evict(ctx)
}

// Len is the number of live keys, resident or on disk.
func (m *Map[K, V]) Len() int { return int(m.length.Load()) }

func (m *Map[K, V]) IsEmpty() bool { return m.Len() == 0 }

// Flush writes every dirty entry to the backend, one atomic batch per shard.
// It is a no-op for non-durable backends.
func (m *Map[K, V]) Flush(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.flushAll(ctx)
}
