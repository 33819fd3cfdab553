package tierkv

import (
	"bytes"
	"context"
	"sort"

	"github.com/unkn0wn-root/tierkv/backend"
)

// Range bounds an iteration to [Start, End). nil bounds are open.
type Range[K any] struct {
	Start   *K
	End     *K
	Reverse bool
}

// All spans every key in ascending order.
func All[K any]() Range[K] { return Range[K]{} }

// Between spans [start, end).
func Between[K any](start, end K) Range[K] { return Range[K]{Start: &start, End: &end} }

// From spans every key >= start.
func From[K any](start K) Range[K] { return Range[K]{Start: &start} }

// Iterator walks the merged view of the table and the backend in key order.
//
// Iteration is weakly consistent: it proceeds in chunks, and each chunk is an
// atomic snapshot of its key window. Every key present for the whole
// iteration is yielded exactly once with a value at least as new as the one
// it had when the iterator was created. Writes landing in windows not yet
// visited are observed; those in visited windows are not.
//
//	it := m.Iterate(ctx, tierkv.All[string]())
//	defer it.Close()
//	for it.Next() {
//	    use(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator[K, V any] struct {
	m       *Map[K, V]
	ctx     context.Context
	lo, hi  []byte
	reverse bool
	batch   int

	buf  []pair[K, V]
	pos  int
	cur  pair[K, V]
	done bool
	err  error
}

type pair[K, V any] struct {
	ek  []byte
	key K
	val V
}

// Iterate returns an iterator over r. Errors surface through Err.
func (m *Map[K, V]) Iterate(ctx context.Context, r Range[K]) *Iterator[K, V] {
	it := &Iterator[K, V]{m: m, ctx: ctx, reverse: r.Reverse, batch: m.scanBatch}
	if err := m.checkOpen(); err != nil {
		it.err = err
		return it
	}
	if r.Start != nil {
		if it.lo, it.err = m.encodeKey(*r.Start); it.err != nil {
			return it
		}
	}
	if r.End != nil {
		if it.hi, it.err = m.encodeKey(*r.End); it.err != nil {
			return it
		}
	}
	if it.lo != nil && it.hi != nil && bytes.Compare(it.lo, it.hi) >= 0 {
		it.done = true
	}
	return it
}

// Next advances to the next pair. It returns false at the end or on error.
func (it *Iterator[K, V]) Next() bool {
	for {
		if it.err != nil {
			return false
		}
		if it.pos < len(it.buf) {
			it.cur = it.buf[it.pos]
			it.pos++
			return true
		}
		if it.done {
			return false
		}
		if err := it.m.checkOpen(); err != nil {
			it.err = err
			return false
		}
		it.err = it.fill()
	}
}

func (it *Iterator[K, V]) Key() K   { return it.cur.key }
func (it *Iterator[K, V]) Value() V { return it.cur.val }
func (it *Iterator[K, V]) Err() error {
	return it.err
}

// Close releases buffered pairs. Iterators hold no locks between calls to
// Next, so Close is optional.
func (it *Iterator[K, V]) Close() {
	it.buf = nil
	it.done = true
}

type memRow[V any] struct {
	key  []byte
	val  V
	live bool
}

type diskRow struct {
	key []byte
	raw []byte
}

// chunk is one window of the merged view, copied out under the shard locks.
type chunk[V any] struct {
	disk      []diskRow
	mem       map[string]memRow[V]
	lo, hi    []byte
	exhausted bool
}

// readChunk reads the backend chunk and the matching table window under every
// shard's read lock, so no write-back can move a key between tiers while the
// chunk is assembled.
func (it *Iterator[K, V]) readChunk() (chunk[V], error) {
	m := it.m
	for _, s := range m.shards {
		s.mu.RLock()
	}
	defer func() {
		for i := len(m.shards) - 1; i >= 0; i-- {
			m.shards[i].mu.RUnlock()
		}
	}()
	for _, s := range m.shards {
		if s.poisoned.Load() {
			return chunk[V]{}, poisonedErr(s.id)
		}
	}

	var c chunk[V]
	err := m.be.Scan(it.ctx, backend.Range{Start: it.lo, End: it.hi, Reverse: it.reverse}, func(k, v []byte) bool {
		c.disk = append(c.disk, diskRow{
			key: append([]byte(nil), k...),
			raw: append([]byte(nil), v...),
		})
		return len(c.disk) < it.batch
	})
	if err != nil {
		return chunk[V]{}, backendErr("scan", -1, err)
	}

	// The window this chunk covers: up to and including the last disk key,
	// or the rest of the range when the backend ran out.
	c.lo, c.hi = it.lo, it.hi
	c.exhausted = len(c.disk) == 0 || len(c.disk) < it.batch
	if !c.exhausted {
		last := c.disk[len(c.disk)-1].key
		if it.reverse {
			c.lo = last
		} else {
			c.hi = successor(last)
		}
	}

	c.mem = make(map[string]memRow[V])
	for _, s := range m.shards {
		s.ascend(c.lo, c.hi, func(e *entry[V]) {
			c.mem[string(e.key)] = memRow[V]{key: e.key, val: e.value, live: e.live()}
		})
	}
	return c, nil
}

// fill decodes and orders the next chunk. Table rows shadow backend rows;
// tombstones hide keys.
func (it *Iterator[K, V]) fill() error {
	m := it.m
	c, err := it.readChunk()
	if err != nil {
		return err
	}
	disk, mem := c.disk, c.mem

	out := make([]pair[K, V], 0, len(disk)+len(mem))
	for _, d := range disk {
		if _, shadowed := mem[string(d.key)]; shadowed {
			continue
		}
		k, err := m.keys.DecodeKey(d.key)
		if err != nil {
			return encodingErr("decode key", err)
		}
		v, err := m.decodeValue(d.raw)
		if err != nil {
			return err
		}
		out = append(out, pair[K, V]{ek: d.key, key: k, val: v})
	}
	for _, r := range mem {
		if !r.live {
			continue
		}
		k, err := m.keys.DecodeKey(r.key)
		if err != nil {
			return encodingErr("decode key", err)
		}
		out = append(out, pair[K, V]{ek: r.key, key: k, val: r.val})
	}
	sort.Slice(out, func(i, j int) bool {
		d := bytes.Compare(out[i].ek, out[j].ek)
		if it.reverse {
			return d > 0
		}
		return d < 0
	})

	it.buf, it.pos = out, 0
	if c.exhausted {
		it.done = true
	} else if it.reverse {
		it.hi = c.lo
	} else {
		it.lo = c.hi
	}
	return nil
}

// successor is the smallest key strictly greater than k.
func successor(k []byte) []byte {
	s := make([]byte, len(k)+1)
	copy(s, k)
	return s
}

// FirstAtOrAfter returns the smallest live key >= k with its value.
func (m *Map[K, V]) FirstAtOrAfter(ctx context.Context, k K) (K, V, bool, error) {
	it := m.Iterate(ctx, Range[K]{Start: &k})
	it.batch = 1
	return first(it)
}

// LastBefore returns the largest live key < k with its value.
func (m *Map[K, V]) LastBefore(ctx context.Context, k K) (K, V, bool, error) {
	it := m.Iterate(ctx, Range[K]{End: &k, Reverse: true})
	it.batch = 1
	return first(it)
}

// Last returns the largest live key.
func (m *Map[K, V]) Last(ctx context.Context) (K, V, bool, error) {
	it := m.Iterate(ctx, Range[K]{Reverse: true})
	it.batch = 1
	return first(it)
}

func first[K, V any](it *Iterator[K, V]) (K, V, bool, error) {
	defer it.Close()
	if it.Next() {
		return it.Key(), it.Value(), true, nil
	}
	var k K
	var v V
	return k, v, false, it.Err()
}
