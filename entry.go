package tierkv

import "bytes"

type state uint8

const (
	stateResident state = iota + 1
	stateTombstone
)

// Tier reports where the live value of a key is held.
type Tier uint8

const (
	TierAbsent Tier = iota
	TierResident
	TierOnDisk
)

func (t Tier) String() string {
	switch t {
	case TierResident:
		return "resident"
	case TierOnDisk:
		return "on-disk"
	default:
		return "absent"
	}
}

// entry is one row of a shard's table. Keys that live only in the backend
// have no entry.
type entry[V any] struct {
	key   []byte
	state state
	value V
	// raw is the encoded value, kept only while dirty.
	raw []byte
	// dirty: memory is newer than the backend.
	dirty bool
	// persisted: the backend holds some version of this key.
	persisted bool

	tick uint64
	seq  uint64
	size int64

	prev, next *entry[V]
}

func (e *entry[V]) live() bool { return e.state == stateResident }

// olderThan orders entries for eviction: smallest tick first, seq breaks ties.
func (e *entry[V]) olderThan(tick, seq uint64) bool {
	return e.tick < tick || (e.tick == tick && e.seq < seq)
}

func entryLess[V any](a, b *entry[V]) bool { return bytes.Compare(a.key, b.key) < 0 }

// lruList is an intrusive doubly linked list, most recent at head.
type lruList[V any] struct {
	head, tail *entry[V]
	n          int
}

func (l *lruList[V]) pushFront(e *entry[V]) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
	l.n++
}

func (l *lruList[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	e.prev, e.next = nil, nil
	l.n--
}

func (l *lruList[V]) moveToFront(e *entry[V]) {
	if l.head == e {
		return
	}
	l.remove(e)
	l.pushFront(e)
}
