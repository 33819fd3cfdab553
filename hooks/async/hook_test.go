package asynchook

import (
	"sync/atomic"
	"testing"

	"github.com/unkn0wn-root/tierkv"
)

type counting struct {
	tierkv.NopHooks
	evicted atomic.Int64
	block   chan struct{}
}

func (c *counting) Evicted(int, bool) {
	if c.block != nil {
		<-c.block
	}
	c.evicted.Add(1)
}

func TestDeliversAndDrainsOnClose(t *testing.T) {
	inner := &counting{}
	h := New(inner, 2, 64)
	for i := 0; i < 50; i++ {
		h.Evicted(i, false)
	}
	h.Close()
	if inner.evicted.Load() != 50 {
		t.Fatalf("delivered %d", inner.evicted.Load())
	}
	h.Evicted(0, false)
	if h.Dropped() != 1 {
		t.Fatalf("dropped=%d", h.Dropped())
	}
}

func TestDropsWhenFull(t *testing.T) {
	inner := &counting{block: make(chan struct{})}
	h := New(inner, 1, 1)
	// the worker may hold one event; one fits in the queue; the rest drop
	for i := 0; i < 10; i++ {
		h.Evicted(0, false)
	}
	if d := h.Dropped(); d < 8 {
		t.Fatalf("dropped=%d", d)
	}
	close(inner.block)
	h.Close()
}
