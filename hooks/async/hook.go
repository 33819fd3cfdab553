// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{EvictEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	m, _ := tierkv.New(ctx, tierkv.Options[string, Account]{
//	    Path:  "state.db",
//	    Hooks: hooks,
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/tierkv"
)

// Hooks moves event delivery off the map's lock paths. Events are dropped,
// not queued without bound, when the workers fall behind.
type Hooks struct {
	inner   tierkv.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ tierkv.Hooks = (*Hooks)(nil)

func New(inner tierkv.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Later events are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events lost to a full queue or a closed hook.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Evicted(s int, dirty bool) { h.try(func() { h.inner.Evicted(s, dirty) }) }
func (h *Hooks) LoadedThrough(s int)       { h.try(func() { h.inner.LoadedThrough(s) }) }
func (h *Hooks) Flushed(s, n int)          { h.try(func() { h.inner.Flushed(s, n) }) }
func (h *Hooks) WriteBackFailed(s, n int, err error) {
	h.try(func() { h.inner.WriteBackFailed(s, n, err) })
}
func (h *Hooks) ShardPoisoned(s int, r any) { h.try(func() { h.inner.ShardPoisoned(s, r) }) }
