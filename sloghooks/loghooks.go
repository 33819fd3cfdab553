// Package sloghooks reports tiering events through log/slog.
package sloghooks

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tierkv"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	EvictEvery uint64
	LoadEvery  uint64
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	evictCtr atomic.Uint64
	loadCtr  atomic.Uint64
}

var _ tierkv.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Evicted(shard int, dirty bool) {
	if h.l == nil || !sample(h.opts.EvictEvery, &h.evictCtr) {
		return
	}
	h.l.Debug("tierkv.evicted",
		"shard", shard,
		"dirty", dirty)
}

func (h *Hooks) LoadedThrough(shard int) {
	if h.l == nil || !sample(h.opts.LoadEvery, &h.loadCtr) {
		return
	}
	h.l.Debug("tierkv.loaded_through",
		"shard", shard)
}

func (h *Hooks) Flushed(shard int, n int) {
	if h.l == nil {
		return
	}
	h.l.Debug("tierkv.flushed",
		"shard", shard,
		"entries", n)
}

func (h *Hooks) WriteBackFailed(shard int, n int, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tierkv.write_back_failed",
		"shard", shard,
		"entries", n,
		"err", err)
}

func (h *Hooks) ShardPoisoned(shard int, recovered any) {
	if h.l == nil {
		return
	}
	h.l.Error("tierkv.shard_poisoned",
		"shard", shard,
		"panic", fmt.Sprint(recovered))
}
