// Package readcache keeps raw values read from a disk backend in a byte
// provider (Ristretto, BigCache, Redis) so repeated load-throughs of cold keys
// skip the on-disk engine.
//
// Writes never go through the read cache. Every write bumps the key's
// generation and drops the cached frame; every cached frame carries the
// generation observed before its disk read, so a value read before a write is
// never served after it, even when the provider is shared between processes.
//
// Pattern used by the disk backend:
//
//	if raw, ok := rc.Get(ctx, k); ok { return raw }
//	obs := rc.Snapshot(ctx, k)     // before the disk read
//	raw := readFromDisk(k)
//	rc.Fill(ctx, k, obs, raw)      // stored iff gen is still obs
package readcache

import (
	"context"
	"errors"
	"time"

	gen "github.com/unkn0wn-root/tierkv/genstore"
	"github.com/unkn0wn-root/tierkv/internal/wire"
	pr "github.com/unkn0wn-root/tierkv/provider"
)

const (
	defaultTTL          = 10 * time.Minute
	defaultSweep        = time.Hour
	defaultGenRetention = 24 * time.Hour
)

// Self-heal reasons passed to Options.OnSelfHeal.
const (
	ReasonCorrupt     = "corrupt"
	ReasonGenMismatch = "gen_mismatch"
)

type CostFunc func(key string, frame []byte) int64

type Options struct {
	// Required
	Namespace string // isolates several stores sharing one provider
	Provider  pr.Provider

	GenStore   gen.GenStore  // nil => genstore.Local owned by the cache
	TTL        time.Duration // 0 => 10m
	Cost       CostFunc      // default len(frame)
	OnSelfHeal func(storageKey, reason string)
}

type Cache struct {
	ns       string
	provider pr.Provider
	gens     gen.GenStore
	ownsGens bool
	ttl      time.Duration
	cost     CostFunc
	onHeal   func(string, string)
}

func New(opts Options) (*Cache, error) {
	if opts.Provider == nil {
		return nil, errors.New("readcache: provider is required")
	}
	if opts.Namespace == "" {
		return nil, errors.New("readcache: namespace is required")
	}
	c := &Cache{
		ns:       opts.Namespace,
		provider: opts.Provider,
		gens:     opts.GenStore,
		ttl:      opts.TTL,
		cost:     opts.Cost,
		onHeal:   opts.OnSelfHeal,
	}
	if c.gens == nil {
		c.gens = gen.NewLocal(defaultSweep, defaultGenRetention)
		c.ownsGens = true
	}
	if c.ttl == 0 {
		c.ttl = defaultTTL
	}
	if c.cost == nil {
		c.cost = func(_ string, frame []byte) int64 { return int64(len(frame)) }
	}
	if c.onHeal == nil {
		c.onHeal = func(string, string) {}
	}
	return c, nil
}

func (c *Cache) storageKey(key []byte) string {
	return c.ns + ":" + string(key)
}

// Snapshot returns the generation to pass to Fill. On a generation store error
// it returns a value no frame can match, so the later Fill is skipped.
func (c *Cache) Snapshot(ctx context.Context, key []byte) uint64 {
	g, err := c.gens.Snapshot(ctx, c.storageKey(key))
	if err != nil {
		return ^uint64(0)
	}
	return g
}

// Get returns a cached raw value. Corrupt or stale frames are deleted and
// reported as a miss; provider errors are treated as misses too, since the
// disk remains the source of truth.
func (c *Cache) Get(ctx context.Context, key []byte) ([]byte, bool) {
	k := c.storageKey(key)
	frame, ok, err := c.provider.Get(ctx, k)
	if err != nil || !ok {
		return nil, false
	}
	g, payload, err := wire.Decode(frame)
	if err != nil {
		_ = c.provider.Del(ctx, k)
		c.onHeal(k, ReasonCorrupt)
		return nil, false
	}
	cur, err := c.gens.Snapshot(ctx, k)
	if err != nil {
		return nil, false
	}
	if g != cur {
		_ = c.provider.Del(ctx, k)
		c.onHeal(k, ReasonGenMismatch)
		return nil, false
	}
	return append([]byte(nil), payload...), true
}

// Fill stores raw under key if the generation still equals observed.
func (c *Cache) Fill(ctx context.Context, key []byte, observed uint64, raw []byte) {
	k := c.storageKey(key)
	cur, err := c.gens.Snapshot(ctx, k)
	if err != nil || cur != observed {
		return
	}
	frame := wire.Encode(observed, raw)
	_, _ = c.provider.Set(ctx, k, frame, c.cost(k, frame), c.ttl)
}

// Invalidate bumps generations before deleting frames: if the delete fails
// the stale frame is still rejected on read. The bump error is returned since
// without it a stale frame could be served.
func (c *Cache) Invalidate(ctx context.Context, keys ...[]byte) error {
	if len(keys) == 0 {
		return nil
	}
	sks := make([]string, len(keys))
	for i, key := range keys {
		sks[i] = c.storageKey(key)
	}
	var err error
	if len(sks) == 1 {
		_, err = c.gens.Bump(ctx, sks[0])
	} else {
		err = c.gens.BumpMany(ctx, sks)
	}
	for _, k := range sks {
		_ = c.provider.Del(ctx, k)
	}
	return err
}

// Close closes the provider, and the generation store if the cache created it.
func (c *Cache) Close(ctx context.Context) error {
	if c.ownsGens {
		_ = c.gens.Close(ctx)
	}
	return c.provider.Close(ctx)
}
