package readcache

import (
	"context"
	"sync"
	"testing"
	"time"

	gen "github.com/unkn0wn-root/tierkv/genstore"
	pr "github.com/unkn0wn-root/tierkv/provider"
	"github.com/unkn0wn-root/tierkv/provider/ristretto"
)

type memProvider struct {
	mu sync.Mutex
	m  map[string][]byte
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = value
	return true, nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func newTestCache(t *testing.T, p pr.Provider, heals *[]string) *Cache {
	t.Helper()
	c, err := New(Options{
		Namespace: "test",
		Provider:  p,
		GenStore:  gen.NewLocal(0, 0),
		OnSelfHeal: func(_ string, reason string) {
			if heals != nil {
				*heals = append(*heals, reason)
			}
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestFillThenGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMemProvider(), nil)
	defer c.Close(ctx)

	k := []byte("acct:1")
	if _, ok := c.Get(ctx, k); ok {
		t.Fatalf("expected miss on empty cache")
	}
	obs := c.Snapshot(ctx, k)
	c.Fill(ctx, k, obs, []byte("balance=10"))
	got, ok := c.Get(ctx, k)
	if !ok || string(got) != "balance=10" {
		t.Fatalf("Get after Fill: ok=%v got=%q", ok, got)
	}
}

func TestInvalidateRejectsStaleFill(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, newMemProvider(), nil)
	defer c.Close(ctx)

	k := []byte("acct:2")
	obs := c.Snapshot(ctx, k) // reader snapshots, then a writer lands
	if err := c.Invalidate(ctx, k); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	c.Fill(ctx, k, obs, []byte("old"))
	if _, ok := c.Get(ctx, k); ok {
		t.Fatalf("fill with a pre-write generation must be skipped")
	}
}

func TestStaleFrameSelfHeals(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	var heals []string
	c := newTestCache(t, p, &heals)
	defer c.Close(ctx)

	k := []byte("acct:3")
	c.Fill(ctx, k, c.Snapshot(ctx, k), []byte("v"))
	// bump the generation without deleting the frame, as if Del had failed
	if _, err := c.gens.Bump(ctx, c.storageKey(k)); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, k); ok {
		t.Fatalf("stale frame served")
	}
	if _, ok, _ := p.Get(ctx, c.storageKey(k)); ok {
		t.Fatalf("stale frame was not deleted")
	}
	if len(heals) != 1 || heals[0] != ReasonGenMismatch {
		t.Fatalf("heals=%v", heals)
	}
}

func TestCorruptFrameSelfHeals(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	var heals []string
	c := newTestCache(t, p, &heals)
	defer c.Close(ctx)

	k := []byte("acct:4")
	_, _ = p.Set(ctx, c.storageKey(k), []byte("garbage"), 1, 0)
	if _, ok := c.Get(ctx, k); ok {
		t.Fatalf("corrupt frame served")
	}
	if len(heals) != 1 || heals[0] != ReasonCorrupt {
		t.Fatalf("heals=%v", heals)
	}
}

func TestRistrettoProvider(t *testing.T) {
	ctx := context.Background()
	p, err := ristretto.New(ristretto.Config{NumCounters: 1000, MaxCost: 1 << 20})
	if err != nil {
		t.Fatalf("ristretto.New: %v", err)
	}
	c := newTestCache(t, p, nil)
	defer c.Close(ctx)

	k := []byte("block:7")
	c.Fill(ctx, k, c.Snapshot(ctx, k), []byte("header"))
	p.Wait()
	got, ok := c.Get(ctx, k)
	if !ok || string(got) != "header" {
		// ristretto may reject admission; a miss is legal but a wrong value is not
		if ok {
			t.Fatalf("wrong value %q", got)
		}
		t.Skip("ristretto declined admission")
	}
	if err := c.Invalidate(ctx, k); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(ctx, k); ok {
		t.Fatalf("value served after Invalidate")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Options{Namespace: "x"}); err == nil {
		t.Fatalf("expected error without provider")
	}
	if _, err := New(Options{Provider: newMemProvider()}); err == nil {
		t.Fatalf("expected error without namespace")
	}
}
