// Package provider defines the byte store behind a tierkv read cache.
//
// A read cache sits between a disk backend and the on-disk engine and keeps
// recently read raw values. Providers must be byte-for-byte transparent: Get
// returns exactly the []byte that was passed to Set. Entries may disappear at
// any time (eviction, TTL); the read cache treats that as a miss.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (ttl <= 0: no expiry). cost may be ignored.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
