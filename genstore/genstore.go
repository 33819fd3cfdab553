// Package genstore keeps a generation counter per backend key.
//
// The read cache tags every cached value with the generation observed before
// the backend read; any write bumps the generation, so a value read before the
// write can never be served after it.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
// Use Local for a single process, or Redis when several processes share one
// read cache.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// BumpMany bumps several keys; used for batch writes.
	BumpMany(ctx context.Context, keys []string) error
	// Cleanup prunes old metadata if applicable (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
