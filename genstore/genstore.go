// Package genstore holds the request generation counter of every cache key.
// Counters outlive the cache entries they guard, so a response that was in
// flight when its entry got evicted can never match a recreated entry.
package genstore

import (
	"context"
	"time"
)

// GenStore abstracts where generations live.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, key string) (uint64, error)
	// Cleanup forgets keys not bumped within retention.
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
