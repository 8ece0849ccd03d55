// Package cache provides the read-through cache for class file listings.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented cache with TTL. Callers treat every error as a
// miss; the cache is an optimization, never a source of truth.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ListingKey returns the cache key of a class's file listing.
func ListingKey(classID string) string {
	return "listing:" + classID
}
