// Package cachemanager provides small in-process caches. The artifact store
// uses it to keep decompressed artifact blobs keyed by content digest;
// digests are content-addressed so cached values never go stale.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a keyed cache with per-item TTL.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	ItemCount() int
}
