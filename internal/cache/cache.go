// Package cache provides a bounded TTL cache behind a small interface.
// The daemon uses it for per-device telemetry key lists, which change rarely
// but are fetched on every write. Eviction policy (TTL, max entries) comes
// from configuration, never hard-coded call sites.
package cache

import "context"

// Cache is a string key-value cache with TTL-bounded entries.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// Nop is a cache that stores nothing; used when caching is disabled.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool) { return "", false }
func (Nop) Set(context.Context, string, string)        {}
