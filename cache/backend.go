package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Backend.Get when the key has no entry. Callers
// normally treat this as a cache miss rather than propagating it.
var ErrNotFound = errors.New("cache: key not found")

// Backend is the storage SPI the read-through Layer drives. Implementations
// need not know anything about step value types - they only move Envelopes.
type Backend interface {
	// Get returns the Envelope stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (Envelope, error)
	// Exists reports whether key has an entry without paying decode cost.
	Exists(ctx context.Context, key string) (bool, error)
	// Cache stores env under key, replacing any existing entry.
	Cache(ctx context.Context, key string, env Envelope) error
	// Invalidate removes the entry at key, if any.
	Invalidate(ctx context.Context, key string) error
	// InvalidateByPrefix removes every entry whose key starts with prefix -
	// the bulk operation a version-tag rollover uses to drop a stale
	// generation of entries in one call.
	InvalidateByPrefix(ctx context.Context, prefix string) error
}
