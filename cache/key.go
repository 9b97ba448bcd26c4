package cache

import (
	"context"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// KeyStrategy derives a cache key from a step's input. Strategies are tried
// in priority order (highest first); the first to return a non-empty key
// wins. DeriveKey returns ok=false when this strategy has no opinion on the
// given input.
type KeyStrategy interface {
	Name() string
	Priority() int
	// SupportsTarget reports whether this strategy applies to the given
	// CacheKeyTarget tag. A strategy that supports "" applies to steps that
	// declared no target.
	SupportsTarget(target string) bool
	DeriveKey(ctx context.Context, input any) (key string, ok bool)
}

// KeyResolver resolves a cache key for a step invocation by trying
// target-matching strategies (in priority order) first, then falling back to
// every registered strategy (also in priority order) when the step declared
// no target or none of the target-matching strategies could derive a key.
type KeyResolver struct {
	strategies []KeyStrategy
}

// NewKeyResolver builds a resolver from the given strategies, sorted by
// descending priority (ties broken by registration order).
func NewKeyResolver(strategies ...KeyStrategy) *KeyResolver {
	sorted := make([]KeyStrategy, len(strategies))
	copy(sorted, strategies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &KeyResolver{strategies: sorted}
}

// Resolve derives a key for input, given the target tag the step declared
// (empty if it implements no CacheKeyTargeter).
func (r *KeyResolver) Resolve(ctx context.Context, input any, target string) (string, bool) {
	if target != "" {
		for _, s := range r.strategies {
			if !s.SupportsTarget(target) {
				continue
			}
			if key, ok := s.DeriveKey(ctx, input); ok && key != "" {
				return key, true
			}
		}
	}
	for _, s := range r.strategies {
		if key, ok := s.DeriveKey(ctx, input); ok && key != "" {
			return key, true
		}
	}
	return "", false
}

// ApplyVersionTag prefixes key with versionTag, canonicalized through
// semver when it parses as one (so "v1.2.0" and "1.2.0" collide on the same
// cache entries) and used verbatim otherwise (arbitrary deploy labels like
// "canary-7").
func ApplyVersionTag(key, versionTag string) string {
	if versionTag == "" {
		return key
	}
	if v, err := semver.NewVersion(versionTag); err == nil {
		return "v" + v.String() + ":" + key
	}
	return versionTag + ":" + key
}
