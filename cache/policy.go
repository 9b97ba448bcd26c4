// Package cache implements the read/write layer (C3): key derivation,
// policy-gated read-through/write-through against a pluggable Backend, and
// envelope encoding so heterogeneous step output types share one store.
package cache

// Policy controls how a step invocation interacts with the cache.
type Policy string

const (
	// ReturnCached reads the cache first; on a miss, invokes the step body
	// and writes the result. The default policy when none is configured.
	ReturnCached Policy = "RETURN_CACHED"
	// RequireCache reads the cache and fails (without invoking the step
	// body) if the key is missing or cannot be derived.
	RequireCache Policy = "REQUIRE_CACHE"
	// SkipIfPresent invokes the step body unconditionally but skips the
	// write if a value is already cached under the derived key.
	SkipIfPresent Policy = "SKIP_IF_PRESENT"
	// CacheOnly invokes the step body and writes the result, never reading.
	CacheOnly Policy = "CACHE_ONLY"
	// BypassCache invokes the step body and performs no cache interaction.
	BypassCache Policy = "BYPASS_CACHE"
)

// Valid reports whether p is one of the known policy values.
func (p Policy) Valid() bool {
	switch p {
	case ReturnCached, RequireCache, SkipIfPresent, CacheOnly, BypassCache:
		return true
	default:
		return false
	}
}

// reads reports whether this policy performs a cache lookup before invoking
// the step body.
func (p Policy) reads() bool {
	return p == ReturnCached || p == RequireCache
}

// writes reports whether this policy writes the step body's result back.
func (p Policy) writes() bool {
	return p != BypassCache
}
