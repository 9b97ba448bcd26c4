package cache

import (
	"context"

	"github.com/corestream/pipeline/scope"
)

// Layer ties key derivation, envelope encoding, and a Backend together into
// the policy-gated read-through/write-through behavior a step invocation
// sees. One Layer is normally shared across an entire Run.
type Layer struct {
	backend  Backend
	registry *Registry
	resolver *KeyResolver
}

// NewLayer builds a Layer over backend, using registry to encode/decode
// values and resolver to derive keys from step input.
func NewLayer(backend Backend, registry *Registry, resolver *KeyResolver) *Layer {
	return &Layer{backend: backend, registry: registry, resolver: resolver}
}

// Execute runs the policy-gated read/write cycle around body, the step's
// actual invocation. target is the CacheKeyTarget the step declared (empty
// if none); defaultPolicy is the policy configured for this step absent any
// per-run override. The PipelineContext bound to ctx (via scope.Bind), if
// any, may override defaultPolicy and supplies the version tag namespacing
// the derived key. The resolved cache.Status is recorded against ctx's
// CacheStatusHolder, if ctx carries one, via scope.SetCacheStatus.
func (l *Layer) Execute(ctx context.Context, input any, target string, defaultPolicy Policy, body func(context.Context) (any, error)) (any, error) {
	policy := l.resolvePolicy(ctx, defaultPolicy)

	if policy == BypassCache {
		scope.SetCacheStatus(ctx, string(StatusBypass))
		return body(ctx)
	}

	key, ok := l.resolver.Resolve(ctx, input, target)
	if ok {
		if versionTag := l.versionTag(ctx); versionTag != "" {
			key = ApplyVersionTag(key, versionTag)
		}
	}

	if policy.reads() && ok {
		if env, err := l.backend.Get(ctx, key); err == nil {
			if v, decoded := l.registry.Decode(env); decoded {
				scope.SetCacheStatus(ctx, string(StatusHit))
				return v, nil
			}
		}
	}

	if policy == RequireCache {
		scope.SetCacheStatus(ctx, string(StatusNone))
		return nil, &requireCacheMissError{key: key, hadKey: ok}
	}

	if policy.reads() {
		scope.SetCacheStatus(ctx, string(StatusMiss))
	}

	result, err := body(ctx)
	if err != nil {
		return nil, err
	}

	l.writeThrough(ctx, key, ok, policy, result)
	return result, nil
}

// ExecuteBypassingRead runs body unconditionally - skipping the read gate
// entirely, for steps implementing step.CacheReadBypasser - then applies the
// same write-through behavior Execute would have. Used by exec for steps
// whose BypassCacheRead returns true; no cache lookup is made.
func (l *Layer) ExecuteBypassingRead(ctx context.Context, input any, target string, policy Policy, body func(context.Context) (any, error)) (any, error) {
	scope.SetCacheStatus(ctx, string(StatusBypass))

	result, err := body(ctx)
	if err != nil {
		return nil, err
	}

	key, ok := l.resolver.Resolve(ctx, input, target)
	if ok {
		if versionTag := l.versionTag(ctx); versionTag != "" {
			key = ApplyVersionTag(key, versionTag)
		}
	}
	l.writeThrough(ctx, key, ok, policy, result)
	return result, nil
}

func (l *Layer) writeThrough(ctx context.Context, key string, haveKey bool, policy Policy, result any) {
	if !policy.writes() || !haveKey {
		return
	}
	if policy == SkipIfPresent {
		if exists, _ := l.backend.Exists(ctx, key); exists {
			return
		}
	}
	env, err := l.registry.Encode(result)
	if err != nil {
		return
	}
	if err := l.backend.Cache(ctx, key, env); err != nil {
		return
	}
	if policy == CacheOnly {
		scope.SetCacheStatus(ctx, string(StatusWrite))
	}
}

// Invalidate removes the entry for key.
func (l *Layer) Invalidate(ctx context.Context, key string) error {
	return l.backend.Invalidate(ctx, key)
}

// InvalidateByPrefix removes every entry whose key starts with prefix,
// typically used to drop an entire stale versionTag generation.
func (l *Layer) InvalidateByPrefix(ctx context.Context, prefix string) error {
	return l.backend.InvalidateByPrefix(ctx, prefix)
}

func (l *Layer) resolvePolicy(ctx context.Context, defaultPolicy Policy) Policy {
	if pc, ok := scope.Get(ctx); ok && pc.CachePolicyOverride != "" {
		if override := Policy(pc.CachePolicyOverride); override.Valid() {
			return override
		}
	}
	if defaultPolicy.Valid() {
		return defaultPolicy
	}
	return ReturnCached
}

func (l *Layer) versionTag(ctx context.Context) string {
	if pc, ok := scope.Get(ctx); ok {
		return pc.VersionTag
	}
	return ""
}

// requireCacheMissError is returned when REQUIRE_CACHE finds no cached value.
type requireCacheMissError struct {
	key    string
	hadKey bool
}

func (e *requireCacheMissError) Error() string {
	if !e.hadKey {
		return "cache: REQUIRE_CACHE policy but no cache key could be derived"
	}
	return "cache: REQUIRE_CACHE policy but no value cached under key " + e.key
}
