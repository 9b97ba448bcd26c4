package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/corestream/pipeline/scope"
	"github.com/corestream/pipeline/step"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inputStrategy struct{}

func (inputStrategy) Name() string                       { return "input" }
func (inputStrategy) Priority() int                       { return 1 }
func (inputStrategy) SupportsTarget(target string) bool    { return target == "" }
func (inputStrategy) DeriveKey(_ context.Context, in any) (string, bool) {
	return fmt.Sprintf("%v", in), true
}

func newTestLayer() *Layer {
	backend := NewMemoryBackend()
	registry := NewRegistry()
	registry.Register(NewJSONCodec[string]("string"))
	resolver := NewKeyResolver(inputStrategy{})
	return NewLayer(backend, registry, resolver)
}

func TestLayer_ReturnCached_MissThenHit(t *testing.T) {
	l := newTestLayer()
	ctx := scope.WithCacheStatusHolder(context.Background())
	calls := 0
	body := func(context.Context) (any, error) {
		calls++
		return "computed", nil
	}

	v, err := l.Execute(ctx, "input-1", "", ReturnCached, body)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
	assert.Equal(t, string(StatusMiss), scope.ObserveCacheStatus(ctx))
	assert.Equal(t, 1, calls)

	v, err = l.Execute(ctx, "input-1", "", ReturnCached, body)
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
	assert.Equal(t, string(StatusHit), scope.ObserveCacheStatus(ctx))
	assert.Equal(t, 1, calls, "body must not run again on a cache hit")
}

func TestLayer_BypassCache(t *testing.T) {
	l := newTestLayer()
	ctx := scope.WithCacheStatusHolder(context.Background())
	calls := 0
	body := func(context.Context) (any, error) {
		calls++
		return "computed", nil
	}

	_, err := l.Execute(ctx, "input-1", "", BypassCache, body)
	require.NoError(t, err)
	_, err = l.Execute(ctx, "input-1", "", BypassCache, body)
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "bypass must always invoke the body")
	assert.Equal(t, string(StatusBypass), scope.ObserveCacheStatus(ctx))
}

func TestLayer_RequireCache_MissReturnsError(t *testing.T) {
	l := newTestLayer()
	ctx := context.Background()
	calls := 0
	body := func(context.Context) (any, error) {
		calls++
		return "computed", nil
	}

	_, err := l.Execute(ctx, "input-1", "", RequireCache, body)
	assert.Error(t, err)
	assert.Equal(t, 0, calls, "body must not run when REQUIRE_CACHE misses")
}

func TestLayer_RequireCache_Hit(t *testing.T) {
	l := newTestLayer()
	ctx := context.Background()

	_, err := l.Execute(ctx, "input-1", "", ReturnCached, func(context.Context) (any, error) {
		return "computed", nil
	})
	require.NoError(t, err)

	v, err := l.Execute(ctx, "input-1", "", RequireCache, func(context.Context) (any, error) {
		t.Fatal("body should not be invoked")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
}

func TestLayer_SkipIfPresent(t *testing.T) {
	l := newTestLayer()
	ctx := context.Background()

	_, err := l.Execute(ctx, "input-1", "", CacheOnly, func(context.Context) (any, error) {
		return "first", nil
	})
	require.NoError(t, err)

	v, err := l.Execute(ctx, "input-1", "", SkipIfPresent, func(context.Context) (any, error) {
		return "second", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "second", v, "SKIP_IF_PRESENT still invokes the body")

	cached, err := l.Execute(ctx, "input-1", "", RequireCache, func(context.Context) (any, error) {
		t.Fatal("unreachable")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "first", cached, "SKIP_IF_PRESENT must not overwrite an existing entry")
}

func TestLayer_PipelineContextOverridesPolicy(t *testing.T) {
	l := newTestLayer()
	pc := step.PipelineContext{CachePolicyOverride: string(BypassCache)}
	ctx := scope.Bind(context.Background(), pc)
	ctx = scope.WithCacheStatusHolder(ctx)

	calls := 0
	_, err := l.Execute(ctx, "input-1", "", ReturnCached, func(context.Context) (any, error) {
		calls++
		return "computed", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, string(StatusBypass), scope.ObserveCacheStatus(ctx))
}

func TestLayer_VersionTagNamespacesKeys(t *testing.T) {
	l := newTestLayer()
	ctxV1 := scope.Bind(context.Background(), step.PipelineContext{VersionTag: "1.0.0"})
	ctxV2 := scope.Bind(context.Background(), step.PipelineContext{VersionTag: "2.0.0"})

	_, err := l.Execute(ctxV1, "input-1", "", ReturnCached, func(context.Context) (any, error) {
		return "v1-result", nil
	})
	require.NoError(t, err)

	v, err := l.Execute(ctxV2, "input-1", "", ReturnCached, func(context.Context) (any, error) {
		return "v2-result", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "v2-result", v, "different version tags must not share cache entries")
}
