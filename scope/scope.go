// Package scope binds a step.PipelineContext onto a context.Context and
// exposes the observable cache-status side channel (C1 of the runtime).
//
// Binding rides entirely on context.Context values, so it is naturally
// cooperative-task-safe: a ManyToMany step that fans out onto several
// goroutines derives each goroutine's context from the same parent, and each
// derived context still resolves to the same immutable PipelineContext
// without any global or goroutine-local state.
package scope

import (
	"context"
	"sync/atomic"

	"github.com/corestream/pipeline/step"
)

type pipelineContextKey struct{}
type cacheStatusKey struct{}

// Bind returns a new context carrying pc. Steps downstream retrieve it via Get.
func Bind(ctx context.Context, pc step.PipelineContext) context.Context {
	return context.WithValue(ctx, pipelineContextKey{}, pc)
}

// Get retrieves the PipelineContext bound to ctx. ok is false if none was bound.
func Get(ctx context.Context) (step.PipelineContext, bool) {
	pc, ok := ctx.Value(pipelineContextKey{}).(step.PipelineContext)
	return pc, ok
}

// CacheStatusHolder is an observable side-channel recording the most recent
// cache.Status produced by a read-through lookup within this scope. It is
// safe for concurrent use; WithCacheStatusHolder binds one instance per scope
// so concurrent branches of a ManyToMany fan-out don't clobber each other's
// status, and Observe/Set operate on whichever instance the caller's context
// carries.
type CacheStatusHolder struct {
	status atomic.Value // holds string
}

// WithCacheStatusHolder binds a fresh CacheStatusHolder into ctx.
func WithCacheStatusHolder(ctx context.Context) context.Context {
	h := &CacheStatusHolder{}
	h.status.Store("")
	return context.WithValue(ctx, cacheStatusKey{}, h)
}

// SetCacheStatus records status against the CacheStatusHolder bound to ctx,
// if any. It is a no-op if ctx carries none.
func SetCacheStatus(ctx context.Context, status string) {
	if h, ok := ctx.Value(cacheStatusKey{}).(*CacheStatusHolder); ok {
		h.status.Store(status)
	}
}

// ObserveCacheStatus returns the last status recorded against ctx's
// CacheStatusHolder, or "" if none was ever recorded or bound.
func ObserveCacheStatus(ctx context.Context) string {
	if h, ok := ctx.Value(cacheStatusKey{}).(*CacheStatusHolder); ok {
		if s, ok := h.status.Load().(string); ok {
			return s
		}
	}
	return ""
}
