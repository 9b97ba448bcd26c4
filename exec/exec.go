// Package exec implements the Step Executor (C5): per-shape dispatch of a
// step.Step against a reactive.Value, wiring in cache read-through/write-
// through, classify's parallelism decision, and the four telemetry hooks.
package exec

import (
	"context"
	"fmt"
	"sync"

	"github.com/corestream/pipeline/cache"
	"github.com/corestream/pipeline/classify"
	"github.com/corestream/pipeline/reactive"
	"github.com/corestream/pipeline/step"
	"golang.org/x/sync/semaphore"
)

const defaultStreamBuffer = 64

// Invocation bundles the per-call parameters the Runner supplies after
// consulting classify and the resolved cache configuration for this step.
type Invocation struct {
	Decision    classify.Decision
	CachePolicy cache.Policy
	CacheTarget string
}

// Executor dispatches step invocations for all five shapes. Cache may be
// nil, in which case every invocation bypasses the cache layer entirely -
// useful for OneToOneFuture-only pipelines or tests.
type Executor struct {
	Cache     *cache.Layer
	Telemetry Telemetry
}

// New creates an Executor. A nil telemetry argument is replaced with
// NoopTelemetry.
func New(layer *cache.Layer, telemetry Telemetry) *Executor {
	if telemetry == nil {
		telemetry = NoopTelemetry{}
	}
	return &Executor{Cache: layer, Telemetry: telemetry}
}

// Execute dispatches s according to its Shape. The PipelineContext scope
// for this invocation must already be bound onto ctx (via scope.Bind) by
// the caller; since context.Context derivation never mutates its parent,
// the previous scope is implicitly restored the moment this call returns -
// there is no global state to unwind.
func (e *Executor) Execute(ctx context.Context, s step.Step, in reactive.Value, inv Invocation) (reactive.Value, error) {
	switch s.Shape() {
	case step.OneToOne:
		oo, ok := s.(step.OneToOneStep)
		if !ok {
			return reactive.Value{}, shapeMismatch(s, "OneToOneStep")
		}
		return e.execOneToOne(ctx, oo, in, inv, true)

	case step.OneToOneFuture:
		oo, ok := s.(step.OneToOneStep)
		if !ok {
			return reactive.Value{}, shapeMismatch(s, "OneToOneStep")
		}
		return e.execOneToOne(ctx, oo, in, inv, false)

	case step.OneToMany:
		om, ok := s.(step.OneToManyStep)
		if !ok {
			return reactive.Value{}, shapeMismatch(s, "OneToManyStep")
		}
		return e.execOneToMany(ctx, om, in, inv, false)

	case step.OneToManyBlocking:
		om, ok := s.(step.OneToManyStep)
		if !ok {
			return reactive.Value{}, shapeMismatch(s, "OneToManyStep")
		}
		return e.execOneToMany(ctx, om, in, inv, true)

	case step.ManyToOne:
		mo, ok := s.(step.ManyToOneStep)
		if !ok {
			return reactive.Value{}, shapeMismatch(s, "ManyToOneStep")
		}
		return e.execManyToOne(ctx, mo, in)

	case step.ManyToMany:
		mm, ok := s.(step.ManyToManyStep)
		if !ok {
			return reactive.Value{}, shapeMismatch(s, "ManyToManyStep")
		}
		return e.execManyToMany(ctx, mm, in)

	default:
		return reactive.Value{}, fmt.Errorf("exec: step %q declares unknown shape %v", s.ID(), s.Shape())
	}
}

func shapeMismatch(s step.Step, want string) error {
	return fmt.Errorf("exec: step %q declares shape %s but does not implement %s", s.ID(), s.Shape(), want)
}

// asItemChannel normalizes in into a single <-chan step.Item representation,
// whether it wraps a Single (one synthetic item, then close) or a Stream
// (its channel as-is).
func asItemChannel(ctx context.Context, in reactive.Value) <-chan step.Item {
	if stream, ok := in.AsStream(); ok {
		return stream.Chan()
	}
	single, _ := in.AsSingle()
	ch := make(chan step.Item, 1)
	go func() {
		defer close(ch)
		it, err := single.Await(ctx)
		if err != nil {
			ch <- step.Item{Err: err}
			return
		}
		ch <- it
	}()
	return ch
}

// --- OneToOne / OneToOneFuture ---------------------------------------------

func (e *Executor) execOneToOne(ctx context.Context, s step.OneToOneStep, in reactive.Value, inv Invocation, cacheEnabled bool) (reactive.Value, error) {
	invoke := func(ctx context.Context, val any) (any, error) {
		return e.invokeOneToOne(ctx, s, cacheEnabled, val, inv)
	}

	if single, ok := in.AsSingle(); ok {
		item, err := single.Await(ctx)
		if err != nil {
			e.Telemetry.OnStepCompletedSingle(ctx, s.ID(), err)
			return reactive.Value{}, err
		}
		if item.Err != nil {
			e.Telemetry.OnStepCompletedSingle(ctx, s.ID(), item.Err)
			return reactive.OfSingle(reactive.Resolved(item)), nil
		}
		result, err := invoke(ctx, item.Value)
		e.Telemetry.OnStepCompletedSingle(ctx, s.ID(), err)
		return reactive.OfSingle(reactive.Resolved(step.Item{Value: result, Err: err})), nil
	}

	stream, _ := in.AsStream()
	out := e.relay(ctx, s.ID(), stream.Chan(), inv.Decision, invoke)
	return reactive.OfStream(out), nil
}

func (e *Executor) invokeOneToOne(ctx context.Context, s step.OneToOneStep, cacheEnabled bool, input any, inv Invocation) (any, error) {
	e.Telemetry.OnItemConsumed(ctx, s.ID(), input)

	body := func(ctx context.Context) (any, error) { return s.Apply(ctx, input) }

	var result any
	var err error
	switch {
	case !cacheEnabled || e.Cache == nil:
		result, err = body(ctx)
	default:
		target := inv.CacheTarget
		if tgt, ok := s.(step.CacheKeyTargeter); ok {
			target = tgt.CacheKeyTarget()
		}
		bypassRead := false
		if b, ok := s.(step.CacheReadBypasser); ok {
			bypassRead = b.BypassCacheRead()
		}
		if bypassRead {
			result, err = e.Cache.ExecuteBypassingRead(ctx, input, target, inv.CachePolicy, body)
		} else {
			result, err = e.Cache.Execute(ctx, input, target, inv.CachePolicy, body)
		}
	}

	if err == nil {
		e.Telemetry.OnItemProduced(ctx, s.ID(), result)
	}
	return result, err
}

// relay implements flat-map-per-item plus merge(maxConcurrency)/concatenate,
// used by the stream variants of OneToOne/OneToOneFuture.
func (e *Executor) relay(ctx context.Context, stepID string, inCh <-chan step.Item, decision classify.Decision, invoke func(context.Context, any) (any, error)) *reactive.Stream {
	out, outCh := reactive.NewStream(defaultStreamBuffer)

	go func() {
		defer close(outCh)
		var lastErr error

		if !decision.Parallel {
			for it := range inCh {
				if it.Err != nil {
					lastErr = it.Err
					outCh <- it
					break
				}
				result, err := invoke(ctx, it.Value)
				outCh <- step.Item{Value: result, Err: err}
				if err != nil {
					lastErr = err
					break
				}
			}
			e.Telemetry.OnStepCompletedStream(ctx, stepID, lastErr)
			return
		}

		sem := semaphore.NewWeighted(int64(decision.MaxConcurrency))
		var wg sync.WaitGroup
		var mu sync.Mutex

	loop:
		for it := range inCh {
			if it.Err != nil {
				mu.Lock()
				lastErr = it.Err
				mu.Unlock()
				outCh <- it
				break loop
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				break loop
			}
			wg.Add(1)
			go func(val any) {
				defer wg.Done()
				defer sem.Release(1)
				result, err := invoke(ctx, val)
				mu.Lock()
				if err != nil {
					lastErr = err
				}
				mu.Unlock()
				outCh <- step.Item{Value: result, Err: err}
			}(it.Value)
		}
		wg.Wait()
		e.Telemetry.OnStepCompletedStream(ctx, stepID, lastErr)
	}()

	return out
}

// --- OneToMany / OneToManyBlocking -----------------------------------------

func (e *Executor) execOneToMany(ctx context.Context, s step.OneToManyStep, in reactive.Value, inv Invocation, blocking bool) (reactive.Value, error) {
	inCh := asItemChannel(ctx, in)
	out, outCh := reactive.NewStream(defaultStreamBuffer)

	runOne := func(ctx context.Context, val any) error {
		e.Telemetry.OnItemConsumed(ctx, s.ID(), val)
		emit := func(v any) error {
			select {
			case outCh <- step.Item{Value: v}:
				e.Telemetry.OnItemProduced(ctx, s.ID(), v)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if !blocking {
			return s.ApplyMany(ctx, val, emit)
		}

		// Offload the (potentially blocking) body onto its own goroutine so
		// the dispatch loop's goroutine is never parked on user code;
		// cancelling ctx still unblocks this call via emit's select.
		var err error
		done := make(chan struct{})
		go func() {
			defer close(done)
			err = s.ApplyMany(ctx, val, emit)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		return err
	}

	go func() {
		defer close(outCh)
		var lastErr error

		if !inv.Decision.Parallel {
			for it := range inCh {
				if it.Err != nil {
					lastErr = it.Err
					outCh <- it
					break
				}
				if err := runOne(ctx, it.Value); err != nil {
					lastErr = err
					outCh <- step.Item{Err: err}
					break
				}
			}
			e.Telemetry.OnStepCompletedStream(ctx, s.ID(), lastErr)
			return
		}

		sem := semaphore.NewWeighted(int64(inv.Decision.MaxConcurrency))
		var wg sync.WaitGroup
		var mu sync.Mutex

	loop:
		for it := range inCh {
			if it.Err != nil {
				mu.Lock()
				lastErr = it.Err
				mu.Unlock()
				outCh <- it
				break loop
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				break loop
			}
			wg.Add(1)
			go func(val any) {
				defer wg.Done()
				defer sem.Release(1)
				if err := runOne(ctx, val); err != nil {
					mu.Lock()
					lastErr = err
					mu.Unlock()
				}
			}(it.Value)
		}
		wg.Wait()
		e.Telemetry.OnStepCompletedStream(ctx, s.ID(), lastErr)
	}()

	return reactive.OfStream(out), nil
}

// --- ManyToOne --------------------------------------------------------------

func (e *Executor) execManyToOne(ctx context.Context, s step.ManyToOneStep, in reactive.Value) (reactive.Value, error) {
	inCh := asItemChannel(ctx, in)

	result, err := s.Reduce(ctx, inCh)
	e.Telemetry.OnStepCompletedSingle(ctx, s.ID(), err)
	if err == nil {
		e.Telemetry.OnItemProduced(ctx, s.ID(), result)
	}
	return reactive.OfSingle(reactive.Resolved(step.Item{Value: result, Err: err})), nil
}

// --- ManyToMany --------------------------------------------------------------

func (e *Executor) execManyToMany(ctx context.Context, s step.ManyToManyStep, in reactive.Value) (reactive.Value, error) {
	inCh := asItemChannel(ctx, in)
	out, outCh := reactive.NewStream(defaultStreamBuffer)

	go func() {
		err := s.TransformStream(ctx, inCh, outCh)
		if err != nil {
			outCh <- step.Item{Err: err}
		}
		close(outCh)
		e.Telemetry.OnStepCompletedStream(ctx, s.ID(), err)
	}()

	return reactive.OfStream(out), nil
}
