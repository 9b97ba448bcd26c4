// Package step defines the shapes a pipeline step can take and the optional
// capability interfaces the executor type-asserts for. A step only needs to
// implement the single method its Shape() calls for; everything else
// (configuration, parallelism hints, cache targeting) is opt-in.
package step

import "context"

// Shape identifies how a step consumes and produces its reactive values.
type Shape int

const (
	// OneToOne transforms a SingleAsync input into a SingleAsync output.
	OneToOne Shape = iota
	// OneToOneFuture is OneToOne without cache integration: the executor
	// never reads or writes the cache layer for it.
	OneToOneFuture
	// OneToMany expands a SingleAsync input into a StreamAsync output.
	OneToMany
	// OneToManyBlocking is OneToMany whose body may block; the executor runs
	// it on a separate goroutine per input item instead of the calling
	// goroutine.
	OneToManyBlocking
	// ManyToOne reduces a StreamAsync input into a SingleAsync output.
	ManyToOne
	// ManyToMany transforms a StreamAsync input into a StreamAsync output.
	ManyToMany
)

// String renders the shape using the canonical spec spelling, matching the
// names used in classification decision tables and canonical-order artifacts.
func (s Shape) String() string {
	switch s {
	case OneToOne:
		return "ONE_TO_ONE"
	case OneToOneFuture:
		return "ONE_TO_ONE_FUTURE"
	case OneToMany:
		return "ONE_TO_MANY"
	case OneToManyBlocking:
		return "ONE_TO_MANY_BLOCKING"
	case ManyToOne:
		return "MANY_TO_ONE"
	case ManyToMany:
		return "MANY_TO_MANY"
	default:
		return "UNKNOWN"
	}
}

// FanOut reports whether the shape produces a stream from a single input,
// the only family classify treats as parallelizable when unhinted under AUTO.
func (s Shape) FanOut() bool {
	return s == OneToMany || s == OneToManyBlocking
}

// Step is the minimal contract every pipeline step satisfies. The actual
// processing method lives on one of the per-shape interfaces below; Shape()
// tells the executor which one to type-assert for.
type Step interface {
	ID() string
	Shape() Shape
}

// OneToOneStep transforms one input value into one output value.
type OneToOneStep interface {
	Step
	Apply(ctx context.Context, in any) (any, error)
}

// OneToManyStep expands one input value into zero or more output values,
// calling emit for each. A non-nil error from emit must abort the step.
type OneToManyStep interface {
	Step
	ApplyMany(ctx context.Context, in any, emit func(any) error) error
}

// ManyToOneStep reduces an input stream into a single output value.
type ManyToOneStep interface {
	Step
	Reduce(ctx context.Context, in <-chan Item) (any, error)
}

// ManyToManyStep transforms an input stream into an output stream.
type ManyToManyStep interface {
	Step
	TransformStream(ctx context.Context, in <-chan Item, out chan<- Item) error
}

// Item is an element of a stream passed to ManyToOne/ManyToMany steps,
// carrying either a value or a terminal error.
type Item struct {
	Value any
	Err   error
}

// Ordering describes how much a step cares about preserving input order in
// its output, as declared by Hinted.Hints (OrderingRelaxed when undeclared).
type Ordering int

const (
	// OrderingRelaxed means output order need not match input order.
	OrderingRelaxed Ordering = iota
	// OrderingStrictAdvised means order should be preserved but the step
	// tolerates reordering if the runtime cannot provide it cheaply.
	OrderingStrictAdvised
	// OrderingStrictRequired means output order must match input order;
	// classify must not parallelize such a step.
	OrderingStrictRequired
)

// ThreadSafety describes whether a step's body may run concurrently with
// itself across multiple in-flight items.
type ThreadSafety int

const (
	// ThreadSafetyUnspecified means the step declared no opinion; classify
	// falls back to the global policy and shape-based defaults.
	ThreadSafetyUnspecified ThreadSafety = iota
	// ThreadSafetySafe means concurrent invocations of the step body are safe.
	ThreadSafetySafe
	// ThreadSafetyUnsafe means the step body must not be invoked concurrently
	// with itself; classify rejects it with a precondition error unless the
	// global policy is SEQUENTIAL.
	ThreadSafetyUnsafe
)

// Hints carries a step's parallelism preferences.
type Hints struct {
	Ordering        Ordering
	ThreadSafety    ThreadSafety
	MaxConcurrency  int // 0 means "no opinion", defer to global config
}

// Hinted is implemented by steps that declare parallelism hints. Steps that
// don't implement it are treated as ThreadSafetyUnspecified/OrderingRelaxed.
type Hinted interface {
	Hints() Hints
}

// Configurable is implemented by steps that need per-run initialization
// before the first item reaches them (e.g. compiling a template, opening a
// connector handle). The Runner calls Configure once per Run, in canonical
// step order, before dispatch begins.
type Configurable interface {
	Configure(ctx context.Context, cfg any) error
}

// CacheReadBypasser is implemented by steps that opt out of the read-through
// cache lookup even when a CachePolicy would otherwise apply one: the body
// always runs, and its result is still written through per the policy.
// OneToOneFuture steps never use the cache, so the method has no effect on
// them.
type CacheReadBypasser interface {
	BypassCacheRead() bool
}

// CacheKeyTargeter is implemented by steps that want cache keys derived from
// something other than the default priority order (PipelineContext binding,
// then raw input). It returns a target tag understood by the registered
// cache.KeyStrategy set (e.g. "INPUT", "PIPELINE_CONTEXT", or a custom tag).
type CacheKeyTargeter interface {
	CacheKeyTarget() string
}

// PipelineContext is the per-run, per-task binding threaded through every
// step invocation via context.Context. It carries the fields a step or the
// cache layer may need without a global or thread-local: a run-scoped
// version tag for cache key namespacing and an optional cache policy
// override. Because it rides on context.Context, it is bound to whichever
// logical task (goroutine) owns that context, not an OS thread - a
// ManyToMany step fanning out onto N goroutines keeps each goroutine's
// context.Context independent while the PipelineContext value is shared and
// immutable.
type PipelineContext struct {
	RunID              string
	PipelineID         string
	VersionTag         string
	CachePolicyOverride string // empty means "no override"; see cache.Policy
}
