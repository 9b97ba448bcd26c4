// Package classify implements the Step Classifier & Parallelism Gate (C4):
// given a step's declared hints and the run's global parallelism policy, it
// decides whether that step's invocations may run concurrently and, if so,
// with what concurrency ceiling.
package classify

import (
	"fmt"

	"github.com/corestream/pipeline/logger"
	"github.com/corestream/pipeline/pipelineerr"
	"github.com/corestream/pipeline/step"
)

// GlobalPolicy is the run-wide parallelism policy a step's classification is
// weighed against.
type GlobalPolicy int

const (
	// Sequential forces every step to run sequentially regardless of hints.
	Sequential GlobalPolicy = iota
	// Auto lets each step's own hints decide, defaulting conservatively.
	Auto
	// Parallel requests parallel execution wherever a step's hints permit it.
	Parallel
)

// DefaultMaxConcurrency is the default concurrency ceiling. Resolve clamps a
// non-positive maxConcurrency to 1 rather than substituting this value.
const DefaultMaxConcurrency = 128

// autoParallelShapes is the shape set classified as parallel under AUTO when
// a step declares no Hinted capability at all.
var autoParallelShapes = map[step.Shape]bool{
	step.OneToMany:         true,
	step.OneToManyBlocking: true,
}

// Decision is the outcome of classifying one step.
type Decision struct {
	Parallel       bool
	MaxConcurrency int
	Warning        string // non-empty for the STRICT_ADVISED ordering advisories; the clamp warning is only logged
}

// Resolve implements the decision table: declared thread-safety and ordering
// hints (or their absence), crossed with globalPolicy and the step's shape,
// yield a Decision or a precondition error.
//
// maxConcurrency is the configured ceiling (e.g. from pipeline.max-concurrency);
// values less than 1 are clamped to 1 with a warning.
func Resolve(s step.Step, globalPolicy GlobalPolicy, maxConcurrency int) (Decision, error) {
	if maxConcurrency < 1 {
		logger.Warn("classify: max concurrency clamped to 1", "step", s.ID(), "configured", maxConcurrency)
		maxConcurrency = 1
	}

	hints, hinted := hintsOf(s)

	if hints.ThreadSafety == step.ThreadSafetyUnsafe && globalPolicy != Sequential {
		return Decision{}, precondition(s.ID(), "step is declared THREAD-UNSAFE but global policy is not SEQUENTIAL")
	}
	if hints.Ordering == step.OrderingStrictRequired && globalPolicy != Sequential {
		return Decision{}, precondition(s.ID(), "step requires STRICT ordering but global policy is not SEQUENTIAL")
	}

	if globalPolicy == Sequential {
		return Decision{Parallel: false, MaxConcurrency: 1}, nil
	}

	switch {
	case hinted && hints.ThreadSafety == step.ThreadSafetySafe && hints.Ordering == step.OrderingStrictAdvised:
		if globalPolicy == Auto {
			logger.Warn("classify: sequential under AUTO despite SAFE threadSafety", "step", s.ID(), "ordering", "STRICT_ADVISED")
			return Decision{Parallel: false, MaxConcurrency: 1, Warning: "sequential despite SAFE threadSafety under AUTO"}, nil
		}
		logger.Warn("classify: parallel overrides advised strict ordering", "step", s.ID())
		return Decision{Parallel: true, MaxConcurrency: concurrencyOrDefault(hints, maxConcurrency), Warning: "parallel overrides STRICT_ADVISED ordering"}, nil

	case hinted && hints.ThreadSafety == step.ThreadSafetySafe && hints.Ordering == step.OrderingRelaxed:
		return Decision{Parallel: true, MaxConcurrency: concurrencyOrDefault(hints, maxConcurrency)}, nil

	case !hinted || hints.ThreadSafety == step.ThreadSafetyUnspecified:
		if globalPolicy == Parallel {
			return Decision{Parallel: true, MaxConcurrency: concurrencyOrDefault(hints, maxConcurrency)}, nil
		}
		return Decision{Parallel: autoParallelShapes[s.Shape()], MaxConcurrency: concurrencyOrDefault(hints, maxConcurrency)}, nil

	default:
		return Decision{Parallel: true, MaxConcurrency: concurrencyOrDefault(hints, maxConcurrency)}, nil
	}
}

func hintsOf(s step.Step) (step.Hints, bool) {
	if h, ok := s.(step.Hinted); ok {
		return h.Hints(), true
	}
	return step.Hints{}, false
}

func concurrencyOrDefault(hints step.Hints, configured int) int {
	if hints.MaxConcurrency > 0 {
		return hints.MaxConcurrency
	}
	if configured > 0 {
		return configured
	}
	return DefaultMaxConcurrency
}

func precondition(stepID, msg string) error {
	return pipelineerr.New("classify", "resolve", fmt.Errorf("%s", msg)).
		WithCode("PRECONDITION_FAILED").
		WithDetail("step", stepID)
}
