// Package runner implements the Pipeline Runner (C6): loading the canonical
// step order, initializing Configurable steps, and iterating a step list
// against a ReactiveValue by dispatching each step through classify (C4)
// and the Step Executor (C5) in turn.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/corestream/pipeline/classify"
	"github.com/corestream/pipeline/config"
	"github.com/corestream/pipeline/exec"
	"github.com/corestream/pipeline/pipelineerr"
	"github.com/corestream/pipeline/reactive"
	"github.com/corestream/pipeline/scope"
	"github.com/corestream/pipeline/step"
	"github.com/google/uuid"
)

// CanonicalOrder is the parsed order artifact (§6): the fully-qualified
// step ids an upstream collaborator determined the run-wide order for.
type CanonicalOrder struct {
	Order []string
}

type orderArtifact struct {
	Order []string `json:"order"`
}

// LoadCanonicalOrder reads and parses the order artifact at path. A missing
// file, unparseable document, or empty order list is a configuration error
// (S6): the runner must never silently fall back to an arbitrary order.
func LoadCanonicalOrder(path string) (CanonicalOrder, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is caller-supplied config location
	if err != nil {
		return CanonicalOrder{}, pipelineerr.New("runner", "LoadCanonicalOrder", err).
			WithCode("CONFIGURATION_MISSING_ORDER").WithDetail("path", path)
	}

	var artifact orderArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return CanonicalOrder{}, pipelineerr.New("runner", "LoadCanonicalOrder", err).
			WithCode("CONFIGURATION_INVALID_ORDER").WithDetail("path", path)
	}
	if len(artifact.Order) == 0 {
		return CanonicalOrder{}, pipelineerr.New("runner", "LoadCanonicalOrder", fmt.Errorf("order artifact %s is empty", path)).
			WithCode("CONFIGURATION_MISSING_ORDER").WithDetail("path", path)
	}
	return CanonicalOrder{Order: artifact.Order}, nil
}

// Runner threads a run's resolved config and Step Executor through an
// ordered step list.
type Runner struct {
	Config    *config.PipelineConfig
	Executor  *exec.Executor
	Canonical CanonicalOrder
}

// New creates a Runner. A nil cfg is replaced with config.DefaultPipelineConfig.
func New(cfg *config.PipelineConfig, executor *exec.Executor, canonical CanonicalOrder) *Runner {
	if cfg == nil {
		cfg = config.DefaultPipelineConfig()
	}
	return &Runner{Config: cfg, Executor: executor, Canonical: canonical}
}

// Run iterates steps, in canonical order, against in and returns the
// terminal ReactiveValue.
//
// in must wrap a Single or a Stream; anything else is a precondition error.
// A non-empty steps list with no canonical order configured is a
// configuration error (S6) - no step is invoked. Before dispatch begins,
// each step, in order, is initialized via Configure if it is Configurable
// and has its parallelism decided by classify.Resolve. Then each step, in
// order, is invoked through the Step Executor with the current reactive
// value, whose output replaces it for the next step. Errors are never caught and swallowed: an upfront failure (ordering,
// configure, classify precondition) returns immediately, and a step's own
// failure propagates on the reactive value it produces.
func (r *Runner) Run(ctx context.Context, in reactive.Value, steps []step.Step, stepConfig map[string]any) (reactive.Value, error) {
	ctx = ensureRunScope(ctx)

	if _, ok := in.AsSingle(); !ok {
		if _, ok := in.AsStream(); !ok {
			return reactive.Value{}, precondition("input reactive value must be SingleAsync or StreamAsync")
		}
	}

	if len(steps) > 0 && len(r.Canonical.Order) == 0 {
		return reactive.Value{}, pipelineerr.New("runner", "Run", fmt.Errorf("no canonical order configured")).
			WithCode("CONFIGURATION_MISSING_ORDER")
	}

	ordered := orderSteps(steps, r.Canonical)
	decisions := make([]classify.Decision, len(ordered))
	for i, s := range ordered {
		if c, ok := s.(step.Configurable); ok {
			if err := c.Configure(ctx, stepConfig[s.ID()]); err != nil {
				return reactive.Value{}, pipelineerr.New("runner", "Run", err).
					WithCode("STEP_CONFIGURE_FAILED").WithDetail("step", s.ID())
			}
		}

		decision, err := classify.Resolve(s, r.Config.Parallelism, r.Config.MaxConcurrency)
		if err != nil {
			return reactive.Value{}, err
		}
		decisions[i] = decision
	}

	current := in
	for i, s := range ordered {
		inv := exec.Invocation{Decision: decisions[i], CachePolicy: r.Config.CachePolicy}
		if tgt, ok := s.(step.CacheKeyTargeter); ok {
			inv.CacheTarget = tgt.CacheKeyTarget()
		}

		next, err := r.Executor.Execute(ctx, s, current, inv)
		if err != nil {
			return reactive.Value{}, err
		}
		current = next
	}

	return current, nil
}

// orderSteps places steps whose id appears in canonical.Order first, in
// that order, then appends any remaining uncategorized steps in their
// original relative order.
func orderSteps(steps []step.Step, canonical CanonicalOrder) []step.Step {
	byID := make(map[string]step.Step, len(steps))
	for _, s := range steps {
		byID[s.ID()] = s
	}

	placed := make(map[string]bool, len(steps))
	ordered := make([]step.Step, 0, len(steps))
	for _, id := range canonical.Order {
		if s, ok := byID[id]; ok && !placed[id] {
			ordered = append(ordered, s)
			placed[id] = true
		}
	}
	for _, s := range steps {
		if !placed[s.ID()] {
			ordered = append(ordered, s)
			placed[s.ID()] = true
		}
	}
	return ordered
}

func precondition(msg string) error {
	return pipelineerr.New("runner", "Run", fmt.Errorf("%s", msg)).WithCode("PRECONDITION_FAILED")
}

// ensureRunScope binds a fresh PipelineContext carrying a generated RunID
// onto ctx if the caller didn't already bind one - every invocation needs a
// stable RunID for telemetry span disambiguation, and most callers have no
// natural run identifier of their own to supply.
func ensureRunScope(ctx context.Context) context.Context {
	pc, ok := scope.Get(ctx)
	if ok && pc.RunID != "" {
		return ctx
	}
	if !ok {
		pc = step.PipelineContext{}
	}
	pc.RunID = uuid.NewString()
	return scope.Bind(ctx, pc)
}
