// Package config loads the environment/config properties the core consumes:
// the global parallelism policy, the concurrency ceiling, the default cache
// policy, and the configured cache key-generator bean name.
package config

import (
	"fmt"
	"strconv"

	"github.com/corestream/pipeline/cache"
	"github.com/corestream/pipeline/classify"
	"github.com/corestream/pipeline/logger"
	"github.com/corestream/pipeline/pipelineerr"
)

const (
	keyParallelism    = "pipeline.parallelism"
	keyMaxConcurrency = "pipeline.max-concurrency"
	keyCachePolicy    = "pipeline.cache.policy"
	keyCacheKeyGen    = "pipeline.cache.key-generator"
	keyTransport      = "pipeline.transport"
)

// PipelineConfig is the core's resolved view of its environment/config
// properties. All fields have sensible defaults and are optional.
type PipelineConfig struct {
	// Parallelism is the run-wide policy classify.Resolve weighs every
	// step's hints against. Default: AUTO.
	Parallelism classify.GlobalPolicy

	// MaxConcurrency is the concurrency ceiling classify falls back to
	// for parallel steps that declare no Hints.MaxConcurrency of their
	// own. Default: 128.
	MaxConcurrency int

	// CachePolicy is the default cache.Policy applied to a step invocation
	// when neither a PipelineContext override nor a step-specific policy
	// is present. Default: RETURN_CACHED.
	CachePolicy cache.Policy

	// CacheKeyGenerator is the fully-qualified name of the key-generator
	// bean the cache layer's KeyResolver should prioritize, if declared.
	// Core ignores pipeline.transport; consumed by collaborators outside
	// this module.
	CacheKeyGenerator string
}

// DefaultPipelineConfig returns a PipelineConfig with the built-in defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Parallelism:    classify.Auto,
		MaxConcurrency: classify.DefaultMaxConcurrency,
		CachePolicy:    cache.ReturnCached,
	}
}

// Load resolves a PipelineConfig from a flat environment/property map,
// applying defaults for any key that is absent. Recognized keys are
// pipeline.parallelism, pipeline.max-concurrency, pipeline.cache.policy,
// and pipeline.cache.key-generator; pipeline.transport is read-and-ignored
// by the core, matching spec's "consumed by collaborators" note.
func Load(env map[string]string) (*PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	if v, ok := env[keyParallelism]; ok && v != "" {
		policy, err := parseParallelism(v)
		if err != nil {
			return nil, err
		}
		cfg.Parallelism = policy
	}

	if v, ok := env[keyMaxConcurrency]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, pipelineerr.New("config", "Load", err).
				WithCode("CONFIGURATION_INVALID").WithDetail("key", keyMaxConcurrency).WithDetail("value", v)
		}
		cfg.MaxConcurrency = n
	}

	if v, ok := env[keyCachePolicy]; ok && v != "" {
		policy := cache.Policy(v)
		if !policy.Valid() {
			return nil, pipelineerr.New("config", "Load", fmt.Errorf("unknown cache policy %q", v)).
				WithCode("CONFIGURATION_INVALID").WithDetail("key", keyCachePolicy).WithDetail("value", v)
		}
		cfg.CachePolicy = policy
	}

	if v, ok := env[keyCacheKeyGen]; ok && v != "" {
		cfg.CacheKeyGenerator = v
	}

	if _, ok := env[keyTransport]; ok {
		logger.Debug("config: pipeline.transport is ignored by core, consumed by collaborators")
	}

	return cfg, nil
}

func parseParallelism(v string) (classify.GlobalPolicy, error) {
	switch v {
	case "SEQUENTIAL":
		return classify.Sequential, nil
	case "AUTO":
		return classify.Auto, nil
	case "PARALLEL":
		return classify.Parallel, nil
	default:
		return 0, pipelineerr.New("config", "Load", fmt.Errorf("unknown parallelism policy %q", v)).
			WithCode("CONFIGURATION_INVALID").WithDetail("key", keyParallelism).WithDetail("value", v)
	}
}
