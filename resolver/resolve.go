package resolver

import (
	"fmt"
	"strings"

	"github.com/corestream/pipeline/pipelineerr"
)

// CallKind labels whether a resolved call stays in-process or crosses a
// module boundary, per spec.md's "network-bound" vs "in-process" labeling.
type CallKind string

const (
	CallInProcess  CallKind = "in-process"
	CallNetworkBound CallKind = "network-bound"
)

// Placement is the fully resolved three-index result of Resolve.
type Placement struct {
	StepModule      map[string]string // stepID -> moduleName
	SyntheticModule map[string]string // syntheticID -> moduleName
	ModuleRuntime   map[string]string // moduleName -> runtimeName
}

// CallKindFor labels a call from a step hosted in fromModule to one hosted
// in toModule.
func (p *Placement) CallKindFor(fromModule, toModule string) CallKind {
	if fromModule == toModule {
		return CallInProcess
	}
	return CallNetworkBound
}

// StepsInModule returns every step id resolved to moduleName.
func (p *Placement) StepsInModule(moduleName string) []string {
	var out []string
	for id, mod := range p.StepModule {
		if mod == moduleName {
			out = append(out, id)
		}
	}
	return out
}

// SyntheticsInModule returns every synthetic id resolved to moduleName.
func (p *Placement) SyntheticsInModule(moduleName string) []string {
	var out []string
	for id, mod := range p.SyntheticModule {
		if mod == moduleName {
			out = append(out, id)
		}
	}
	return out
}

// Resolve builds the three indices (step->module, synthetic->module,
// module->runtime) in order and applies validation, returning one of the
// deterministic error codes in spec.md's table on failure.
func Resolve(m *Mapping, discoveredSteps []string, discoveredSynthetics []string) (*Placement, error) {
	stepSet := toSet(discoveredSteps)
	for id := range m.Steps {
		if !stepSet[id] {
			return nil, code("RUNTIME_MAP_UNKNOWN_STEP", id)
		}
	}

	stepModule, err := resolveIndex(discoveredSteps, m.Steps, func(d StepDecl) string { return d.Module }, m.Defaults.Module, m.Validation)
	if err != nil {
		return nil, err
	}

	synthModule, err := resolveSynthetics(discoveredSynthetics, m.Synthetics, m.Defaults.SyntheticModule, m.Validation)
	if err != nil {
		return nil, err
	}

	if m.Validation == ValidationStrict {
		for _, id := range discoveredSteps {
			if _, ok := stepModule[id]; !ok {
				return nil, code("RUNTIME_MAP_MISSING_STEP", id)
			}
		}
		for _, id := range discoveredSynthetics {
			if _, ok := synthModule[id]; !ok {
				return nil, code("RUNTIME_MAP_MISSING_STEP", id)
			}
		}
	}

	if err := validateDeclaredModules(m, stepModule, synthModule); err != nil {
		return nil, err
	}

	moduleRuntime, err := resolveModuleRuntimes(m, stepModule, synthModule)
	if err != nil {
		return nil, err
	}

	p := &Placement{StepModule: stepModule, SyntheticModule: synthModule, ModuleRuntime: moduleRuntime}

	if m.Layout == LayoutMonolith {
		if err := checkMonolith(p); err != nil {
			return nil, err
		}
	}
	if m.Layout == LayoutPipelineRuntime {
		if err := checkPipelineRuntime(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func toSet(ids []string) map[string]bool {
	s := make(map[string]bool, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// resolveIndex builds stepId->moduleName, honoring explicit overlay entries
// and falling back (under AUTO) to the default module policy.
func resolveIndex(ids []string, overlay map[string]StepDecl, moduleOf func(StepDecl) string, defaultPolicy string, validation Validation) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if decl, ok := overlay[id]; ok {
			mod := moduleOf(decl)
			if mod == "" {
				return nil, code("RUNTIME_MAP_UNKNOWN_MODULE", id)
			}
			out[id] = mod
			continue
		}
		if validation == ValidationStrict {
			continue
		}
		out[id] = defaultModuleFor(id, defaultPolicy, overlay)
	}
	return out, nil
}

func resolveSynthetics(ids []string, overlay map[string]SyntheticDecl, defaultPolicy string, validation Validation) (map[string]string, error) {
	out := make(map[string]string, len(ids))

	// An overlay key may be the unsuffixed canonical id while discovered ids
	// are disambiguated (e.g. "aspect.TYPE@1"); match by exact id first,
	// then by canonical prefix.
	for _, id := range ids {
		if decl, ok := overlay[id]; ok {
			if decl.Module == "" {
				return nil, code("RUNTIME_MAP_UNKNOWN_MODULE", id)
			}
			out[id] = decl.Module
			continue
		}
		if mod, matched, ambiguous := matchCanonicalSynthetic(id, ids, overlay); ambiguous {
			return nil, code("RUNTIME_MAP_SYNTHETIC_AMBIGUOUS", id)
		} else if matched {
			out[id] = mod
			continue
		}
		if validation == ValidationStrict {
			continue
		}
		out[id] = defaultModuleFor(id, defaultPolicy, nil)
	}
	return out, nil
}

// matchCanonicalSynthetic checks whether id is covered by an unsuffixed
// overlay key that is its own canonical prefix ("<AspectId>.<Type>"), which
// is ambiguous whenever more than one discovered id shares that prefix.
func matchCanonicalSynthetic(id string, allIDs []string, overlay map[string]SyntheticDecl) (module string, matched bool, ambiguous bool) {
	canonical := canonicalPrefix(id)
	decl, ok := overlay[canonical]
	if !ok {
		return "", false, false
	}
	count := 0
	for _, other := range allIDs {
		if canonicalPrefix(other) == canonical {
			count++
		}
	}
	if count > 1 {
		return "", false, true
	}
	return decl.Module, true, false
}

func canonicalPrefix(id string) string {
	if idx := strings.Index(id, "@"); idx >= 0 {
		return id[:idx]
	}
	return id
}

// defaultModuleFor applies the per-step/shared/<name> default module
// policy. overlay, when non-nil, is consulted for the "shared" policy to
// find the sole declared module.
func defaultModuleFor(id, policy string, overlay map[string]StepDecl) string {
	switch policy {
	case "per-step", "plugin":
		return id
	case "shared":
		for _, decl := range overlay {
			if decl.Module != "" {
				return decl.Module
			}
		}
		return id
	case "":
		return id
	default:
		return policy
	}
}

// validateDeclaredModules enforces I1: every EXPLICIT step/synthetic
// placement must reference a module declared under `modules`. Modules
// synthesized by the per-step default policy are self-declaring and need no
// explicit `modules` entry.
func validateDeclaredModules(m *Mapping, stepModule, synthModule map[string]string) error {
	check := func(id, mod string) error {
		if mod == id {
			return nil // self-declaring per-step default
		}
		if _, ok := m.Modules[mod]; !ok {
			return code("RUNTIME_MAP_UNKNOWN_MODULE", mod)
		}
		return nil
	}
	for id, mod := range stepModule {
		if _, explicit := m.Steps[id]; explicit {
			if err := check(id, mod); err != nil {
				return err
			}
		}
	}
	for id, mod := range synthModule {
		if _, explicit := m.Synthetics[id]; explicit {
			if err := check(id, mod); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveModuleRuntimes builds moduleName->runtimeName, defaulting missing
// values to defaults.Runtime, and validates every referenced runtime is
// declared (when any runtimes were declared at all).
func resolveModuleRuntimes(m *Mapping, stepModule, synthModule map[string]string) (map[string]string, error) {
	modules := map[string]bool{}
	for _, mod := range stepModule {
		modules[mod] = true
	}
	for _, mod := range synthModule {
		modules[mod] = true
	}

	out := make(map[string]string, len(modules))
	for mod := range modules {
		runtime := m.Defaults.Runtime
		if decl, ok := m.Modules[mod]; ok && decl.Runtime != "" {
			runtime = decl.Runtime
		}
		if runtime == "" {
			out[mod] = ""
			continue
		}
		if len(m.Runtimes) > 0 {
			if _, ok := m.Runtimes[runtime]; !ok {
				return nil, code("RUNTIME_MAP_UNKNOWN_RUNTIME", runtime)
			}
		}
		out[mod] = runtime
	}
	return out, nil
}

func checkMonolith(p *Placement) error {
	modules := map[string]bool{}
	for _, mod := range p.StepModule {
		modules[mod] = true
	}
	for _, mod := range p.SyntheticModule {
		modules[mod] = true
	}
	if len(modules) > 1 {
		return code("RUNTIME_MAP_MONOLITH_SPLIT", fmt.Sprintf("%v", keysOf(modules)))
	}
	return nil
}

func checkPipelineRuntime(p *Placement) error {
	runtimes := map[string]bool{}
	for _, mod := range p.StepModule {
		if rt, ok := p.ModuleRuntime[mod]; ok && rt != "" {
			runtimes[rt] = true
		}
	}
	if len(runtimes) > 1 {
		return code("RUNTIME_MAP_PIPELINE_SPLIT", fmt.Sprintf("%v", keysOf(runtimes)))
	}
	return nil
}

func keysOf(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func code(c, detail string) error {
	return pipelineerr.New("resolver", "Resolve", fmt.Errorf("%s: %s", c, detail)).
		WithCode(c).WithDetail("id", detail)
}
