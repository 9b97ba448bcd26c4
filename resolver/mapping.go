// Package resolver implements the Runtime Placement Resolver (C8): parsing
// the runtime mapping file, resolving step/synthetic/module/runtime
// placement per spec.md's three-index algorithm, and locating the mapping
// file within a multi-module source tree.
package resolver

import (
	"errors"
	"fmt"
	"os"

	"github.com/corestream/pipeline/logger"
	"github.com/corestream/pipeline/pipelineerr"
	"gopkg.in/yaml.v3"
)

// Layout is the deployment topology the mapping declares.
type Layout string

const (
	LayoutModular         Layout = "MODULAR"
	LayoutPipelineRuntime Layout = "PIPELINE_RUNTIME"
	LayoutMonolith        Layout = "MONOLITH"
)

// Validation controls how strictly the mapping is checked.
type Validation string

const (
	ValidationAuto   Validation = "AUTO"
	ValidationStrict Validation = "STRICT"
)

// Defaults holds the fallback placement policy applied when an overlay entry
// is absent.
type Defaults struct {
	Runtime         string
	Module          string // "per-step" | "shared" | "<name>"
	SyntheticModule string // "plugin" | "per-step" | "<name>"
}

// RuntimeDecl is a declared runtime's metadata.
type RuntimeDecl struct {
	Description string
}

// ModuleDecl is a declared module's metadata.
type ModuleDecl struct {
	Runtime string
}

// StepDecl / SyntheticDecl are per-id overlay entries.
type StepDecl struct {
	Module string
}

type SyntheticDecl struct {
	Module string
}

// Mapping is the fully parsed, defaulted runtime mapping document.
type Mapping struct {
	Version    int
	Layout     Layout
	Validation Validation
	Defaults   Defaults
	Runtimes   map[string]RuntimeDecl
	Modules    map[string]ModuleDecl
	Steps      map[string]StepDecl
	Synthetics map[string]SyntheticDecl
}

// rawMapping mirrors the YAML document shape for decoding.
type rawMapping struct {
	Version    int                      `yaml:"version"`
	Layout     string                   `yaml:"layout"`
	Validation string                   `yaml:"validation"`
	Defaults   rawDefaults              `yaml:"defaults"`
	Runtimes   map[string]rawRuntime    `yaml:"runtimes"`
	Modules    map[string]rawModule     `yaml:"modules"`
	Steps      map[string]rawStep       `yaml:"steps"`
	Synthetics map[string]rawSynthetic  `yaml:"synthetics"`
}

type rawDefaults struct {
	Runtime   string           `yaml:"runtime"`
	Module    string           `yaml:"module"`
	Synthetic rawSyntheticDflt `yaml:"synthetic"`
}

type rawSyntheticDflt struct {
	Module string `yaml:"module"`
}

type rawRuntime struct {
	Description string `yaml:"description"`
}

type rawModule struct {
	Runtime string `yaml:"runtime"`
}

type rawStep struct {
	Module string `yaml:"module"`
}

type rawSynthetic struct {
	Module string `yaml:"module"`
}

var topLevelKeys = map[string]bool{
	"version": true, "layout": true, "validation": true, "defaults": true,
	"runtimes": true, "modules": true, "steps": true, "synthetics": true,
}

// DefaultMapping returns the built-in defaults: MODULAR layout, AUTO
// validation, per-step module policy, plugin-synthetic policy.
func DefaultMapping() *Mapping {
	return &Mapping{
		Version:    1,
		Layout:     LayoutModular,
		Validation: ValidationAuto,
		Defaults:   Defaults{Module: "per-step", SyntheticModule: "plugin"},
		Runtimes:   map[string]RuntimeDecl{},
		Modules:    map[string]ModuleDecl{},
		Steps:      map[string]StepDecl{},
		Synthetics: map[string]SyntheticDecl{},
	}
}

// Load reads and parses the mapping file at path. A missing file yields
// DefaultMapping rather than an error.
func Load(path string) (*Mapping, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is caller-supplied config location
	if errors.Is(err, os.ErrNotExist) {
		return DefaultMapping(), nil
	}
	if err != nil {
		return nil, pipelineerr.New("resolver", "Load", err)
	}
	return Parse(data)
}

// Parse decodes a runtime mapping document from data.
func Parse(data []byte) (*Mapping, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pipelineerr.New("resolver", "Parse", err).WithCode("RUNTIME_MAP_INVALID_YAML")
	}
	if len(doc.Content) == 0 {
		return DefaultMapping(), nil
	}

	if dup := duplicateKeys(doc.Content[0], "steps"); len(dup) > 0 {
		return nil, pipelineerr.New("resolver", "Parse", fmt.Errorf("duplicate step id(s): %v", dup)).
			WithCode("RUNTIME_MAP_DUPLICATE_STEP").WithDetail("steps", dup)
	}

	var raw rawMapping
	if err := doc.Content[0].Decode(&raw); err != nil {
		return nil, pipelineerr.New("resolver", "Parse", err).WithCode("RUNTIME_MAP_INVALID_YAML")
	}

	m := DefaultMapping()
	if raw.Version != 0 {
		m.Version = raw.Version
	}

	if raw.Layout != "" {
		layout, err := parseLayout(raw.Layout)
		if err != nil {
			return nil, err
		}
		m.Layout = layout
	}
	if raw.Validation != "" {
		validation, err := parseValidation(raw.Validation)
		if err != nil {
			return nil, err
		}
		m.Validation = validation
	}

	if raw.Defaults.Runtime != "" {
		m.Defaults.Runtime = raw.Defaults.Runtime
	}
	if raw.Defaults.Module != "" {
		m.Defaults.Module = raw.Defaults.Module
	}
	if raw.Defaults.Synthetic.Module != "" {
		m.Defaults.SyntheticModule = raw.Defaults.Synthetic.Module
	}

	for name, decl := range raw.Runtimes {
		m.Runtimes[name] = RuntimeDecl{Description: decl.Description}
	}
	for name, decl := range raw.Modules {
		m.Modules[name] = ModuleDecl{Runtime: decl.Runtime}
	}
	for id, decl := range raw.Steps {
		m.Steps[id] = StepDecl{Module: decl.Module}
	}
	for id, decl := range raw.Synthetics {
		m.Synthetics[id] = SyntheticDecl{Module: decl.Module}
	}

	unknown := unknownTopLevelKeys(doc.Content[0])
	if len(unknown) > 0 {
		if m.Validation == ValidationStrict {
			return nil, pipelineerr.New("resolver", "Parse", fmt.Errorf("unknown keys: %v", unknown)).
				WithCode("RUNTIME_MAP_UNKNOWN_KEY").WithDetail("keys", unknown)
		}
		logger.Warn("resolver: unknown keys in mapping document, ignored", "keys", unknown)
	}

	return m, nil
}

func parseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutModular, LayoutPipelineRuntime, LayoutMonolith:
		return Layout(s), nil
	default:
		return "", pipelineerr.New("resolver", "Parse", fmt.Errorf("unknown layout %q", s)).
			WithCode("RUNTIME_MAP_INVALID_ENUM")
	}
}

func parseValidation(s string) (Validation, error) {
	switch Validation(s) {
	case ValidationAuto, ValidationStrict:
		return Validation(s), nil
	default:
		return "", pipelineerr.New("resolver", "Parse", fmt.Errorf("unknown validation mode %q", s)).
			WithCode("RUNTIME_MAP_INVALID_ENUM")
	}
}

// unknownTopLevelKeys returns any mapping-node keys at the document root not
// in topLevelKeys.
func unknownTopLevelKeys(root *yaml.Node) []string {
	if root.Kind != yaml.MappingNode {
		return nil
	}
	var unknown []string
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		if !topLevelKeys[key] {
			unknown = append(unknown, key)
		}
	}
	return unknown
}

// duplicateKeys returns ids repeated more than once within the named
// top-level mapping section (e.g. "steps"), detected via yaml.Node
// inspection before decoding, since decoding rejects a repeated key with a
// generic YAML error.
func duplicateKeys(root *yaml.Node, section string) []string {
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != section {
			continue
		}
		sectionNode := root.Content[i+1]
		if sectionNode.Kind != yaml.MappingNode {
			return nil
		}
		seen := map[string]int{}
		var dup []string
		for j := 0; j+1 < len(sectionNode.Content); j += 2 {
			key := sectionNode.Content[j].Value
			seen[key]++
			if seen[key] == 2 {
				dup = append(dup, key)
			}
		}
		return dup
	}
	return nil
}
