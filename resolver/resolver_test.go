package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	m, err := Parse([]byte(`version: 1`))
	require.NoError(t, err)
	assert.Equal(t, LayoutModular, m.Layout)
	assert.Equal(t, ValidationAuto, m.Validation)
	assert.Equal(t, "per-step", m.Defaults.Module)
	assert.Equal(t, "plugin", m.Defaults.SyntheticModule)
}

func TestParse_Overrides(t *testing.T) {
	doc := `
version: 2
layout: MONOLITH
validation: STRICT
defaults:
  runtime: core
  module: shared
modules:
  monolith:
    runtime: core
runtimes:
  core:
    description: main runtime
steps:
  parse:
    module: monolith
`
	m, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Version)
	assert.Equal(t, LayoutMonolith, m.Layout)
	assert.Equal(t, ValidationStrict, m.Validation)
	assert.Equal(t, "core", m.Defaults.Runtime)
	assert.Equal(t, "monolith", m.Steps["parse"].Module)
}

func TestParse_UnknownEnum_IsError(t *testing.T) {
	_, err := Parse([]byte(`layout: NOT_A_LAYOUT`))
	require.Error(t, err)

	_, err = Parse([]byte(`validation: NOT_A_MODE`))
	require.Error(t, err)
}

func TestParse_DuplicateStepKey_IsError(t *testing.T) {
	doc := "steps:\n  parse:\n    module: a\n  parse:\n    module: b\n"
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_DUPLICATE_STEP")
}

func TestParse_UnknownTopLevelKey_WarnsUnderAuto(t *testing.T) {
	m, err := Parse([]byte("version: 1\nbogus: true\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Version)
}

func TestParse_UnknownTopLevelKey_ErrorsUnderStrict(t *testing.T) {
	_, err := Parse([]byte("validation: STRICT\nbogus: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_UNKNOWN_KEY")
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMapping(), m)
}

func TestResolve_PerStepDefault(t *testing.T) {
	m := DefaultMapping()
	p, err := Resolve(m, []string{"parse", "validate"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "parse", p.StepModule["parse"])
	assert.Equal(t, "validate", p.StepModule["validate"])
}

func TestResolve_ExplicitOverlay(t *testing.T) {
	m := DefaultMapping()
	m.Modules["ingest"] = ModuleDecl{Runtime: "core"}
	m.Runtimes["core"] = RuntimeDecl{}
	m.Steps["parse"] = StepDecl{Module: "ingest"}

	p, err := Resolve(m, []string{"parse"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ingest", p.StepModule["parse"])
	assert.Equal(t, "core", p.ModuleRuntime["ingest"])
}

func TestResolve_UnknownStep(t *testing.T) {
	m := DefaultMapping()
	m.Steps["ghost"] = StepDecl{Module: "x"}
	_, err := Resolve(m, []string{"parse"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_UNKNOWN_STEP")
}

func TestResolve_UnknownModule(t *testing.T) {
	m := DefaultMapping()
	m.Steps["parse"] = StepDecl{Module: "ghost-module"}
	_, err := Resolve(m, []string{"parse"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_UNKNOWN_MODULE")
}

func TestResolve_UnknownRuntime(t *testing.T) {
	m := DefaultMapping()
	m.Modules["ingest"] = ModuleDecl{Runtime: "ghost-runtime"}
	m.Runtimes["core"] = RuntimeDecl{}
	m.Steps["parse"] = StepDecl{Module: "ingest"}

	_, err := Resolve(m, []string{"parse"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_UNKNOWN_RUNTIME")
}

func TestResolve_MissingStep_StrictMode(t *testing.T) {
	m := DefaultMapping()
	m.Validation = ValidationStrict
	m.Modules["ingest"] = ModuleDecl{}
	m.Steps["parse"] = StepDecl{Module: "ingest"}

	_, err := Resolve(m, []string{"parse", "unplaced"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_MISSING_STEP")
}

func TestResolve_SyntheticAmbiguous(t *testing.T) {
	m := DefaultMapping()
	m.Modules["ingest"] = ModuleDecl{}
	m.Synthetics["logging.AUDIT"] = SyntheticDecl{Module: "ingest"}

	_, err := Resolve(m, nil, []string{"logging.AUDIT@before", "logging.AUDIT@1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_SYNTHETIC_AMBIGUOUS")
}

func TestResolve_SyntheticUnambiguous_SingleInstance(t *testing.T) {
	m := DefaultMapping()
	m.Modules["ingest"] = ModuleDecl{}
	m.Synthetics["logging.AUDIT"] = SyntheticDecl{Module: "ingest"}

	p, err := Resolve(m, nil, []string{"logging.AUDIT"})
	require.NoError(t, err)
	assert.Equal(t, "ingest", p.SyntheticModule["logging.AUDIT"])
}

func TestResolve_MonolithSplit(t *testing.T) {
	m := DefaultMapping()
	m.Layout = LayoutMonolith
	m.Modules["a"] = ModuleDecl{}
	m.Modules["b"] = ModuleDecl{}
	m.Steps["parse"] = StepDecl{Module: "a"}
	m.Steps["store"] = StepDecl{Module: "b"}

	_, err := Resolve(m, []string{"parse", "store"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_MONOLITH_SPLIT")
}

func TestResolve_MonolithSingleModule_OK(t *testing.T) {
	m := DefaultMapping()
	m.Layout = LayoutMonolith
	m.Modules["monolith"] = ModuleDecl{Runtime: "core"}
	m.Runtimes["core"] = RuntimeDecl{}
	m.Steps["parse"] = StepDecl{Module: "monolith"}
	m.Steps["store"] = StepDecl{Module: "monolith"}

	p, err := Resolve(m, []string{"parse", "store"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "monolith", p.StepModule["parse"])
}

func TestResolve_PipelineRuntimeSplit(t *testing.T) {
	m := DefaultMapping()
	m.Layout = LayoutPipelineRuntime
	m.Modules["a"] = ModuleDecl{Runtime: "rt1"}
	m.Modules["b"] = ModuleDecl{Runtime: "rt2"}
	m.Runtimes["rt1"] = RuntimeDecl{}
	m.Runtimes["rt2"] = RuntimeDecl{}
	m.Steps["parse"] = StepDecl{Module: "a"}
	m.Steps["store"] = StepDecl{Module: "b"}

	_, err := Resolve(m, []string{"parse", "store"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_PIPELINE_SPLIT")
}

func TestPlacement_CallKindFor(t *testing.T) {
	p := &Placement{}
	assert.Equal(t, CallInProcess, p.CallKindFor("a", "a"))
	assert.Equal(t, CallNetworkBound, p.CallKindFor("a", "b"))
}

func TestPlacement_StepsAndSyntheticsInModule(t *testing.T) {
	p := &Placement{
		StepModule:      map[string]string{"parse": "ingest", "store": "ingest", "notify": "egress"},
		SyntheticModule: map[string]string{"logging.AUDIT": "ingest"},
	}
	assert.ElementsMatch(t, []string{"parse", "store"}, p.StepsInModule("ingest"))
	assert.ElementsMatch(t, []string{"notify"}, p.StepsInModule("egress"))
	assert.ElementsMatch(t, []string{"logging.AUDIT"}, p.SyntheticsInModule("ingest"))
}

func TestLocate_FindsMappingFileAtAggregatorRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, aggregatorMarkerFile), []byte("aggregator: true\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pipeline.runtime.yaml"), []byte("version: 1\n"), 0o644))

	moduleDir := filepath.Join(root, "modules", "ingest")
	require.NoError(t, os.MkdirAll(moduleDir, 0o755))

	found, err := Locate(moduleDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "pipeline.runtime.yaml"), found)
}

func TestLocate_FindsMappingFileInConfigSubdir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, aggregatorMarkerFile), []byte("aggregator: true\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "pipeline.runtime.yml"), []byte("version: 1\n"), 0o644))

	found, err := Locate(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "config", "pipeline.runtime.yml"), found)
}

func TestLocate_MultipleMatches_IsFatal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, aggregatorMarkerFile), []byte("aggregator: true\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pipeline.runtime.yaml"), []byte("version: 1\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "config", "pipeline.runtime.yml"), []byte("version: 1\n"), 0o644))

	_, err := Locate(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_AMBIGUOUS_LOCATION")
}

func TestLocate_NoAggregatorRoot_IsError(t *testing.T) {
	root := t.TempDir()
	_, err := Locate(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNTIME_MAP_NO_AGGREGATOR")
}
