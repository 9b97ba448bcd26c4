package resolver

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/corestream/pipeline/pipelineerr"
	"gopkg.in/yaml.v3"
)

// aggregatorMarkerFile is the build-config file whose presence (with an
// "aggregator: true" flag) identifies the root of a multi-module source
// tree. Neither the marker filename nor its flag format is standardized
// outside this runtime; this is the locally adopted convention.
const aggregatorMarkerFile = "pipeline.aggregator.yaml"

var mappingFileNames = []string{"pipeline.runtime.yaml", "pipeline.runtime.yml"}

type aggregatorMarker struct {
	Aggregator bool `yaml:"aggregator"`
}

// Locate walks upward from dir to the nearest ancestor declaring an
// aggregator marker, then looks for the runtime mapping file in that
// directory and its config/ subdirectory. It returns the single matching
// path, or an error if none or more than one is found.
func Locate(dir string) (string, error) {
	root, err := findAggregatorRoot(dir)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, candidateDir := range []string{root, filepath.Join(root, "config")} {
		for _, name := range mappingFileNames {
			p := filepath.Join(candidateDir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				matches = append(matches, p)
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", pipelineerr.New("resolver", "Locate", fmt.Errorf("no runtime mapping file found under %s", root)).
			WithCode("RUNTIME_MAP_NOT_FOUND")
	case 1:
		return matches[0], nil
	default:
		return "", pipelineerr.New("resolver", "Locate", fmt.Errorf("multiple runtime mapping files found: %v", matches)).
			WithCode("RUNTIME_MAP_AMBIGUOUS_LOCATION").WithDetail("paths", matches)
	}
}

// findAggregatorRoot walks dir and its ancestors looking for the aggregator
// marker file, stopping at the filesystem root.
func findAggregatorRoot(dir string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", pipelineerr.New("resolver", "Locate", err)
	}

	for {
		markerPath := filepath.Join(current, aggregatorMarkerFile)
		if data, err := os.ReadFile(markerPath); err == nil { // #nosec G304 - path built from caller-supplied ancestor walk
			var marker aggregatorMarker
			if yaml.Unmarshal(data, &marker) == nil && marker.Aggregator {
				return current, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", pipelineerr.New("resolver", "Locate", fmt.Errorf("no aggregator marker found above %s", dir)).
				WithCode("RUNTIME_MAP_NO_AGGREGATOR")
		}
		current = parent
	}
}
