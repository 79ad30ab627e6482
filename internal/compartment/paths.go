package compartment

import (
	"encoding/json"
	"fmt"
	"os"
)

// PathConfig is the patient-paths configuration (spec.md §6): for each FHIR
// resource type, the list of FHIRPath-style expressions identifying its
// patient-reference fields, e.g. "Observation.subject" or
// "Observation.performer.where(resolve() is Patient)".
type PathConfig map[string][]string

// LoadPathConfig reads and parses the patient-paths configuration file.
// A malformed or missing file is a startup failure (spec.md §7).
func LoadPathConfig(path string) (PathConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patient-paths config %s: %w", path, err)
	}
	var cfg PathConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing patient-paths config %s: %w", path, err)
	}
	return cfg, nil
}

// Supports reports whether resourceType has a configured patient-path entry.
func (c PathConfig) Supports(resourceType string) bool {
	_, ok := c[resourceType]
	return ok
}
