package fhirreq

import (
	"encoding/json"
	"fmt"

	"github.com/samply/golang-fhir-models/fhir-models/fhir"
)

// ValidateResourceBody checks that a POST/PUT body is at minimum
// well-formed JSON, and, for resource types the gateway can deserialize
// into a concrete FHIR model, that it satisfies that model's shape. Only
// Patient gets a typed check today — matching the one resource type the
// pack's own validator covers — everything else only needs to parse.
func ValidateResourceBody(resourceType string, body []byte) error {
	switch resourceType {
	case "Patient":
		var patient fhir.Patient
		if err := json.Unmarshal(body, &patient); err != nil {
			return fmt.Errorf("body is not a valid Patient resource: %w", err)
		}
		return validatePatientShape(&patient)
	default:
		var generic map[string]interface{}
		return json.Unmarshal(body, &generic)
	}
}

// validatePatientShape requires at least one name with a non-empty family
// or given component, mirroring the minimal shape check the pack applies
// before accepting a new patient.
func validatePatientShape(patient *fhir.Patient) error {
	for _, name := range patient.Name {
		if name.Family != nil && *name.Family != "" {
			return nil
		}
		for _, given := range name.Given {
			if given != "" {
				return nil
			}
		}
	}
	return fmt.Errorf("patient resource must have at least one name with a family or given component")
}
