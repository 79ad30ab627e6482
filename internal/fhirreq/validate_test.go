package fhirreq

import "testing"

func TestValidateResourceBodyAcceptsPatientWithFamilyName(t *testing.T) {
	body := `{"resourceType":"Patient","name":[{"family":"Smith","given":["Jane"]}]}`
	if err := ValidateResourceBody("Patient", []byte(body)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateResourceBodyRejectsPatientWithNoName(t *testing.T) {
	body := `{"resourceType":"Patient"}`
	if err := ValidateResourceBody("Patient", []byte(body)); err == nil {
		t.Error("expected error for patient with no name")
	}
}

func TestValidateResourceBodyAcceptsArbitraryValidJSONForOtherTypes(t *testing.T) {
	body := `{"resourceType":"Observation","status":"final"}`
	if err := ValidateResourceBody("Observation", []byte(body)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateResourceBodyRejectsMalformedJSON(t *testing.T) {
	if err := ValidateResourceBody("Observation", []byte("not json")); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
