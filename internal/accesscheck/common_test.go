package accesscheck

import (
	"net/http"
	"testing"
)

func TestExtractCreatedIDStripsHistoryVersionFromLocation(t *testing.T) {
	result := &ForwardResult{
		Headers: http.Header{"Location": []string{"https://upstream.example.com/fhir/Patient/999/_history/1"}},
	}
	if got := extractCreatedID(result); got != "999" {
		t.Errorf("id = %q, want 999", got)
	}
}

func TestExtractCreatedIDUsesUnversionedLocation(t *testing.T) {
	result := &ForwardResult{
		Headers: http.Header{"Location": []string{"https://upstream.example.com/fhir/Patient/999"}},
	}
	if got := extractCreatedID(result); got != "999" {
		t.Errorf("id = %q, want 999", got)
	}
}

func TestExtractCreatedIDFallsBackToBodyWhenLocationMissing(t *testing.T) {
	result := &ForwardResult{Body: []byte(`{"resourceType":"Patient","id":"999"}`)}
	if got := extractCreatedID(result); got != "999" {
		t.Errorf("id = %q, want 999", got)
	}
}

func TestExtractCreatedIDFallsBackToBodyWhenLocationIsMalformed(t *testing.T) {
	result := &ForwardResult{
		Headers: http.Header{"Location": []string{"/"}},
		Body:    []byte(`{"resourceType":"Patient","id":"999"}`),
	}
	if got := extractCreatedID(result); got != "999" {
		t.Errorf("id = %q, want 999", got)
	}
}
