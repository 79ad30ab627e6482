package bundle

import (
	"context"
	"testing"

	"github.com/nathannewyen/fhir-gateway/internal/compartment"
)

func newTestProcessor() *Processor {
	paths := compartment.PathConfig{
		"Observation": {"Observation.subject"},
	}
	return NewProcessor(compartment.NewResolver(paths))
}

func TestProcessRejectsNonBundleResourceType(t *testing.T) {
	p := newTestProcessor()
	_, appErr := p.Process(context.Background(), []byte(`{"resourceType":"Patient"}`), nil)
	if appErr == nil {
		t.Fatal("expected an error for a non-Bundle root body")
	}
}

func TestProcessRejectsNonTransactionBundle(t *testing.T) {
	p := newTestProcessor()
	body := `{"resourceType":"Bundle","type":"batch","entry":[]}`
	_, appErr := p.Process(context.Background(), []byte(body), nil)
	if appErr == nil {
		t.Fatal("expected an error for a non-transaction bundle type")
	}
}

func TestProcessRejectsDeleteEntry(t *testing.T) {
	p := newTestProcessor()
	body := `{
		"resourceType":"Bundle","type":"transaction",
		"entry":[{"request":{"method":"DELETE","url":"Patient/1"}}]
	}`
	_, appErr := p.Process(context.Background(), []byte(body), nil)
	if appErr == nil {
		t.Fatal("expected DELETE entries to be rejected")
	}
}

func TestProcessRejectsGetWithNoResolvablePatient(t *testing.T) {
	p := newTestProcessor()
	body := `{
		"resourceType":"Bundle","type":"transaction",
		"entry":[{"request":{"method":"GET","url":"Observation/99"}}]
	}`
	_, appErr := p.Process(context.Background(), []byte(body), nil)
	if appErr == nil {
		t.Fatal("expected an unresolvable GET entry to be rejected")
	}
}

func TestProcessUnionsCompartmentsAcrossEntries(t *testing.T) {
	p := newTestProcessor()
	body := `{
		"resourceType":"Bundle","type":"transaction",
		"entry":[
			{"request":{"method":"GET","url":"Patient/1"}},
			{"request":{"method":"GET","url":"Observation?subject=Patient/2"}},
			{"request":{"method":"POST","url":"Observation"},"resource":{"resourceType":"Observation","subject":{"reference":"Patient/3"}}}
		]
	}`
	union, appErr := p.Process(context.Background(), []byte(body), nil)
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	for _, id := range []string{"1", "2", "3"} {
		if !union.Contains(id) {
			t.Errorf("expected union to contain patient %s, got %v", id, union.Slice())
		}
	}
}

func TestProcessVisitorCanStopEarly(t *testing.T) {
	p := newTestProcessor()
	body := `{
		"resourceType":"Bundle","type":"transaction",
		"entry":[
			{"request":{"method":"GET","url":"Patient/1"}},
			{"request":{"method":"GET","url":"Patient/2"}},
			{"request":{"method":"GET","url":"Patient/3"}}
		]
	}`
	visited := 0
	_, appErr := p.Process(context.Background(), []byte(body), func(i int, e Entry, set compartment.Set) bool {
		visited++
		return i == 0
	})
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if visited != 1 {
		t.Errorf("visited = %d, want 1 (early exit after first entry)", visited)
	}
}

func TestProcessRejectsMalformedJSON(t *testing.T) {
	p := newTestProcessor()
	_, appErr := p.Process(context.Background(), []byte("not json"), nil)
	if appErr == nil {
		t.Fatal("expected an error for malformed bundle JSON")
	}
}

func TestProcessRejectsEntryMissingRequest(t *testing.T) {
	p := newTestProcessor()
	body := `{"resourceType":"Bundle","type":"transaction","entry":[{"resource":{"resourceType":"Patient"}}]}`
	_, appErr := p.Process(context.Background(), []byte(body), nil)
	if appErr == nil {
		t.Fatal("expected an error for an entry without a request")
	}
}
