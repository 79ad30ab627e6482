// Package bundle implements C10, the Bundle Processor: it accepts only
// transaction bundles, dispatches each entry to C3's path/body resolution,
// and aggregates the per-entry patient compartments into one union the
// access-checker plugin decides against exactly once (§4.10).
package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/nathannewyen/fhir-gateway/internal/compartment"
	"github.com/nathannewyen/fhir-gateway/internal/fhirreq"
)

// Bundle is the subset of the FHIR Bundle resource this processor reads.
// Shaped after Nirmitee's hand-rolled platform/fhir/bundle.go rather than a
// typed samply model, since only resourceType/type/entry.request/
// entry.resource are ever inspected and a generic json.RawMessage payload is
// sufficient for them.
type Bundle struct {
	ResourceType string  `json:"resourceType"`
	Type         string  `json:"type"`
	Entry        []Entry `json:"entry"`
}

// Entry is one transaction bundle entry.
type Entry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Request  *EntryRequest   `json:"request"`
}

// EntryRequest is the verb+URL every transaction entry must carry.
type EntryRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// Visitor is invoked once per processed entry, in order, with the
// compartment resolved for that entry alone. Returning true stops the
// processor from visiting any remaining entries (§4.10 "early exit").
type Visitor func(index int, entry Entry, entrySet compartment.Set) (stop bool)

// Processor evaluates transaction bundles against the configured
// patient-paths resolver.
type Processor struct {
	resolver *compartment.Resolver
}

// NewProcessor builds a Processor backed by the given compartment resolver.
func NewProcessor(resolver *compartment.Resolver) *Processor {
	return &Processor{resolver: resolver}
}

// Process parses body as a Bundle, rejects anything but a transaction
// bundle, and walks its entries, calling visit after each one. It returns
// the union of every entry's compartment — the value the access-checker
// plugin is consulted against exactly once (§4.10).
func (p *Processor) Process(_ context.Context, body []byte, visit Visitor) (compartment.Set, *apperrors.AppError) {
	var bdl Bundle
	if err := json.Unmarshal(body, &bdl); err != nil {
		return nil, apperrors.InvalidRequest("bundle body is not valid JSON")
	}
	if bdl.ResourceType != "Bundle" {
		return nil, apperrors.InvalidRequest("root-level POST body must be a Bundle resource")
	}
	if bdl.Type != "transaction" {
		return nil, apperrors.InvalidRequest("only transaction bundles are accepted")
	}

	union := compartment.NewSet()
	for i, entry := range bdl.Entry {
		entrySet, appErr := p.resolveEntry(entry)
		if appErr != nil {
			return nil, appErr
		}
		union = union.Union(entrySet)
		if visit != nil && visit(i, entry, entrySet) {
			break
		}
	}
	return union, nil
}

func (p *Processor) resolveEntry(entry Entry) (compartment.Set, *apperrors.AppError) {
	if entry.Request == nil || entry.Request.URL == "" {
		return nil, apperrors.InvalidRequest("bundle entry is missing request.url")
	}
	method := strings.ToUpper(entry.Request.Method)

	switch method {
	case http.MethodDelete:
		return nil, apperrors.InvalidRequest("transaction bundle entries may not use DELETE")
	case http.MethodGet:
		v, err := entryRequestView(method, entry.Request.URL, nil)
		if err != nil {
			return nil, apperrors.InvalidRequest("bundle entry has an unparseable request.url")
		}
		set, appErr := p.resolver.ResolveFromPathAndParams(v)
		if appErr != nil {
			return nil, appErr
		}
		if set.Empty() {
			return nil, apperrors.InvalidRequest("bundle entry GET " + entry.Request.URL + " has no resolvable patient context")
		}
		return set, nil
	case http.MethodPost, http.MethodPut:
		v, err := entryRequestView(method, entry.Request.URL, entry.Resource)
		if err != nil {
			return nil, apperrors.InvalidRequest("bundle entry has an unparseable request.url")
		}
		return p.resolver.ResolveFromBody(v.ResourceType, entry.Resource)
	default:
		return nil, apperrors.InvalidRequest("unsupported bundle entry method " + entry.Request.Method)
	}
}

// entryRequestView builds a *fhirreq.RequestView for one bundle entry by
// reusing C2's own path/query parsing, so an entry's compartment resolution
// runs through exactly the same code path a standalone request would.
func entryRequestView(method, rawURL string, body []byte) (*fhirreq.RequestView, error) {
	target := "http://bundle-entry/" + strings.TrimPrefix(rawURL, "/")
	var reader io.Reader = bytes.NewReader(body)
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/fhir+json")
	}
	return fhirreq.NewRequestView(req)
}
