package accesscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/nathannewyen/fhir-gateway/internal/compartment"
	"github.com/nathannewyen/fhir-gateway/internal/fhirreq"
)

// rejectUnsupportedType enforces the shared §4.5 rule: both built-in
// checkers reject requests whose resource type is absent from the
// patient-paths configuration. Patient itself and root-level operations
// (bundles) are exempt — Patient is compartmented by its own id, not by a
// configured path expression, and a root-level request has no resource
// type to check yet.
func rejectUnsupportedType(v *fhirreq.RequestView, resolver *compartment.Resolver) *apperrors.AppError {
	if v.ResourceType == "" || v.ResourceType == "Patient" {
		return nil
	}
	if !resolver.Paths().Supports(v.ResourceType) {
		return apperrors.InvalidRequest(fmt.Sprintf("resource type %q is not configured for patient-path resolution", v.ResourceType))
	}
	return nil
}

// isNewPatientWrite reports whether v is a write that targets a Patient
// resource not yet known to exist: a bare POST /Patient (server assigns the
// id), or a PUT /Patient/{id} to an id that doesn't exist upstream yet.
func isNewPatientWrite(ctx context.Context, v *fhirreq.RequestView, store Store) (bool, *apperrors.AppError) {
	if v.ResourceType != "Patient" {
		return false, nil
	}
	switch v.EffectiveMethod() {
	case "POST":
		return v.ID == "", nil
	case "PUT":
		if v.ID == "" {
			return false, apperrors.InvalidRequest("PUT Patient requires a resource id")
		}
		exists, appErr := store.PatientExists(ctx, v.ID)
		if appErr != nil {
			return false, appErr
		}
		return !exists, nil
	default:
		return false, nil
	}
}

// extractCreatedID pulls the new resource's id out of an upstream create
// response: the Location header if present, otherwise the "id" field of the
// response body.
func extractCreatedID(result *ForwardResult) string {
	if loc := result.Headers.Get("Location"); loc != "" {
		if id := idFromLocation(loc); id != "" {
			return id
		}
	}
	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result.Body, &body); err == nil {
		return body.ID
	}
	return ""
}

// idFromLocation extracts the resource id from a create response's Location
// header, shaped as [base]/[type]/{id}/_history/{vid} per the FHIR create
// interaction. The /_history/{vid} suffix, when present, is stripped before
// taking the last path segment, so a versioned Location doesn't yield the
// version id in place of the resource id.
func idFromLocation(loc string) string {
	trimmed := strings.TrimRight(loc, "/")
	if idx := strings.Index(trimmed, "/_history/"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 && idx+1 < len(trimmed) {
		return trimmed[idx+1:]
	}
	return ""
}
