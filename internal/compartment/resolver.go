package compartment

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/nathannewyen/fhir-gateway/internal/fhirreq"
)

// Resolver implements the three patient-compartment entry points of §4.3:
// from request path + search parameters, from a single-resource POST/PUT
// body, and (via ResolveFromBody called per-entry) from a transaction bundle.
type Resolver struct {
	paths PathConfig
}

// NewResolver builds a Resolver backed by the given patient-paths configuration.
func NewResolver(paths PathConfig) *Resolver {
	return &Resolver{paths: paths}
}

// Paths exposes the underlying configuration, e.g. for access checkers that
// must reject resource types the configuration doesn't cover (§4.5).
func (r *Resolver) Paths() PathConfig {
	return r.paths
}

// ResolveFromPathAndParams handles the path-and-query entry point (§4.3,
// first bullet). It rejects forbidden search shapes and the DELETE/PUT edge
// cases before attempting resolution.
func (r *Resolver) ResolveFromPathAndParams(v *fhirreq.RequestView) (Set, *apperrors.AppError) {
	if v.Method == http.MethodDelete && v.TargetsInstance() {
		return nil, apperrors.InvalidRequest(fmt.Sprintf("DELETE %s requires out-of-band authorization", v.Path))
	}
	if v.Method == http.MethodPut && v.ResourceType == "Patient" && v.ID == "" {
		return nil, apperrors.InvalidRequest("PUT Patient requires a resource id")
	}

	if v.TargetsInstance() {
		if v.ResourceType == "Patient" {
			return NewSet(v.ID), nil
		}
		if narrowed := patientParamSet(v); !narrowed.Empty() {
			return narrowed, nil
		}
		// Resolving the compartment of an arbitrary instance read would
		// require fetching and inspecting the resource upstream, which is
		// out of scope for this layer; treat it as unresolvable. The empty
		// compartment causes the access decision to deny (§3 invariant).
		return NewSet(), nil
	}

	if v.ResourceType != "" {
		if reason := fhirreq.ForbiddenSearchShape(v); reason != "" {
			return nil, apperrors.InvalidRequest(reason)
		}
		return patientParamSet(v), nil
	}

	// Root-level operation (e.g. a transaction bundle POST) — resolved
	// elsewhere by the bundle processor.
	return NewSet(), nil
}

// patientParamSet builds a compartment from "patient" and "subject" search
// parameters, accepting both "Patient/<id>" and bare "<id>" value shapes.
func patientParamSet(v *fhirreq.RequestView) Set {
	var ids []string
	for _, name := range []string{"patient", "subject"} {
		for _, value := range v.Query[name] {
			for _, part := range strings.Split(value, ",") {
				ids = append(ids, strings.TrimPrefix(strings.TrimSpace(part), "Patient/"))
			}
		}
	}
	return NewSet(ids...)
}

// ResolveFromBody handles the single-resource POST/PUT entry point (§4.3,
// second bullet). It verifies the body's declared resourceType matches the
// path's resource type, then evaluates the configured patient-path
// expressions for that type. A resource type absent from the patient-paths
// configuration yields an empty set rather than an error; it is the access
// checker's responsibility to reject unsupported resource types (§4.5).
func (r *Resolver) ResolveFromBody(resourceType string, body []byte) (Set, *apperrors.AppError) {
	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.InvalidRequest("request body is not valid JSON")
	}

	if declared, _ := parsed["resourceType"].(string); declared != "" && declared != resourceType {
		return nil, apperrors.InvalidRequest(fmt.Sprintf("body resourceType %q does not match path resource type %q", declared, resourceType))
	}

	if resourceType == "Patient" {
		// A new or updated Patient resource's own id is its compartment;
		// that's resolved from the path/decision layer, not the body.
		return NewSet(), nil
	}

	exprs, ok := r.paths[resourceType]
	if !ok {
		return NewSet(), nil
	}

	var ids []string
	for _, expr := range exprs {
		for _, ref := range evalPatientPath(parsed, expr) {
			if id, isPatient := strings.CutPrefix(ref, "Patient/"); isPatient {
				ids = append(ids, id)
			}
		}
	}
	return NewSet(ids...), nil
}
