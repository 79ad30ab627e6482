// Package accesscheck implements C5, the Access-Checker Plugin interface,
// together with its two reference implementations: list-backed and
// single-patient.
package accesscheck

import (
	"context"
	"net/http"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/nathannewyen/fhir-gateway/internal/compartment"
	"github.com/nathannewyen/fhir-gateway/internal/fhirreq"
	"github.com/nathannewyen/fhir-gateway/internal/jwtauth"
)

// ForwardResult is the minimal shape of an upstream response a checker's
// post-process continuation needs: enough to discover a newly created
// resource's id (§4.5 list-backed write grant).
type ForwardResult struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// PostProcess is invoked at most once, after the upstream response has been
// streamed to the client, and only when the upstream status is 2xx and the
// client's context is still live (§4.8 POSTPROC). Errors are logged at WARN
// by the caller and never surfaced to the client (§7).
type PostProcess func(ctx context.Context, result *ForwardResult) error

// Decision is the value C5 produces: whether the request is authorized,
// any request mutation to apply before forwarding, and an optional
// post-process continuation (§3 Access Decision).
type Decision struct {
	CanAccess   bool
	Mutation    *RequestMutation
	PostProcess PostProcess
}

// RequestMutation carries query parameters and header overrides a checker
// wants applied to the request before it is forwarded upstream.
type RequestMutation struct {
	QueryParams map[string]string
	Headers     map[string]string
}

// EvalRequest bundles the request view with the patient compartment already
// resolved for it by C3 (or, for a transaction bundle, the union computed by
// C10) — the "request" that §4.6's decide() evaluates.
type EvalRequest struct {
	View        *fhirreq.RequestView
	Compartment compartment.Set
}

// Checker is the access-checker plugin contract (§4.5). Implementations are
// constructed once per request and are not required to be thread-safe; the
// orchestrator guarantees no concurrent calls to a single instance (§5).
type Checker interface {
	CheckAccess(ctx context.Context, req *EvalRequest) (*Decision, *apperrors.AppError)
}

// Store is the narrow slice of the Upstream FHIR Client (C7) the built-in
// checkers need: existence checks and list mutation, kept separate from the
// full forwarding interface so checkers don't depend on C7's streaming
// concerns.
type Store interface {
	// PatientExists reports whether a Patient resource with the given id
	// already exists upstream.
	PatientExists(ctx context.Context, id string) (bool, *apperrors.AppError)

	// ListMatchCount runs List?_id={listID}&item=Patient/{p1},...&_elements=id
	// upstream and returns the number of distinct matched items.
	ListMatchCount(ctx context.Context, listID string, patientIDs []string) (int, *apperrors.AppError)

	// AppendPatientToList adds a reference to the newly created patient to
	// the named List resource.
	AppendPatientToList(ctx context.Context, listID, patientID string) *apperrors.AppError
}

// Factory builds a Checker instance for one request, given the verified
// token, the upstream store handle, and the compartment resolver. Factories
// MUST be thread-safe; they are constructed once and invoked from many
// workers (§5).
type Factory func(claims *jwtauth.VerifiedJWT, store Store, resolver *compartment.Resolver) (Checker, error)
