// Package gateway implements C8, the Authorization Interceptor: the
// per-request state machine that orchestrates every other component
// (§4.8): VERIFY → READ → COMPARTMENT → DECIDE → FORWARD → STREAM →
// POSTPROC. Discovery routes (.well-known/smart-configuration, metadata)
// are routed directly to C9 by cmd/server's router and never reach this
// handler, matching the DISCOVERY branch's "skip auth entirely" rule.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nathannewyen/fhir-gateway/internal/accesscheck"
	"github.com/nathannewyen/fhir-gateway/internal/allowedqueries"
	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/nathannewyen/fhir-gateway/internal/bundle"
	"github.com/nathannewyen/fhir-gateway/internal/compartment"
	"github.com/nathannewyen/fhir-gateway/internal/decision"
	"github.com/nathannewyen/fhir-gateway/internal/fhirreq"
	"github.com/nathannewyen/fhir-gateway/internal/httplog"
	"github.com/nathannewyen/fhir-gateway/internal/jwtauth"
	"github.com/rs/zerolog"
)

// Upstream is the subset of the Upstream FHIR Client (C7) the interceptor
// needs: one forward per request. *upstream.Client satisfies this.
type Upstream interface {
	Forward(ctx context.Context, v *fhirreq.RequestView, mut *accesscheck.RequestMutation) (*accesscheck.ForwardResult, *apperrors.AppError)
}

// TokenVerifier is the subset of the Token Verifier (C1) the interceptor
// needs. *jwtauth.Verifier satisfies this.
type TokenVerifier interface {
	VerifyBearer(ctx context.Context, authHeader string) (*jwtauth.VerifiedJWT, *apperrors.AppError)
}

// AuditEntry is one record of what the interceptor decided for a request,
// independent of any particular sink's storage shape.
type AuditEntry struct {
	RequestID  string
	Method     string
	Path       string
	Subject    string
	StatusCode int
	Outcome    string // "allowed", "denied", "error"
	Detail     string
}

// AuditRecorder persists AuditEntry values. Implementations must not block
// the response path; Record is called after the client response has
// already been written (or, on an early failure, after the error response).
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// noopAudit is used when no recorder is configured.
type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

// Interceptor wires C1/C2/C3/C6/C7/C10 together behind one http.Handler.
type Interceptor struct {
	Verifier    TokenVerifier
	Resolver    *compartment.Resolver
	Bundles     *bundle.Processor
	Allowed     *allowedqueries.Config
	Registry    *accesscheck.Registry
	CheckerName string
	Store       accesscheck.Store
	Upstream    Upstream
	Audit       AuditRecorder
	Logger      zerolog.Logger
}

// ServeHTTP runs the full INIT → VERIFY → READ → COMPARTMENT → DECIDE →
// FORWARD → STREAM → POSTPROC state machine for one request (§4.8).
func (i *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	audit := i.Audit
	if audit == nil {
		audit = noopAudit{}
	}

	// VERIFY
	verified, appErr := i.Verifier.VerifyBearer(ctx, r.Header.Get("Authorization"))
	if appErr != nil {
		i.fail(w, r, audit, appErr, "")
		return
	}

	// READ
	view, err := fhirreq.NewRequestView(r)
	if err != nil {
		i.fail(w, r, audit, apperrors.InvalidRequest("malformed request"), verified.Subject)
		return
	}

	// COMPARTMENT
	comp, appErr := i.resolveCompartment(ctx, view)
	if appErr != nil {
		i.fail(w, r, audit, appErr, verified.Subject)
		return
	}

	// DECIDE
	checker, buildErr := i.Registry.Build(i.CheckerName, verified, i.Store, i.Resolver)
	if buildErr != nil {
		i.fail(w, r, audit, apperrors.Internal("building access checker", buildErr), verified.Subject)
		return
	}
	pipeline := decision.NewPipeline(i.Allowed, checker)
	dec, appErr := pipeline.Decide(ctx, &accesscheck.EvalRequest{View: view, Compartment: comp})
	if appErr != nil {
		i.fail(w, r, audit, appErr, verified.Subject)
		return
	}
	if !dec.CanAccess {
		msg := fmt.Sprintf("User is not authorized to %s %s", view.Method, r.URL.String())
		i.fail(w, r, audit, apperrors.Forbidden(msg), verified.Subject)
		return
	}

	// FORWARD
	resp, appErr := i.Upstream.Forward(ctx, view, dec.Mutation)
	if appErr != nil {
		i.fail(w, r, audit, appErr, verified.Subject)
		return
	}

	// STREAM
	for key, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)

	// POSTPROC — only for a successful response the client actually
	// received; a disconnect before the response completed, or a
	// non-2xx upstream status, skips the continuation entirely.
	if dec.PostProcess != nil && ctx.Err() == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := dec.PostProcess(ctx, resp); err != nil {
			i.Logger.Warn().
				Str("request_id", httplog.IDFromContext(ctx)).
				Err(err).
				Msg("post-process continuation failed")
		}
	}

	audit.Record(ctx, AuditEntry{
		RequestID:  httplog.IDFromContext(ctx),
		Method:     view.Method,
		Path:       view.Path,
		Subject:    verified.Subject,
		StatusCode: resp.StatusCode,
		Outcome:    "allowed",
	})
}

// resolveCompartment runs the READ→COMPARTMENT transition (§4.8): a
// root-level transaction bundle goes to C10, a single resource's
// compartment is resolved through C3's path (reads) or body (writes) entry
// point.
func (i *Interceptor) resolveCompartment(ctx context.Context, view *fhirreq.RequestView) (compartment.Set, *apperrors.AppError) {
	effMethod := view.EffectiveMethod()

	if view.IsRootLevel() && effMethod == http.MethodPost {
		return i.Bundles.Process(ctx, view.Body, nil)
	}

	set, appErr := i.Resolver.ResolveFromPathAndParams(view)
	if appErr != nil {
		return nil, appErr
	}

	if (effMethod == http.MethodPost || effMethod == http.MethodPut) && view.ResourceType != "" {
		if err := fhirreq.ValidateResourceBody(view.ResourceType, view.Body); err != nil {
			return nil, apperrors.InvalidRequest(err.Error())
		}

		bodySet, appErr := i.Resolver.ResolveFromBody(view.ResourceType, view.Body)
		if appErr != nil {
			return nil, appErr
		}
		return bodySet, nil
	}

	return set, nil
}

func (i *Interceptor) fail(w http.ResponseWriter, r *http.Request, audit AuditRecorder, appErr *apperrors.AppError, subject string) {
	httplog.WriteError(w, r, i.Logger, appErr)

	outcome := "error"
	if appErr.Class == apperrors.ClassForbidden {
		outcome = "denied"
	}
	audit.Record(r.Context(), AuditEntry{
		RequestID:  httplog.IDFromContext(r.Context()),
		Method:     r.Method,
		Path:       r.URL.Path,
		Subject:    subject,
		StatusCode: appErr.StatusCode,
		Outcome:    outcome,
		Detail:     appErr.Message,
	})
}
