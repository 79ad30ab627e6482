package accesscheck

import (
	"context"
	"fmt"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/nathannewyen/fhir-gateway/internal/compartment"
	"github.com/nathannewyen/fhir-gateway/internal/fhirreq"
	"github.com/nathannewyen/fhir-gateway/internal/jwtauth"
)

// ListChecker resolves the patient_list token claim to a FHIR List resource
// upstream and grants access when the request's compartment is a subset of
// the list's members (§4.5 "List-backed").
type ListChecker struct {
	listID   string
	store    Store
	resolver *compartment.Resolver
}

// NewListChecker is the Factory for ListChecker. It requires a non-empty
// patient_list claim on the verified token.
func NewListChecker(claims *jwtauth.VerifiedJWT, store Store, resolver *compartment.Resolver) (Checker, error) {
	listID := claims.StringClaim("patient_list")
	if listID == "" {
		return nil, fmt.Errorf("token is missing the patient_list claim required by the list-backed access checker")
	}
	return &ListChecker{listID: listID, store: store, resolver: resolver}, nil
}

func (c *ListChecker) CheckAccess(ctx context.Context, req *EvalRequest) (*Decision, *apperrors.AppError) {
	v := req.View

	if reason := fhirreq.ForbiddenSearchShape(v); reason != "" {
		return nil, apperrors.InvalidRequest(reason)
	}
	if appErr := rejectUnsupportedType(v, c.resolver); appErr != nil {
		return nil, appErr
	}

	isNew, appErr := isNewPatientWrite(ctx, v, c.store)
	if appErr != nil {
		return nil, appErr
	}
	if isNew {
		listID := c.listID
		store := c.store
		pathID := v.ID
		return &Decision{
			CanAccess: true,
			PostProcess: func(ctx context.Context, result *ForwardResult) error {
				newID := pathID
				if newID == "" {
					newID = extractCreatedID(result)
				}
				if newID == "" {
					return fmt.Errorf("could not determine id of newly created patient to append to list %s", listID)
				}
				if appErr := store.AppendPatientToList(ctx, listID, newID); appErr != nil {
					return appErr
				}
				return nil
			},
		}, nil
	}

	if req.Compartment.Empty() {
		return &Decision{CanAccess: false}, nil
	}

	patientIDs := req.Compartment.Slice()
	matched, appErr := c.store.ListMatchCount(ctx, c.listID, patientIDs)
	if appErr != nil {
		return nil, appErr
	}
	return &Decision{CanAccess: matched > 0 && matched == len(patientIDs)}, nil
}
