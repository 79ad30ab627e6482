package accesscheck

import (
	"context"
	"fmt"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/nathannewyen/fhir-gateway/internal/compartment"
	"github.com/nathannewyen/fhir-gateway/internal/fhirreq"
	"github.com/nathannewyen/fhir-gateway/internal/jwtauth"
)

// SinglePatientChecker pins the caller to exactly one patient id, read from
// the patient_id token claim (§4.5 "Single-patient").
type SinglePatientChecker struct {
	patientID string
	resolver  *compartment.Resolver
}

// NewSinglePatientChecker is the Factory for SinglePatientChecker. It
// requires a non-empty patient_id claim on the verified token.
func NewSinglePatientChecker(claims *jwtauth.VerifiedJWT, _ Store, resolver *compartment.Resolver) (Checker, error) {
	patientID := claims.StringClaim("patient_id")
	if patientID == "" {
		return nil, fmt.Errorf("token is missing the patient_id claim required by the single-patient access checker")
	}
	return &SinglePatientChecker{patientID: patientID, resolver: resolver}, nil
}

func (c *SinglePatientChecker) CheckAccess(_ context.Context, req *EvalRequest) (*Decision, *apperrors.AppError) {
	v := req.View

	if reason := fhirreq.ForbiddenSearchShape(v); reason != "" {
		return nil, apperrors.InvalidRequest(reason)
	}
	if appErr := rejectUnsupportedType(v, c.resolver); appErr != nil {
		return nil, appErr
	}

	if v.ResourceType == "Patient" && v.EffectiveMethod() == "POST" {
		return &Decision{CanAccess: false}, nil
	}

	own := compartment.NewSet(c.patientID)
	return &Decision{CanAccess: req.Compartment.Equals(own)}, nil
}
