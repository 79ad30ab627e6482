package accesscheck

import (
	"context"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nathannewyen/fhir-gateway/internal/compartment"
	"github.com/nathannewyen/fhir-gateway/internal/jwtauth"
)

func TestSinglePatientCheckerGrantsOwnCompartment(t *testing.T) {
	resolver := compartment.NewResolver(compartment.PathConfig{"Observation": {"Observation.subject"}})
	checker, err := NewSinglePatientChecker(claimsWith("patient_id", "A"), nil, resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := viewFor(t, http.MethodGet, "/Observation?subject=A")
	decision, appErr := checker.CheckAccess(context.Background(), &EvalRequest{View: v, Compartment: compartment.NewSet("A")})
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if !decision.CanAccess {
		t.Error("expected access to be granted for the caller's own patient id")
	}
}

func TestSinglePatientCheckerDeniesOtherPatient(t *testing.T) {
	resolver := compartment.NewResolver(compartment.PathConfig{"Observation": {"Observation.subject"}})
	checker, _ := NewSinglePatientChecker(claimsWith("patient_id", "A"), nil, resolver)

	v := viewFor(t, http.MethodGet, "/Observation?subject=C")
	decision, _ := checker.CheckAccess(context.Background(), &EvalRequest{View: v, Compartment: compartment.NewSet("C")})
	if decision.CanAccess {
		t.Error("expected access to be denied for a different patient id")
	}
}

func TestSinglePatientCheckerRejectsPatientCreation(t *testing.T) {
	resolver := compartment.NewResolver(compartment.PathConfig{})
	checker, _ := NewSinglePatientChecker(claimsWith("patient_id", "A"), nil, resolver)

	v := viewFor(t, http.MethodPost, "/Patient")
	decision, appErr := checker.CheckAccess(context.Background(), &EvalRequest{View: v, Compartment: compartment.NewSet()})
	if appErr != nil {
		t.Fatalf("unexpected error: %v", appErr)
	}
	if decision.CanAccess {
		t.Error("expected POST /Patient to be disallowed for the single-patient checker")
	}
}

func TestSinglePatientCheckerRejectsChainedSearch(t *testing.T) {
	resolver := compartment.NewResolver(compartment.PathConfig{})
	checker, _ := NewSinglePatientChecker(claimsWith("patient_id", "A"), nil, resolver)

	v := viewFor(t, http.MethodGet, "/Observation?subject:Patient.name=A")
	_, appErr := checker.CheckAccess(context.Background(), &EvalRequest{View: v, Compartment: compartment.NewSet()})
	if appErr == nil {
		t.Fatal("expected InvalidRequest for chained search parameter")
	}
}

func TestNewSinglePatientCheckerRequiresClaim(t *testing.T) {
	if _, err := NewSinglePatientChecker(&jwtauth.VerifiedJWT{Claims: jwt.MapClaims{}}, nil, compartment.NewResolver(nil)); err == nil {
		t.Fatal("expected error when patient_id claim is missing")
	}
}
