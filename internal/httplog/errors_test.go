package httplog

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/rs/zerolog"
)

func TestWriteErrorAuthenticationHasNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/Patient/1", nil)
	WriteError(rec, req, zerolog.Nop(), apperrors.Unauthorized("bad token", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty per spec's no-details rule", rec.Body.String())
	}
}

func TestWriteErrorForbiddenUsesLiteralTextBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/Patient/9", nil)
	WriteError(rec, req, zerolog.Nop(), apperrors.Forbidden("User is not authorized to DELETE /Patient/9"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if rec.Body.String() != "User is not authorized to DELETE /Patient/9" {
		t.Errorf("body = %q, want the literal message", rec.Body.String())
	}
}

func TestWriteErrorOtherClassesUseJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/Observation", nil)
	WriteError(rec, req, zerolog.Nop(), apperrors.InvalidRequest("chained search parameters are not supported"))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chained search parameters") {
		t.Errorf("body = %q, want the message embedded in a JSON envelope", rec.Body.String())
	}
}
