package httplog

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestIDSetsHeaderAndContext(t *testing.T) {
	var sawID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawID = IDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/Patient/1", nil)
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header to be set")
	}
	if sawID != rec.Header().Get("X-Request-ID") {
		t.Errorf("expected context request ID to match header, got %q vs %q", sawID, rec.Header().Get("X-Request-ID"))
	}
}

func TestRecovererCatchesPanic(t *testing.T) {
	logger := zerolog.Nop()
	handler := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/Patient/1", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500 after recovered panic, got %d", rec.Code)
	}
}

func TestLoggerCapturesStatus(t *testing.T) {
	logger := zerolog.Nop()
	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("denied"))
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/Patient/1", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403 passthrough, got %d", rec.Code)
	}
}
