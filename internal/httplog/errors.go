package httplog

import (
	"encoding/json"
	"net/http"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/rs/zerolog"
)

// errorResponse is the JSON envelope used for every class except
// Authentication (no body details, §4.1) and Forbidden (the literal
// "User is not authorized..." text body, §4.8 DECIDE).
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError logs err at a level matched to its status and writes the
// client-facing response the spec's error taxonomy (§7) calls for.
func WriteError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err *apperrors.AppError) {
	requestID := IDFromContext(r.Context())

	event := logger.Warn()
	if err.StatusCode >= 500 {
		event = logger.Error()
	}
	event.
		Str("request_id", requestID).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Str("class", string(err.Class)).
		Int("status", err.StatusCode).
		Err(err.Err).
		Msg(err.Message)

	switch err.Class {
	case apperrors.ClassAuthentication:
		// No body details on an authentication failure (§4.1).
		w.WriteHeader(err.StatusCode)
	case apperrors.ClassForbidden:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(err.StatusCode)
		w.Write([]byte(err.Message))
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(err.StatusCode)
		json.NewEncoder(w).Encode(errorResponse{
			Error: errorDetail{
				Code:      string(err.Class),
				Message:   err.Message,
				RequestID: requestID,
			},
		})
	}
}
