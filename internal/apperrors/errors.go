// Package apperrors defines the gateway's error classes and their HTTP
// status mapping, per the five classes the authorization pipeline can raise:
// Authentication, InvalidRequest, Forbidden, UpstreamError, Internal.
package apperrors

import (
	"fmt"
	"net/http"
)

// Class identifies which of the pipeline's error classes an AppError belongs to.
type Class string

const (
	ClassAuthentication  Class = "authentication"
	ClassInvalidRequest  Class = "invalid_request"
	ClassForbidden       Class = "forbidden"
	ClassUpstream        Class = "upstream_error"
	ClassInternal        Class = "internal"
)

// AppError represents a pipeline error carrying the HTTP status it maps to.
type AppError struct {
	Class      Class
	Message    string
	StatusCode int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Unauthorized builds an Authentication-class error (§7 class 1). Per spec,
// the body returned to the client carries no details; Message is for logs only.
func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Class:      ClassAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Err:        err,
	}
}

// InvalidRequest builds an InvalidRequest-class error (§7 class 2): resource/type
// mismatch, forbidden query shape, unresolvable patient, disallowed method, malformed bundle.
func InvalidRequest(message string) *AppError {
	return &AppError{
		Class:      ClassInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// Forbidden builds the policy-denial error (§7 class 3). Callers should format
// Message as "User is not authorized to {METHOD} {URL}" per spec.
func Forbidden(message string) *AppError {
	return &AppError{
		Class:      ClassForbidden,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// UpstreamBadGateway wraps a network failure talking to the upstream FHIR store (§7 class 4).
func UpstreamBadGateway(err error) *AppError {
	return &AppError{
		Class:      ClassUpstream,
		Message:    "upstream request failed",
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// UpstreamTimeout wraps an upstream timeout (§7 class 4).
func UpstreamTimeout(err error) *AppError {
	return &AppError{
		Class:      ClassUpstream,
		Message:    "upstream request timed out",
		StatusCode: http.StatusGatewayTimeout,
		Err:        err,
	}
}

// Internal builds a programming-error/misconfiguration error (§7 class 5).
// Details are logged, never returned to the client.
func Internal(message string, err error) *AppError {
	return &AppError{
		Class:      ClassInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// Wrap preserves an existing AppError's class/status while prefixing its message,
// or converts a generic error into an Internal AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Class:      appErr.Class,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			StatusCode: appErr.StatusCode,
			Err:        appErr.Err,
		}
	}
	return Internal(message, err)
}

// As reports whether err is an *AppError, returning it if so.
func As(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}
