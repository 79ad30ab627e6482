// Package audit implements the gateway's AUDIT_SINK choices: a
// zerolog-backed sink always available regardless of configuration, and
// two database-backed sinks (Postgres, MongoDB) adapted from the retrieval
// pack's own connection helpers. Every sink satisfies gateway.AuditRecorder.
package audit

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nathannewyen/fhir-gateway/internal/gateway"
)

// LogSink records every AuditEntry as one structured zerolog line. It is
// the default sink (AUDIT_SINK=log) and requires no external dependency.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink builds a LogSink writing through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record implements gateway.AuditRecorder.
func (s *LogSink) Record(_ context.Context, entry gateway.AuditEntry) {
	event := s.logger.Info()
	switch entry.Outcome {
	case "denied":
		event = s.logger.Warn()
	case "error":
		if entry.StatusCode >= 500 {
			event = s.logger.Error()
		} else {
			event = s.logger.Warn()
		}
	}
	event.
		Str("request_id", entry.RequestID).
		Str("method", entry.Method).
		Str("path", entry.Path).
		Str("subject", entry.Subject).
		Int("status", entry.StatusCode).
		Str("outcome", entry.Outcome).
		Str("detail", entry.Detail).
		Msg("access decision")
}
