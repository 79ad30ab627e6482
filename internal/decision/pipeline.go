// Package decision implements C6, the Access Decision Pipeline: it runs the
// Allowed-Queries Checker before the access-checker plugin and carries the
// plugin's post-process continuation through to the caller (§4.6).
package decision

import (
	"context"

	"github.com/nathannewyen/fhir-gateway/internal/accesscheck"
	"github.com/nathannewyen/fhir-gateway/internal/allowedqueries"
	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
)

// Pipeline is decide(request) = allowed-match(request) ?? plugin.check(request) ?? DENY.
type Pipeline struct {
	allowed *allowedqueries.Config
	checker accesscheck.Checker
}

// NewPipeline builds a Pipeline from the loaded allow-list configuration and
// the access-checker instance constructed for this request.
func NewPipeline(allowed *allowedqueries.Config, checker accesscheck.Checker) *Pipeline {
	return &Pipeline{allowed: allowed, checker: checker}
}

// Decide runs the pipeline. A match against the allow-list grants without
// ever consulting the plugin (P8); otherwise the plugin's decision is
// returned as-is (including its InvalidRequest errors, if any).
func (p *Pipeline) Decide(ctx context.Context, req *accesscheck.EvalRequest) (*accesscheck.Decision, *apperrors.AppError) {
	if p.allowed.Matches(req.View) {
		return &accesscheck.Decision{CanAccess: true}, nil
	}
	return p.checker.CheckAccess(ctx, req)
}
