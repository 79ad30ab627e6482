package accesscheck

import (
	"context"
	"fmt"
	"sync"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/nathannewyen/fhir-gateway/internal/compartment"
	"github.com/nathannewyen/fhir-gateway/internal/jwtauth"
)

// Registry maps access-checker names (the ACCESS_CHECKER configuration
// value) to factories. It stands in for the source's classpath-scanning
// plugin discovery: plugins are linked in at build time and enumerated
// explicitly here rather than discovered via reflection (§9 Design Notes).
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry builds a Registry preloaded with the two reference checkers
// ("list", "single-patient") and the DEV-only "permissive" checker.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("list", NewListChecker)
	r.Register("single-patient", NewSinglePatientChecker)
	r.Register("permissive", newPermissiveChecker)
	return r
}

// Register adds or replaces the factory for name. Safe for concurrent use,
// though in practice all registration happens once at startup.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Build constructs a Checker instance for the named plugin.
func (r *Registry) Build(name string, claims *jwtauth.VerifiedJWT, store Store, resolver *compartment.Resolver) (Checker, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no access checker registered under name %q", name)
	}
	return factory(claims, store, resolver)
}

// permissiveChecker grants every request it sees. It exists solely for local
// development (RUN_MODE=DEV) and is rejected by gwconfig.Validate outside
// that mode.
type permissiveChecker struct{}

func newPermissiveChecker(*jwtauth.VerifiedJWT, Store, *compartment.Resolver) (Checker, error) {
	return permissiveChecker{}, nil
}

func (permissiveChecker) CheckAccess(context.Context, *EvalRequest) (*Decision, *apperrors.AppError) {
	return &Decision{CanAccess: true}, nil
}
