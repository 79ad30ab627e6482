// Package jwtauth implements C1, the Token Verifier: it validates the bearer
// JWT on every incoming request against the resource server's configured
// issuer, resolving signing keys through a cached JWKS lookup (§3, §4.1).
package jwtauth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
)

// VerifiedJWT is the verified token's claim set, exposed to downstream
// components (compartment resolution, access checkers) without re-parsing.
type VerifiedJWT struct {
	Issuer  string
	Subject string
	Claims  jwt.MapClaims
}

// StringClaim returns claims[name] as a string, or "" if absent or not a string.
func (v *VerifiedJWT) StringClaim(name string) string {
	s, _ := v.Claims[name].(string)
	return s
}

// StringSliceClaim returns claims[name] as a []string. It accepts both a JSON
// array and, for convenience, a single JSON string treated as a one-element
// slice, since either shape shows up in the wild for list-valued claims.
func (v *VerifiedJWT) StringSliceClaim(name string) []string {
	switch val := v.Claims[name].(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{val}
	default:
		return nil
	}
}

// Verifier validates bearer tokens against a single configured issuer.
type Verifier struct {
	issuer   string
	devMode  bool
	keyCache *KeyCache
	leeway   time.Duration
}

// NewVerifier builds a Verifier. devMode relaxes the issuer-claim check,
// matching spec.md §4.1's allowance for local/dev runs against IdPs that
// issue tokens under a different hostname than TOKEN_ISSUER.
func NewVerifier(issuer, wellKnownPath string, devMode bool) *Verifier {
	discovery := NewDiscoveryCache(wellKnownPath)
	return &Verifier{
		issuer:   issuer,
		devMode:  devMode,
		keyCache: NewKeyCache(discovery, 0),
		leeway:   5 * time.Second,
	}
}

// VerifyBearer validates the raw Authorization header value. It enforces:
// the "Bearer " prefix (P1), RSA signature verification against the
// issuer's published keys (P1), expiry (P1), and, outside dev mode, that the
// token's iss claim matches the configured TOKEN_ISSUER (P2).
func (v *Verifier) VerifyBearer(ctx context.Context, authHeader string) (*VerifiedJWT, *apperrors.AppError) {
	if authHeader == "" {
		return nil, apperrors.Unauthorized("missing Authorization header", nil)
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) || len(authHeader) == len(prefix) {
		return nil, apperrors.Unauthorized("Authorization header must be a Bearer token", nil)
	}
	raw := strings.TrimPrefix(authHeader, prefix)

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		return v.keyCache.Lookup(ctx, v.issuer, kid)
	}, jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}), jwt.WithLeeway(v.leeway))

	if err != nil || !token.Valid {
		return nil, apperrors.Unauthorized("token signature or expiry check failed", err)
	}

	iss, _ := claims.GetIssuer()
	if !v.devMode && iss != v.issuer {
		return nil, apperrors.Unauthorized(fmt.Sprintf("token issuer %q does not match configured issuer", iss), nil)
	}

	sub, _ := claims.GetSubject()
	return &VerifiedJWT{Issuer: iss, Subject: sub, Claims: claims}, nil
}
