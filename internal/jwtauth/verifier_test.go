package jwtauth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testIDP spins up an httptest server that serves both an OIDC discovery
// document and a JWKS endpoint backed by a single generated RSA key pair.
type testIDP struct {
	server     *httptest.Server
	privateKey *rsa.PrivateKey
	kid        string
}

func newTestIDP(t *testing.T) *testIDP {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}

	idp := &testIDP{privateKey: key, kid: "test-key-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":   idp.server.URL,
			"jwks_uri": idp.server.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{
				{
					"kty": "RSA",
					"kid": idp.kid,
					"alg": "RS256",
					"use": "sig",
					"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
					"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
				},
			},
		})
	})

	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func (idp *testIDP) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = idp.kid
	signed, err := token.SignedString(idp.privateKey)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestVerifyBearerAcceptsValidToken(t *testing.T) {
	idp := newTestIDP(t)
	v := NewVerifier(idp.server.URL, "", false)

	token := idp.sign(t, jwt.MapClaims{
		"iss":         idp.server.URL,
		"sub":         "practitioner-1",
		"exp":         time.Now().Add(time.Hour).Unix(),
		"patient_list": "List/123",
	})

	verified, appErr := v.VerifyBearer(t.Context(), "Bearer "+token)
	if appErr != nil {
		t.Fatalf("expected valid token to verify, got %v", appErr)
	}
	if verified.Subject != "practitioner-1" {
		t.Errorf("expected subject practitioner-1, got %s", verified.Subject)
	}
	if verified.StringClaim("patient_list") != "List/123" {
		t.Errorf("expected patient_list claim List/123, got %s", verified.StringClaim("patient_list"))
	}
}

func TestVerifyBearerRejectsMissingPrefix(t *testing.T) {
	idp := newTestIDP(t)
	v := NewVerifier(idp.server.URL, "", false)

	token := idp.sign(t, jwt.MapClaims{"iss": idp.server.URL, "exp": time.Now().Add(time.Hour).Unix()})

	_, appErr := v.VerifyBearer(t.Context(), token)
	if appErr == nil {
		t.Fatal("expected error for missing Bearer prefix")
	}
}

func TestVerifyBearerRejectsWrongIssuer(t *testing.T) {
	idp := newTestIDP(t)
	v := NewVerifier(idp.server.URL, "", false)

	token := idp.sign(t, jwt.MapClaims{
		"iss": "https://some-other-issuer.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, appErr := v.VerifyBearer(t.Context(), "Bearer "+token)
	if appErr == nil {
		t.Fatal("expected error for mismatched issuer")
	}
}

func TestVerifyBearerAllowsMismatchedIssuerInDevMode(t *testing.T) {
	idp := newTestIDP(t)
	v := NewVerifier(idp.server.URL, "", true)

	token := idp.sign(t, jwt.MapClaims{
		"iss": "https://some-other-issuer.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, appErr := v.VerifyBearer(t.Context(), "Bearer "+token)
	if appErr != nil {
		t.Fatalf("expected dev mode to tolerate issuer mismatch, got %v", appErr)
	}
}

func TestVerifyBearerRejectsExpiredToken(t *testing.T) {
	idp := newTestIDP(t)
	v := NewVerifier(idp.server.URL, "", false)

	token := idp.sign(t, jwt.MapClaims{
		"iss": idp.server.URL,
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, appErr := v.VerifyBearer(t.Context(), "Bearer "+token)
	if appErr == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestVerifyBearerRejectsUnknownKid(t *testing.T) {
	idp := newTestIDP(t)
	v := NewVerifier(idp.server.URL, "", false)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": idp.server.URL,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "no-such-key"
	signed, err := token.SignedString(otherKey)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	_, appErr := v.VerifyBearer(t.Context(), "Bearer "+signed)
	if appErr == nil {
		t.Fatal("expected error for unknown kid")
	}
}

func TestVerifyBearerRejectsEmptyHeader(t *testing.T) {
	idp := newTestIDP(t)
	v := NewVerifier(idp.server.URL, "", false)

	_, appErr := v.VerifyBearer(t.Context(), "")
	if appErr == nil {
		t.Fatal("expected error for empty Authorization header")
	}
}

func TestStringSliceClaimAcceptsArrayAndScalar(t *testing.T) {
	v := &VerifiedJWT{Claims: jwt.MapClaims{
		"array":  []interface{}{"a", "b"},
		"scalar": "c",
	}}
	if got := v.StringSliceClaim("array"); fmt.Sprint(got) != "[a b]" {
		t.Errorf("expected [a b], got %v", got)
	}
	if got := v.StringSliceClaim("scalar"); fmt.Sprint(got) != "[c]" {
		t.Errorf("expected [c], got %v", got)
	}
	if got := v.StringSliceClaim("missing"); got != nil {
		t.Errorf("expected nil for missing claim, got %v", got)
	}
}
