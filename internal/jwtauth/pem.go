package jwtauth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"
)

// parsePEMKeySet builds a KeySet around a single PEM-encoded RSA public key,
// for issuers whose discovery document still exposes the legacy "public_key"
// attribute instead of a jwks_uri (§4.1).
func parsePEMKeySet(pemStr string) (*KeySet, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("public_key is not valid PEM")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, fmt.Errorf("parsing public_key: %w", err)
		}
		pub = cert.PublicKey
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public_key is not an RSA key")
	}

	return &KeySet{fetchedAt: time.Now(), single: rsaPub}, nil
}
