package jwtauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// jwk is a single entry of a JSON Web Key Set, restricted to the RSA fields
// the gateway's supported signing algorithms (RS256/RS384/RS512) require.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// KeySet is a resolved JWKS: RSA public keys indexed by key ID. When an
// issuer publishes a single legacy "public_key" PEM instead of a JWKS
// document, single holds that key and is matched regardless of kid.
type KeySet struct {
	fetchedAt time.Time
	keys      map[string]*rsa.PublicKey
	single    *rsa.PublicKey
}

func (ks *KeySet) lookup(kid string) (*rsa.PublicKey, bool) {
	if ks == nil {
		return nil, false
	}
	if key, ok := ks.keys[kid]; ok {
		return key, true
	}
	if ks.single != nil {
		return ks.single, true
	}
	return nil, false
}

// KeyCache fetches an issuer's JWKS document (or, when the discovery document
// carries a legacy "public_key" PEM instead of a jwks_uri, parses that) and
// caches the resolved key set. §3's Signing Key Cache requires that on a
// cache miss exactly one goroutine performs the refresh while others wait for
// its result; singleflight.Group provides that guarantee per issuer.
type KeyCache struct {
	discovery *DiscoveryCache
	client    *http.Client
	ttl       time.Duration

	mu   sync.RWMutex
	sets map[string]*KeySet

	group singleflight.Group
}

// NewKeyCache builds a key cache backed by the given discovery cache. ttl
// bounds how long a resolved key set is trusted; once it has expired, the
// next Lookup refreshes it synchronously before answering. Zero disables
// time-based expiry (a miss on the requested kid still triggers a refresh).
func NewKeyCache(discovery *DiscoveryCache, ttl time.Duration) *KeyCache {
	return &KeyCache{
		discovery: discovery,
		client:    &http.Client{Timeout: 10 * time.Second},
		ttl:       ttl,
		sets:      make(map[string]*KeySet),
	}
}

// Lookup resolves the RSA public key for (issuer, kid). On a cold cache, an
// expired entry, or a kid the cached set doesn't contain, it refreshes the
// key set once (collapsing concurrent callers) before giving up.
func (c *KeyCache) Lookup(ctx context.Context, issuer, kid string) (*rsa.PublicKey, error) {
	if ks := c.cached(issuer); ks != nil {
		if key, ok := ks.lookup(kid); ok {
			return key, nil
		}
	}

	ks, err := c.refresh(ctx, issuer)
	if err != nil {
		return nil, err
	}
	key, ok := ks.lookup(kid)
	if !ok {
		return nil, fmt.Errorf("no signing key with kid %q for issuer %s", kid, issuer)
	}
	return key, nil
}

func (c *KeyCache) cached(issuer string) *KeySet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ks, ok := c.sets[issuer]
	if !ok {
		return nil
	}
	if c.ttl > 0 && time.Since(ks.fetchedAt) > c.ttl {
		return nil
	}
	return ks
}

func (c *KeyCache) refresh(ctx context.Context, issuer string) (*KeySet, error) {
	result, err, _ := c.group.Do(issuer, func() (interface{}, error) {
		doc, err := c.discovery.Get(ctx, issuer)
		if err != nil {
			return nil, fmt.Errorf("resolving discovery document for %s: %w", issuer, err)
		}

		var ks *KeySet
		if doc.JWKSURI != "" {
			ks, err = c.fetchJWKS(ctx, doc.JWKSURI)
		} else {
			ks, err = parsePEMKeySet(doc.PublicKeyPEM)
		}
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.sets[issuer] = ks
		c.mu.Unlock()
		return ks, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*KeySet), nil
}

func (c *KeyCache) fetchJWKS(ctx context.Context, jwksURI string) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURI, nil)
	if err != nil {
		return nil, fmt.Errorf("building JWKS request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS from %s: %w", jwksURI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint %s returned status %d", jwksURI, resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decoding JWKS document: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("JWKS document at %s contained no usable RSA keys", jwksURI)
	}
	return &KeySet{fetchedAt: time.Now(), keys: keys}, nil
}

func rsaPublicKeyFromJWK(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus for kid %s: %w", k.Kid, err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent for kid %s: %w", k.Kid, err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}
