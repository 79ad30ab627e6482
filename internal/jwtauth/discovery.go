package jwtauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Discovery is the subset of an OIDC well-known configuration document the
// gateway consumes: the JWKS URI used for key discovery (§4.1), plus the
// fields C9 re-exposes on .well-known/smart-configuration.
type Discovery struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	JWKSURI                       string   `json:"jwks_uri"`
	PublicKeyPEM                  string   `json:"public_key"` // legacy non-JWKS attribute, §4.1
	GrantTypesSupported           []string `json:"grant_types_supported"`
	ResponseTypesSupported        []string `json:"response_types_supported"`
	SubjectTypesSupported         []string `json:"subject_types_supported"`
	IDTokenSigningAlgValues       []string `json:"id_token_signing_alg_values_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
}

// DiscoveryCache fetches and caches an issuer's well-known configuration
// document. A document is populated lazily on first use (§3 Signing Key Cache)
// and shared process-wide; concurrent first-fetches collapse into one HTTP
// call via singleflight, matching the single-writer discipline of §5.
type DiscoveryCache struct {
	wellKnownPath string
	client        *http.Client

	mu    sync.RWMutex
	byIss map[string]*Discovery

	group singleflight.Group
}

// NewDiscoveryCache builds a cache that fetches "<issuer>/<wellKnownPath>" on miss.
func NewDiscoveryCache(wellKnownPath string) *DiscoveryCache {
	if wellKnownPath == "" {
		wellKnownPath = ".well-known/openid-configuration"
	}
	return &DiscoveryCache{
		wellKnownPath: wellKnownPath,
		client:        &http.Client{Timeout: 10 * time.Second},
		byIss:         make(map[string]*Discovery),
	}
}

// Get returns the cached discovery document for issuer, fetching it if absent.
func (c *DiscoveryCache) Get(ctx context.Context, issuer string) (*Discovery, error) {
	c.mu.RLock()
	doc, ok := c.byIss[issuer]
	c.mu.RUnlock()
	if ok {
		return doc, nil
	}

	result, err, _ := c.group.Do(issuer, func() (interface{}, error) {
		// Double-check: another goroutine may have populated the cache while
		// we waited to enter the singleflight group.
		c.mu.RLock()
		if doc, ok := c.byIss[issuer]; ok {
			c.mu.RUnlock()
			return doc, nil
		}
		c.mu.RUnlock()

		fetched, err := c.fetch(ctx, issuer)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.byIss[issuer] = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Discovery), nil
}

// Invalidate drops a cached document, forcing a re-fetch on next Get.
// KeyCache does not call it: a token with an unknown key ID refetches the
// JWKS from the cached document's jwks_uri without re-fetching the document.
func (c *DiscoveryCache) Invalidate(issuer string) {
	c.mu.Lock()
	delete(c.byIss, issuer)
	c.mu.Unlock()
}

func (c *DiscoveryCache) fetch(ctx context.Context, issuer string) (*Discovery, error) {
	url := strings.TrimRight(issuer, "/") + "/" + strings.TrimLeft(c.wellKnownPath, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building discovery request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching discovery document from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint %s returned status %d", url, resp.StatusCode)
	}

	var doc Discovery
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding discovery document: %w", err)
	}
	if doc.JWKSURI == "" && doc.PublicKeyPEM == "" {
		return nil, fmt.Errorf("discovery document for %s has neither jwks_uri nor public_key", issuer)
	}
	return &doc, nil
}
