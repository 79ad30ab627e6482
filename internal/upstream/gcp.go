package upstream

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// earlyRefresh is how far ahead of actual expiry the GCP credential source
// refreshes its access token (§4.7: "refreshes at >= 60s before expiry").
const earlyRefresh = 60 * time.Second

// cloudHealthcareScope is the OAuth scope a Google Cloud Healthcare FHIR
// store expects on inbound bearer tokens.
const cloudHealthcareScope = "https://www.googleapis.com/auth/cloud-platform"

// GCPCredentials supplies an OAuth2 access token for a Google Cloud
// Healthcare API FHIR store, refreshed at least earlyRefresh before the
// token's actual expiry so an in-flight request never races a stale token.
type GCPCredentials struct {
	source oauth2.TokenSource
}

// NewGCPCredentials loads the service account key at serviceAccountFile (the
// deployment's GCP_SERVICE_ACCOUNT_FILE configuration) and wraps its token
// source so it proactively refreshes ahead of expiry. An empty
// serviceAccountFile falls back to application default credential discovery
// (workload identity or the metadata server), for deployments that run on
// GCP infrastructure directly rather than a mounted key file.
func NewGCPCredentials(ctx context.Context, serviceAccountFile string) (*GCPCredentials, error) {
	var base *google.Credentials
	var err error
	if serviceAccountFile != "" {
		data, readErr := os.ReadFile(serviceAccountFile)
		if readErr != nil {
			return nil, fmt.Errorf("reading GCP service account file: %w", readErr)
		}
		base, err = google.CredentialsFromJSON(ctx, data, cloudHealthcareScope)
	} else {
		base, err = google.FindDefaultCredentials(ctx, cloudHealthcareScope)
	}
	if err != nil {
		return nil, fmt.Errorf("loading GCP credentials: %w", err)
	}
	reused := oauth2.ReuseTokenSourceWithExpiry(nil, base.TokenSource, earlyRefresh)
	return &GCPCredentials{source: reused}, nil
}

// AuthHeader implements CredentialSource.
func (g *GCPCredentials) AuthHeader(context.Context) (string, error) {
	token, err := g.source.Token()
	if err != nil {
		return "", fmt.Errorf("refreshing GCP access token: %w", err)
	}
	return token.Type() + " " + token.AccessToken, nil
}
