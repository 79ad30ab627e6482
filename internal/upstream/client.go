// Package upstream implements C7, the Upstream FHIR Client: it forwards an
// approved request to the backing FHIR store, injects store credentials,
// streams the response, and rewrites the store's own base URL out of
// response bodies so hypermedia links point back at the proxy (§4.7).
package upstream

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/nathannewyen/fhir-gateway/internal/accesscheck"
	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/nathannewyen/fhir-gateway/internal/fhirreq"
)

// Response is the upstream's answer to a forwarded request. It is the same
// shape C5's PostProcess continuation expects, so a Client's result can be
// handed straight to a Decision's post-process step without conversion.
type Response = accesscheck.ForwardResult

// CredentialSource supplies the Authorization header value the client should
// attach to each outbound request, or "" if the backend needs none.
type CredentialSource interface {
	AuthHeader(ctx context.Context) (string, error)
}

// forwardedRequestHeaders lists the only request headers copied upstream
// (§4.7). Content-Length, Authorization, and Host are deliberately excluded:
// the HTTP client computes Content-Length itself, Authorization is replaced
// by the credential source, and Host belongs to the upstream connection.
var forwardedRequestHeaders = []string{
	"Content-Type", "Accept", "Accept-Charset", "If-Match", "If-None-Match", "Prefer",
}

// forwardedResponseHeaders lists the only response headers copied back.
var forwardedResponseHeaders = []string{
	"Content-Type", "ETag", "Location", "Last-Modified",
}

// Client forwards requests to one upstream FHIR store.
type Client struct {
	base       *url.URL
	baseLit    string
	publicBase string
	httpClient *http.Client
	creds      CredentialSource
}

// New builds a Client. baseURL is the upstream FHIR store's own base (e.g.
// "https://hapi.example.org/fhir"); publicBaseURL is this proxy's own
// externally-visible base, substituted into response bodies in its place.
func New(baseURL, publicBaseURL string, timeout time.Duration, creds CredentialSource) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		base:       parsed,
		baseLit:    strings.TrimRight(baseURL, "/"),
		publicBase: strings.TrimRight(publicBaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		creds:      creds,
	}, nil
}

// Forward sends v's method/path/query/body/allow-listed headers upstream,
// applying mut's query and header overrides first (the decision's request
// mutation, if any), and returns the rewritten response.
func (c *Client) Forward(ctx context.Context, v *fhirreq.RequestView, mut *accesscheck.RequestMutation) (*Response, *apperrors.AppError) {
	target := *c.base
	target.Path = path.Join(c.base.Path, v.Path)

	query := url.Values{}
	for k, vals := range v.Query {
		query[k] = append([]string(nil), vals...)
	}
	if mut != nil {
		for k, val := range mut.QueryParams {
			query.Set(k, val)
		}
	}
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, v.Method, target.String(), bytes.NewReader(v.Body))
	if err != nil {
		return nil, apperrors.Internal("building upstream request", err)
	}
	for _, h := range forwardedRequestHeaders {
		if val := v.Headers.Get(h); val != "" {
			req.Header.Set(h, val)
		}
	}
	if mut != nil {
		for k, val := range mut.Headers {
			req.Header.Set(k, val)
		}
	}

	if err := c.attachCredentials(ctx, req); err != nil {
		return nil, err
	}

	resp, body, appErr := c.do(req)
	if appErr != nil {
		return nil, appErr
	}

	headers := http.Header{}
	for _, h := range forwardedResponseHeaders {
		if val := resp.Header.Get(h); val != "" {
			headers.Set(h, val)
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       c.rewriteBase(body),
	}, nil
}

// rewriteBase applies the literal upstream-base-URL-to-public-base-URL
// substitution required of every streamed response body (§3 Upstream Client
// State invariant).
func (c *Client) rewriteBase(body []byte) []byte {
	if c.baseLit == "" {
		return body
	}
	return bytes.ReplaceAll(body, []byte(c.baseLit), []byte(c.publicBase))
}

func (c *Client) attachCredentials(ctx context.Context, req *http.Request) *apperrors.AppError {
	if c.creds == nil {
		return nil
	}
	header, err := c.creds.AuthHeader(ctx)
	if err != nil {
		return apperrors.UpstreamBadGateway(err)
	}
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return nil
}

// do executes req and reads its body fully, classifying network failures as
// upstream errors rather than letting them surface as raw net/http errors.
func (c *Client) do(req *http.Request) (*http.Response, []byte, *apperrors.AppError) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
			return nil, nil, apperrors.UpstreamTimeout(err)
		}
		return nil, nil, apperrors.UpstreamBadGateway(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, apperrors.UpstreamBadGateway(err)
	}
	return resp, body, nil
}
