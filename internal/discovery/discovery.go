// Package discovery implements C9, the Discovery/Capability Handler: it
// serves ".well-known/smart-configuration" synthesized from the issuer's own
// discovery document, and a patched copy of the upstream FHIR store's
// "metadata" CapabilityStatement (§4.9). Both routes bypass authentication
// entirely (§4.8 DISCOVERY).
package discovery

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nathannewyen/fhir-gateway/internal/accesscheck"
	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
	"github.com/nathannewyen/fhir-gateway/internal/fhirreq"
	"github.com/nathannewyen/fhir-gateway/internal/httplog"
	"github.com/nathannewyen/fhir-gateway/internal/jwtauth"
	"github.com/rs/zerolog"
)

// oauthURIsExtensionURL is the SMART-on-FHIR StructureDefinition that names
// a CapabilityStatement security element's nested authorize/token URIs.
const oauthURIsExtensionURL = "http://fhir-registry.smarthealthit.org/StructureDefinition/oauth-uris"

// restSecurityServiceSystem is the code system the injected security
// service entry is coded against (§4.9).
const restSecurityServiceSystem = "http://terminology.hl7.org/CodeSystem/restful-security-service"

// MetadataFetcher is the subset of the Upstream FHIR Client (C7) the
// metadata route needs: a single unmutated forward. *upstream.Client
// satisfies this directly.
type MetadataFetcher interface {
	Forward(ctx context.Context, v *fhirreq.RequestView, mut *accesscheck.RequestMutation) (*accesscheck.ForwardResult, *apperrors.AppError)
}

// Handler serves the discovery routes.
type Handler struct {
	issuer   string
	cache    *jwtauth.DiscoveryCache
	upstream MetadataFetcher
	logger   zerolog.Logger
}

// NewHandler builds a discovery Handler.
func NewHandler(issuer string, cache *jwtauth.DiscoveryCache, upstream MetadataFetcher, logger zerolog.Logger) *Handler {
	return &Handler{issuer: issuer, cache: cache, upstream: upstream, logger: logger}
}

// ServeSmartConfiguration handles GET .well-known/smart-configuration.
func (h *Handler) ServeSmartConfiguration(w http.ResponseWriter, r *http.Request) {
	doc, err := h.cache.Get(r.Context(), h.issuer)
	if err != nil {
		httplog.WriteError(w, r, h.logger, apperrors.UpstreamBadGateway(err))
		return
	}

	out := map[string]interface{}{
		"issuer":                                doc.Issuer,
		"authorization_endpoint":                 doc.AuthorizationEndpoint,
		"token_endpoint":                         doc.TokenEndpoint,
		"jwks_uri":                               doc.JWKSURI,
		"grant_types_supported":                  doc.GrantTypesSupported,
		"response_types_supported":               doc.ResponseTypesSupported,
		"subject_types_supported":                doc.SubjectTypesSupported,
		"id_token_signing_alg_values_supported":   doc.IDTokenSigningAlgValues,
		"code_challenge_methods_supported":        doc.CodeChallengeMethodsSupported,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// ServeMetadata handles GET metadata: fetches the upstream CapabilityStatement
// and patches it to advertise this gateway's OAuth security.
func (h *Handler) ServeMetadata(w http.ResponseWriter, r *http.Request) {
	view, err := fhirreq.NewRequestView(r)
	if err != nil {
		httplog.WriteError(w, r, h.logger, apperrors.InvalidRequest("malformed metadata request"))
		return
	}

	resp, appErr := h.upstream.Forward(r.Context(), view, nil)
	if appErr != nil {
		httplog.WriteError(w, r, h.logger, appErr)
		return
	}

	doc, err := h.cache.Get(r.Context(), h.issuer)
	if err != nil {
		httplog.WriteError(w, r, h.logger, apperrors.UpstreamBadGateway(err))
		return
	}

	body := resp.Body
	var capability map[string]interface{}
	if jsonErr := json.Unmarshal(resp.Body, &capability); jsonErr == nil {
		patchCapabilityStatement(capability, doc)
		if patched, marshalErr := json.Marshal(capability); marshalErr == nil {
			body = patched
		}
	}

	if ct := resp.Headers.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}

// patchCapabilityStatement enables CORS and adds the OAuth security service
// entry plus its authorize/token extension URIs on rest[0].security (§4.9).
// Unknown fields elsewhere in the document are left untouched: this patches
// the document as generic JSON rather than round-tripping it through a
// typed model, so nothing the upstream store added is silently dropped.
func patchCapabilityStatement(capability map[string]interface{}, doc *jwtauth.Discovery) {
	restList, _ := capability["rest"].([]interface{})
	if len(restList) == 0 {
		return
	}
	rest0, ok := restList[0].(map[string]interface{})
	if !ok {
		return
	}

	security, _ := rest0["security"].(map[string]interface{})
	if security == nil {
		security = map[string]interface{}{}
	}
	security["cors"] = true

	services, _ := security["service"].([]interface{})
	services = append(services, map[string]interface{}{
		"coding": []interface{}{
			map[string]interface{}{
				"system":  restSecurityServiceSystem,
				"code":    "OAuth",
				"display": "OAuth",
			},
		},
	})
	security["service"] = services

	security["extension"] = []interface{}{
		map[string]interface{}{
			"url": oauthURIsExtensionURL,
			"extension": []interface{}{
				map[string]interface{}{"url": "authorize", "valueUri": doc.AuthorizationEndpoint},
				map[string]interface{}{"url": "token", "valueUri": doc.TokenEndpoint},
			},
		},
	}

	rest0["security"] = security
	restList[0] = rest0
	capability["rest"] = restList
}
