package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/nathannewyen/fhir-gateway/internal/apperrors"
)

// Store adapts Client to accesscheck.Store: the list-backed access checker's
// out-of-band lookups (does a patient id already exist, how many of a
// candidate set are list members, append a new patient to a list) all read
// and write the upstream FHIR store directly, on the gateway's own
// credentials rather than the caller's.
//
// The List resource is manipulated as generic JSON (map[string]interface{})
// rather than a typed samply/golang-fhir-models fhir.List, since this
// gateway otherwise only exercises that library's Patient type and there is
// no way to confirm fhir.List's generated field names without a vendored
// copy of the module to inspect.

// PatientExists reports whether a Patient with the given id exists upstream.
func (c *Client) PatientExists(ctx context.Context, id string) (bool, *apperrors.AppError) {
	status, _, appErr := c.raw(ctx, http.MethodGet, "Patient/"+id, nil, nil)
	if appErr != nil {
		return false, appErr
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound, http.StatusGone:
		return false, nil
	default:
		return false, apperrors.UpstreamBadGateway(fmt.Errorf("checking patient %s: unexpected status %d", id, status))
	}
}

// ListMatchCount searches for the given List filtered to the given item
// references, returning how many of patientIDs the list actually contains.
func (c *Client) ListMatchCount(ctx context.Context, listID string, patientIDs []string) (int, *apperrors.AppError) {
	if len(patientIDs) == 0 {
		return 0, nil
	}
	items := make([]string, len(patientIDs))
	for i, id := range patientIDs {
		items[i] = "Patient/" + id
	}
	query := url.Values{}
	query.Set("_id", listID)
	query.Set("item", strings.Join(items, ","))
	query.Set("_elements", "id")

	status, body, appErr := c.raw(ctx, http.MethodGet, "List", query, nil)
	if appErr != nil {
		return 0, appErr
	}
	if status != http.StatusOK {
		return 0, apperrors.UpstreamBadGateway(fmt.Errorf("searching list %s: unexpected status %d", listID, status))
	}

	var bundle struct {
		Entry []json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(body, &bundle); err != nil {
		return 0, apperrors.UpstreamBadGateway(fmt.Errorf("decoding list search bundle: %w", err))
	}
	return len(bundle.Entry), nil
}

// AppendPatientToList fetches listID, appends a Patient/{patientID} item
// entry, and writes it back with an upstream PUT.
func (c *Client) AppendPatientToList(ctx context.Context, listID, patientID string) *apperrors.AppError {
	status, body, appErr := c.raw(ctx, http.MethodGet, "List/"+listID, nil, nil)
	if appErr != nil {
		return appErr
	}
	if status != http.StatusOK {
		return apperrors.UpstreamBadGateway(fmt.Errorf("fetching list %s: unexpected status %d", listID, status))
	}

	var list map[string]interface{}
	if err := json.Unmarshal(body, &list); err != nil {
		return apperrors.UpstreamBadGateway(fmt.Errorf("decoding list %s: %w", listID, err))
	}

	entries, _ := list["entry"].([]interface{})
	entries = append(entries, map[string]interface{}{
		"item": map[string]interface{}{
			"reference": "Patient/" + patientID,
		},
	})
	list["entry"] = entries

	updated, err := json.Marshal(list)
	if err != nil {
		return apperrors.Internal("marshaling updated list", err)
	}

	status, _, appErr = c.raw(ctx, http.MethodPut, "List/"+listID, nil, updated)
	if appErr != nil {
		return appErr
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return apperrors.UpstreamBadGateway(fmt.Errorf("updating list %s: unexpected status %d", listID, status))
	}
	return nil
}

// raw issues a request to the upstream store on the gateway's own
// credentials, independent of any particular client request, returning the
// response status and body.
func (c *Client) raw(ctx context.Context, method, relPath string, query url.Values, body []byte) (int, []byte, *apperrors.AppError) {
	target := *c.base
	target.Path = path.Join(c.base.Path, relPath)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return 0, nil, apperrors.Internal("building upstream store request", err)
	}
	req.Header.Set("Accept", "application/fhir+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/fhir+json")
	}
	if appErr := c.attachCredentials(ctx, req); appErr != nil {
		return 0, nil, appErr
	}

	resp, respBody, appErr := c.do(req)
	if appErr != nil {
		return 0, nil, appErr
	}
	return resp.StatusCode, respBody, nil
}
