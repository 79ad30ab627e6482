// Package allowedqueries implements C4, the Allowed-Queries Checker: a
// static, ordered, first-match-wins configuration of permitted query shapes
// that short-circuits the access decision pipeline (§4.4).
package allowedqueries

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nathannewyen/fhir-gateway/internal/fhirreq"
)

// AnyValue is the wildcard query-parameter value: it matches any single
// occurrence of the parameter, regardless of its actual value.
const AnyValue = "ANY_VALUE"

// Entry is one allowed-query configuration entry (spec.md §6).
type Entry struct {
	Path              string            `json:"path"`
	MethodType        string            `json:"methodType"`
	QueryParams       map[string]string `json:"queryParams"`
	AllowExtraParams  bool              `json:"allowExtraParams"`
	AllParamsRequired bool              `json:"allParamsRequired"`
}

// Config is the ordered list of allow-list entries, immutable after load.
type Config struct {
	Entries []Entry `json:"entries"`
}

// document is the on-disk shape: a top-level "entries" array.
type document struct {
	Entries []rawEntry `json:"entries"`
}

// rawEntry distinguishes a null path from an empty-string one (the root-path
// entry used by scenario 3 of spec.md §8). An explicit null and an absent
// "path" key both decode to a nil pointer, and both are a configuration error.
type rawEntry struct {
	Path              *string           `json:"path"`
	MethodType        string            `json:"methodType"`
	QueryParams       map[string]string `json:"queryParams"`
	AllowExtraParams  bool              `json:"allowExtraParams"`
	AllParamsRequired bool              `json:"allParamsRequired"`
}

// Load reads and validates the allowed-queries configuration file. Per
// spec.md §3, an entry with a null path is a configuration error and MUST
// abort process startup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading allowed-queries config %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing allowed-queries config %s: %w", path, err)
	}

	cfg := &Config{Entries: make([]Entry, 0, len(doc.Entries))}
	for i, raw := range doc.Entries {
		if raw.Path == nil {
			return nil, fmt.Errorf("allowed-queries entry %d has a null path", i)
		}
		cfg.Entries = append(cfg.Entries, Entry{
			Path:              *raw.Path,
			MethodType:        raw.MethodType,
			QueryParams:       raw.QueryParams,
			AllowExtraParams:  raw.AllowExtraParams,
			AllParamsRequired: raw.AllParamsRequired,
		})
	}
	return cfg, nil
}

// Matches reports whether v is granted by any entry in the configuration,
// in order — the first entry that matches wins (§4.4). A false result means
// "defer to the plugin", not "deny".
func (c *Config) Matches(v *fhirreq.RequestView) bool {
	for _, entry := range c.Entries {
		if entry.matches(v) {
			return true
		}
	}
	return false
}

func (e Entry) matches(v *fhirreq.RequestView) bool {
	if e.MethodType != "" && !strings.EqualFold(e.MethodType, v.Method) {
		return false
	}
	if !e.pathMatches(v.Path) {
		return false
	}
	return e.queryMatches(v)
}

func (e Entry) pathMatches(requestPath string) bool {
	if strings.HasSuffix(e.Path, "/") {
		if !strings.HasPrefix(requestPath, e.Path) {
			return false
		}
		remainder := strings.TrimPrefix(requestPath, e.Path)
		return remainder != "" && !strings.Contains(remainder, "/")
	}
	return e.Path == requestPath
}

func (e Entry) queryMatches(v *fhirreq.RequestView) bool {
	matchedNames := make(map[string]struct{}, len(e.QueryParams))
	for name, want := range e.QueryParams {
		values, present := v.Query[name]
		if !present {
			if e.AllParamsRequired {
				return false
			}
			continue
		}
		if want == AnyValue {
			if len(values) != 1 {
				return false
			}
		} else if len(values) != 1 || values[0] != want {
			return false
		}
		matchedNames[name] = struct{}{}
	}

	if !e.AllowExtraParams {
		if len(v.Query) != len(matchedNames) {
			return false
		}
		for name := range v.Query {
			if _, ok := matchedNames[name]; !ok {
				return false
			}
		}
	}
	return true
}
