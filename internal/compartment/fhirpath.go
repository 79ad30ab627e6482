package compartment

import "strings"

// evalPatientPath walks a decoded FHIR resource body along a single
// configured path expression (e.g. "Observation.subject" or
// "Observation.performer.where(resolve() is Patient)") and returns the
// "Patient/<id>"-shaped reference strings it finds.
//
// This is a narrow, purpose-built evaluator, not a general FHIRPath engine:
// it understands plain field traversal through nested objects and arrays,
// and a single trailing ".where(resolve() is <Type>)" filter that restricts
// the references collected at the final field to one resource type. That
// covers every shape the patient-paths configuration is documented to use
// (§6) without pulling in a full FHIRPath implementation for two operators.
func evalPatientPath(body map[string]interface{}, expr string) []string {
	segments := strings.Split(expr, ".")
	if len(segments) < 2 {
		return nil
	}
	// segments[0] is the resource type name; the body is already known to be
	// that type by the time this is called, so it's skipped.
	fieldPath := segments[1:]

	filterType := ""
	last := fieldPath[len(fieldPath)-1]
	if idx := strings.Index(last, ".where("); idx >= 0 {
		fieldPath[len(fieldPath)-1] = last[:idx]
		filterType = extractResolveType(last[idx:])
	} else if strings.HasPrefix(last, "where(") {
		fieldPath = fieldPath[:len(fieldPath)-1]
		filterType = extractResolveType(last)
	}

	values := []interface{}{body}
	for _, field := range fieldPath {
		values = descend(values, field)
	}

	var refs []string
	for _, v := range values {
		ref, ok := referenceOf(v)
		if !ok {
			continue
		}
		if filterType != "" && !strings.HasPrefix(ref, filterType+"/") {
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// descend applies one field-name step to each value in turn, flattening
// arrays as it goes so a trailing array-of-objects field (e.g. "performer")
// yields one value per element.
func descend(values []interface{}, field string) []interface{} {
	var out []interface{}
	for _, v := range values {
		switch t := v.(type) {
		case map[string]interface{}:
			next, ok := t[field]
			if !ok {
				continue
			}
			out = append(out, flattenArrays(next)...)
		case []interface{}:
			out = append(out, descend(t, field)...)
		}
	}
	return out
}

func flattenArrays(v interface{}) []interface{} {
	if arr, ok := v.([]interface{}); ok {
		var out []interface{}
		for _, item := range arr {
			out = append(out, flattenArrays(item)...)
		}
		return out
	}
	return []interface{}{v}
}

// referenceOf extracts the "reference" string from a FHIR Reference object
// (or treats a bare string value as already being one).
func referenceOf(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]interface{}:
		ref, ok := t["reference"].(string)
		return ref, ok
	default:
		return "", false
	}
}

// extractResolveType pulls "Patient" out of ".where(resolve() is Patient)".
func extractResolveType(clause string) string {
	const marker = "is "
	idx := strings.LastIndex(clause, marker)
	if idx < 0 {
		return ""
	}
	rest := clause[idx+len(marker):]
	rest = strings.TrimSuffix(rest, ")")
	return strings.TrimSpace(rest)
}
