package configutil

import (
	"sort"
	"strings"
)

// Schema names the keys a settings map or a tool call may carry.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
	// AllowEmpty accepts blank strings for required keys; only presence is
	// checked.
	AllowEmpty bool
}

// SchemaError lists the keys that failed validation, sorted.
type SchemaError struct {
	Missing []string
	Unknown []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(e.Unknown, ", "))
	}
	return strings.Join(parts, "; ")
}

// ValidateSettings checks input against schema. Keys match ignoring case,
// underscores and hyphens. A nil value never satisfies a required key. The
// returned error, if any, is a *SchemaError.
func ValidateSettings(input map[string]any, schema Schema) error {
	present := make(map[string]any, len(input))
	for k, v := range input {
		present[normalizeKey(k)] = v
	}

	known := make(map[string]bool, len(schema.Required)+len(schema.Optional))
	var missing []string
	for _, k := range schema.Required {
		nk := normalizeKey(k)
		known[nk] = true
		v, ok := present[nk]
		if !ok || v == nil || (!schema.AllowEmpty && isBlank(v)) {
			missing = append(missing, k)
		}
	}
	for _, k := range schema.Optional {
		known[normalizeKey(k)] = true
	}

	var unknown []string
	if !schema.AllowUnknown {
		for k := range input {
			if !known[normalizeKey(k)] {
				unknown = append(unknown, k)
			}
		}
	}

	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(unknown)
	return &SchemaError{Missing: missing, Unknown: unknown}
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
