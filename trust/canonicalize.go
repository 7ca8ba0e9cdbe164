package trust

import (
	"bytes"
	"encoding/json"
)

// canonicalize re-serializes a "signed" payload per its declared spec
// version's rule: v0.6 canonicalizes as pretty-printed JSON with 2-space
// indentation (matching the original Python implementation's
// json.dumps(..., indent=2, sort_keys=True)); v1 canonicalizes as
// compact RFC-8259 JSON with sorted keys.
func canonicalize(signed json.RawMessage, spec SpecVersion) ([]byte, error) {
	var v any
	if err := json.Unmarshal(signed, &v); err != nil {
		return nil, RoleMetadataError{Reason: "signed payload is not valid JSON: " + err.Error()}
	}
	sorted := sortKeys(v)

	switch spec {
	case SpecV06:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(sorted); err != nil {
			return nil, err
		}
		// json.Encoder.Encode appends a trailing newline; the original
		// canonicalizer does not emit one.
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	default: // SpecV1 and anything newer uses compact RFC-8259.
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(sorted); err != nil {
			return nil, err
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	}
}

// sortKeys recursively copies nested maps and slices into plain
// map[string]any and []any values. The sorted key order of the output
// comes from json.Marshal itself, which always writes string map keys
// in sorted order; this function only makes the recursion through
// nested structures explicit.
func sortKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = sortKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sortKeys(val)
		}
		return out
	default:
		return v
	}
}
