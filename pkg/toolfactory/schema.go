package toolfactory

// sanitizeKeys are JSON-schema keys that MCP servers emit but that provider
// tool-calling APIs reject or warn on.
var sanitizeKeys = []string{"title", "default", "additionalProperties", "example", "examples"}

// sanitizeSchema recursively strips sanitizeKeys from a decoded JSON schema
// and synthesizes items: {type: string} for an untyped array, since
// provider APIs reject an array schema with no items.
func sanitizeSchema(schema interface{}) interface{} {
	switch v := schema.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			skip := false
			for _, bad := range sanitizeKeys {
				if k == bad {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
			out[k] = sanitizeSchema(val)
		}
		if t, _ := out["type"].(string); t == "array" {
			if _, hasItems := out["items"]; !hasItems {
				out["items"] = map[string]interface{}{"type": "string"}
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = sanitizeSchema(item)
		}
		return out
	default:
		return schema
	}
}

// SanitizeSchema sanitizes a decoded object-schema map. Returns nil for a
// nil input.
func SanitizeSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return nil
	}
	return sanitizeSchema(schema).(map[string]interface{})
}
