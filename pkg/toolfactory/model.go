package toolfactory

// ParamKind is the Go-side analogue of a JSON-schema primitive type, the
// same {string, integer, number, boolean, object, array} mapping the
// original used to pick a pydantic field type.
type ParamKind string

const (
	ParamString  ParamKind = "string"
	ParamInteger ParamKind = "integer"
	ParamNumber  ParamKind = "number"
	ParamBoolean ParamKind = "boolean"
	ParamObject  ParamKind = "object"
	ParamArray   ParamKind = "array"
)

// Param describes one input field of a tool's sanitized schema.
type Param struct {
	Name        string
	Kind        ParamKind
	Required    bool
	Description string
}

// InputModel is the typed view of a tool's (sanitized) JSON schema: Go has
// no dynamic-class construction to mirror pydantic's create_model, so the
// "typed input model" is this field list plus the sanitized schema itself,
// which callers pass straight through to the LLM sidecar and MCP connector
// as a JSON object.
type InputModel struct {
	Fields []Param
	Schema map[string]interface{}
}

// BuildInputModel sanitizes schema and extracts its field list. A nil or
// non-object schema yields an empty model with a nil Schema, matching the
// original's "no model built" fallback for tools with no argument_schema.
func BuildInputModel(schema map[string]interface{}) InputModel {
	if schema == nil {
		return InputModel{}
	}
	if t, _ := schema["type"].(string); t != "object" {
		return InputModel{}
	}
	properties, _ := schema["properties"].(map[string]interface{})
	if properties == nil {
		return InputModel{}
	}

	sanitized := SanitizeSchema(schema)
	required := map[string]bool{}
	if reqList, ok := sanitized["required"].([]interface{}); ok {
		for _, r := range reqList {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	sanitizedProperties, _ := sanitized["properties"].(map[string]interface{})
	fields := make([]Param, 0, len(sanitizedProperties))
	for name, raw := range sanitizedProperties {
		prop, _ := raw.(map[string]interface{})
		kind := ParamString
		if t, ok := prop["type"].(string); ok {
			switch ParamKind(t) {
			case ParamInteger, ParamNumber, ParamBoolean, ParamObject, ParamArray:
				kind = ParamKind(t)
			}
		}
		description, _ := prop["description"].(string)
		if description == "" {
			description = "The " + name + " for the tool."
		}
		fields = append(fields, Param{
			Name:        name,
			Kind:        kind,
			Required:    required[name],
			Description: description,
		})
	}

	return InputModel{Fields: fields, Schema: sanitized}
}
