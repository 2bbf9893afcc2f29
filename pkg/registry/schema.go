// pkg/registry/schema.go
package registry

// VariantRegistry lists the configured decoder flow variants.
type VariantRegistry struct {
	Version     string    `json:"version"`
	LastUpdated string    `json:"lastUpdated"`
	Variants    []Variant `json:"variants"`
}

// Variant is one configuration of the decoder flow: which fields the AI must
// return, how each is formatted, and whether the crisis filter runs.
type Variant struct {
	ID                string      `json:"id"`
	DisplayName       string      `json:"displayName"`
	Description       string      `json:"description,omitempty"`
	SystemInstruction string      `json:"systemInstruction"`
	Fields            []FieldSpec `json:"fields"`
	CrisisFilter      bool        `json:"crisisFilter"`
	Tags              []string    `json:"tags,omitempty"`
}

// FieldSpec describes one formatter role. A non-empty ClosingSentence makes the
// field the variant's suffix role.
type FieldSpec struct {
	Name            string `json:"name"`
	Label           string `json:"label"`
	Description     string `json:"description"`
	MaxSentences    int    `json:"maxSentences"`
	MaxWords        int    `json:"maxWords"`
	ClosingSentence string `json:"closingSentence,omitempty"`
	Fallback        string `json:"fallback"`
}

// IsSuffix reports whether the field carries a mandated closing sentence.
func (f FieldSpec) IsSuffix() bool {
	return f.ClosingSentence != ""
}

// FieldNames returns the field names in declaration order.
func (v Variant) FieldNames() []string {
	names := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		names[i] = f.Name
	}
	return names
}

// OutputSchema is the JSON schema the raw AI result must satisfy. Content fields
// are optional here; completeness is checked by the decoder.
func (v Variant) OutputSchema() map[string]interface{} {
	props := map[string]interface{}{
		"isHarmful": map[string]interface{}{"type": "boolean"},
		"harmful":   map[string]interface{}{"type": "boolean"},
	}
	for _, f := range v.Fields {
		props[f.Name] = map[string]interface{}{"type": "string"}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
		"anyOf": []interface{}{
			map[string]interface{}{"required": []interface{}{"isHarmful"}},
			map[string]interface{}{"required": []interface{}{"harmful"}},
		},
	}
}
