package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildCandidateSchema returns the JSON-Schema (draft 2020-12 subset) that
// extractor responses must satisfy: an array of objects where every entry
// carries at least one code or a name, known fields are typed, and unknown
// fields are allowed (they feed the open attribute bag).
func BuildCandidateSchema() map[string]any {
	stringProp := map[string]any{"type": "string"}

	entry := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"codes": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"name":         stringProp,
			"description":  stringProp,
			"color":        stringProp,
			"light_source": stringProp,
			"dimensions":   stringProp,
			"wattage":      stringProp,
			// The model is told to emit plain numbers but real responses mix
			// in strings like "3120,00"; coercion happens downstream.
			"price":    map[string]any{"type": []any{"number", "string"}},
			"currency": stringProp,
			"extra_fields": map[string]any{
				"type": "object",
			},
		},
		"anyOf": []any{
			map[string]any{
				"properties": map[string]any{
					"codes": map[string]any{
						"type":     "array",
						"minItems": 1,
					},
				},
				"required": []any{"codes"},
			},
			map[string]any{
				"properties": map[string]any{
					"name": map[string]any{
						"type":      "string",
						"minLength": 1,
					},
				},
				"required": []any{"name"},
			},
		},
	}

	return map[string]any{
		"type":  "array",
		"items": entry,
	}
}

// ValidateAgainstSchema validates data against schemaMap.
func ValidateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
