package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildPayloadJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. Kept deliberately loose: it gates the payload's shape
// (extractions object, items array), not completeness — missing optional
// fields are the post-processors' problem, and over-constraining here just
// throws away otherwise usable responses.
func BuildPayloadJSONSchema() map[string]any {
	fieldProp := func(valueType string) map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"value":      map[string]any{"type": []string{valueType, "null"}},
				"confidence": map[string]any{"type": "number"},
			},
		}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"raw_text": map[string]any{"type": []string{"string", "null"}},
			"summary":  map[string]any{"type": []string{"string", "null"}},
			"quality": map[string]any{
				"type": []string{"object", "null"},
				"properties": map[string]any{
					"blur":           map[string]any{"type": "number"},
					"glare":          map[string]any{"type": "number"},
					"readability":    map[string]any{"type": "number"},
					"is_low_quality": map[string]any{"type": "boolean"},
				},
			},
			"extractions": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"merchant": fieldProp("string"),
					"address":  fieldProp("string"),
					"date":     fieldProp("string"),
					"currency": fieldProp("string"),
					"total":    fieldProp("number"),
					"subtotal": fieldProp("number"),
					"tax":      fieldProp("number"),
					"discount": fieldProp("number"),
					"tip":      fieldProp("number"),
					"fees":     fieldProp("number"),
				},
			},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":                map[string]any{"type": []string{"string", "null"}},
						"price":               map[string]any{"type": []string{"number", "string", "null"}},
						"quantity":            map[string]any{"type": []string{"number", "string", "null"}},
						"unit_price":          map[string]any{"type": []string{"number", "string", "null"}},
						"confidence":          map[string]any{"type": []string{"number", "null"}},
						"category_prediction": map[string]any{"type": []string{"string", "null"}},
					},
				},
			},
		},
		"required": []string{"extractions", "items"},
	}
}

// ValidateJSONAgainstSchema validates raw JSON data against a generic schema
// map built by BuildPayloadJSONSchema (or any compatible map).
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	bs, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("payload.schema.json", bytes.NewReader(bs)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("payload.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}

// ValidatePayload checks a parsed model response against the payload schema.
func ValidatePayload(data []byte) error {
	return ValidateJSONAgainstSchema(BuildPayloadJSONSchema(), data)
}
