package llm

import "testing"

func TestExtractFirstJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"prose wrapped", "Here is the result:\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`, true},
		{"brace inside string", `{"a":"b}c"}`, `{"a":"b}c"}`, true},
		{"escaped quote inside string", `{"a":"b\"}c"}`, `{"a":"b\"}c"}`, true},
		{"nested objects", `x {"a":{"b":2}} y`, `{"a":{"b":2}}`, true},
		{"no object", "just some text", "", false},
		{"unbalanced", `{"a":1`, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractFirstJSONObject(tc.input)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("ExtractFirstJSONObject(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestParseJSONPayload(t *testing.T) {
	got, err := ParseJSONPayload("The receipt data is {\"items\":[]} as requested.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"items":[]}` {
		t.Fatalf("got %q", got)
	}

	if _, err := ParseJSONPayload("   "); err == nil {
		t.Fatal("empty input: want error")
	}
	if _, err := ParseJSONPayload("no json here"); err == nil {
		t.Fatal("no object: want error")
	}
	if _, err := ParseJSONPayload(`prefix {"a":} suffix`); err == nil {
		t.Fatal("invalid object: want error")
	}
}

func TestValidatePayload(t *testing.T) {
	valid := `{
		"extractions": {
			"merchant": {"value": "Trader Joes", "confidence": 0.9},
			"total": {"value": 42.17, "confidence": 0.95}
		},
		"items": [
			{"name": "Bananas", "price": 1.99, "quantity": null, "unit_price": null}
		]
	}`
	if err := ValidatePayload([]byte(valid)); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	if err := ValidatePayload([]byte(`{"items": []}`)); err == nil {
		t.Fatal("missing extractions: want error")
	}
	if err := ValidatePayload([]byte(`{"extractions": {}, "items": {}}`)); err == nil {
		t.Fatal("items not an array: want error")
	}
}
