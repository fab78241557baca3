package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractFirstJSONObject returns the first balanced {...} span in the input,
// tracking string literals and escapes so braces inside strings don't
// terminate the scan. The second return is false when no balanced object
// exists.
func ExtractFirstJSONObject(input string) (string, bool) {
	start := strings.IndexByte(input, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(input); i++ {
		ch := input[i]

		if inString {
			if escaped {
				escaped = false
				continue
			}
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSONPayload parses a model response into JSON bytes. When the whole
// response is not valid JSON (models sometimes wrap the object in prose), it
// falls back to the first balanced object span.
func ParseJSONPayload(rawText string) ([]byte, error) {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return nil, fmt.Errorf("model response was empty")
	}
	if json.Valid([]byte(text)) {
		return []byte(text), nil
	}
	first, ok := ExtractFirstJSONObject(text)
	if !ok || !json.Valid([]byte(first)) {
		return nil, fmt.Errorf("model response did not contain valid JSON")
	}
	return []byte(first), nil
}
