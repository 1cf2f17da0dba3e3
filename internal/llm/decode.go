package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes markdown code fences that models sometimes wrap
// around JSON output, even when asked not to.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ExtractJSONArray returns the outermost JSON array embedded in s. Search
// grounded generations cannot use structured output, so the array may be
// surrounded by prose. Returns false when no bracketed array is present.
func ExtractJSONArray(s string) (string, bool) {
	s = StripCodeFences(s)
	if strings.HasPrefix(s, "[") {
		return s, true
	}
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// DecodeObject decodes a model response expected to be a single JSON
// object into v.
func DecodeObject(text string, v any) error {
	cleaned := StripCodeFences(text)
	if cleaned == "" {
		return fmt.Errorf("decode: empty response text")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("decode: invalid JSON object: %w", err)
	}
	return nil
}

// DecodeArray decodes a model response expected to contain a JSON array,
// tolerating surrounding prose, into v.
func DecodeArray(text string, v any) error {
	arr, ok := ExtractJSONArray(text)
	if !ok {
		return fmt.Errorf("decode: no JSON array in response")
	}
	if err := json.Unmarshal([]byte(arr), v); err != nil {
		return fmt.Errorf("decode: invalid JSON array: %w", err)
	}
	return nil
}
