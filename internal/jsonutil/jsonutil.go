// Package jsonutil provides helper functions for extracting typed values
// from unstructured JSON payloads (map[string]any).
package jsonutil

import "encoding/json"

// StringFromAny safely converts any value to string.
func StringFromAny(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// StringFromMap extracts a string from a map by key.
func StringFromMap(data map[string]interface{}, key string) string {
	if v, ok := data[key]; ok {
		return StringFromAny(v)
	}
	return ""
}

// StringFromRaw decodes raw JSON and extracts a string by key. It is
// used for pulling log context out of notification payloads without
// committing to a schema.
func StringFromRaw(raw json.RawMessage, key string) string {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return ""
	}
	return StringFromMap(data, key)
}
