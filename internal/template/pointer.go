package template

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Pointer is a parsed RFC-6901 subset: a sequence of unescaped object keys
// and array indices, e.g. "/pagination/next_cursor" -> ["pagination",
// "next_cursor"].
type Pointer []string

// ParsePointer parses a pointer string. The empty string and "/" both
// resolve to the pointer-to-the-whole-document.
func ParsePointer(raw string) Pointer {
	if raw == "" || raw == "/" {
		return nil
	}
	raw = strings.TrimPrefix(raw, "/")
	tokens := strings.Split(raw, "/")
	for i, t := range tokens {
		t = strings.ReplaceAll(t, "~1", "/")
		t = strings.ReplaceAll(t, "~0", "~")
		tokens[i] = t
	}
	return tokens
}

// Extract applies a pointer to a JSON document body, returning the raw JSON
// value found (or nil if the path is missing). The caller is responsible
// for further unmarshalling into the concrete type it expects.
func Extract(body []byte, pointer string) (json.RawMessage, error) {
	var doc interface{}
	if len(body) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return ExtractValue(doc, pointer)
}

// ExtractValue applies a pointer to an already-decoded JSON value (used for
// per-record offset extraction, where the record has already been
// unmarshalled out of a containing array).
func ExtractValue(doc interface{}, pointer string) (json.RawMessage, error) {
	tokens := ParsePointer(pointer)
	cur := doc
	for _, tok := range tokens {
		switch v := cur.(type) {
		case map[string]interface{}:
			next, ok := v[tok]
			if !ok {
				return nil, nil
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, nil
			}
			cur = v[idx]
		default:
			return nil, nil
		}
	}
	if cur == nil {
		return nil, nil
	}
	return json.Marshal(cur)
}

// ExtractString is a convenience wrapper over Extract that returns the
// pointed-at value as a plain string (unwrapping a JSON string literal, or
// rendering any other scalar/compound value as raw JSON text). Returns ""
// when the path is missing.
func ExtractString(body []byte, pointer string) (string, error) {
	raw, err := Extract(body, pointer)
	if err != nil || raw == nil {
		return "", err
	}
	return RawToString(raw)
}

// RawToString unwraps a JSON string literal to its plain value, or renders
// any other scalar/compound raw value as text. Exported so per-record
// pointer extraction (internal/offset's Chaining strategy) can stringify an
// ExtractValue result the same way ExtractString does for a whole body.
func RawToString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return strings.TrimSpace(string(raw)), nil
}
