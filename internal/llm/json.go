package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// arrayKeys are the object keys under which models tend to wrap an array.
var arrayKeys = []string{"results", "items", "analysis", "verdicts"}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop an info string such as "json".
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// DecodeArray decodes content into a slice of T. The payload may be a bare
// array, an object wrapping the array under a well-known key, or a single
// object, which becomes a one-element slice.
func DecodeArray[T any](content string) ([]T, error) {
	raw := []byte(StripFences(content))
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrInvalidJSON
	}

	switch raw[0] {
	case '[':
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, ErrInvalidJSON
		}
		return out, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, ErrInvalidJSON
		}
		for _, key := range arrayKeys {
			if inner, ok := obj[key]; ok {
				var out []T
				if err := json.Unmarshal(inner, &out); err == nil {
					return out, nil
				}
			}
		}
		var single T
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, ErrInvalidJSON
		}
		return []T{single}, nil
	}
	return nil, ErrInvalidJSON
}

// DecodeObject decodes content, fences stripped, into v.
func DecodeObject(content string, v any) error {
	raw := StripFences(content)
	if start := strings.IndexByte(raw, '{'); start > 0 {
		raw = raw[start:]
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return ErrInvalidJSON
	}
	return nil
}
