package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// MarshalNoEscape encodes v into JSON without escaping <, >, & into <, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Remove trailing newline from json.Encoder.Encode
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalIndentNoEscape is MarshalNoEscape with indentation.
func MarshalIndentNoEscape(v any, prefix, indent string) ([]byte, error) {
	b, err := MarshalNoEscape(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, prefix, indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// UnmarshalFlex tries to unmarshal JSON bytes into v with best effort:
// 1) direct unmarshal, 2) normalize double-escaped unicode and retry.
// Model output sometimes arrives with HTML escapes or a quoted wrapper.
func UnmarshalFlex(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err == nil {
		return nil
	}
	norm, err := normalizeUnicode(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(norm, v)
}

// normalizeUnicode parses JSON bytes and recursively unescapes any remaining
// double-escaped unicode sequences (e.g. "\\u003e") inside string values.
func normalizeUnicode(raw []byte) ([]byte, error) {
	var anyVal any
	if err := json.Unmarshal(raw, &anyVal); err != nil {
		// The entire payload may be a quoted JSON string.
		var s string
		if err2 := json.Unmarshal(raw, &s); err2 != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(s), &anyVal); err != nil {
			return nil, errors.New("jsonutil: cannot parse JSON payload")
		}
	}
	return MarshalNoEscape(deepUnescape(anyVal))
}

func unescapeUnicodeString(s string) (string, error) {
	// Force JSON to treat the string as a quoted JSON string.
	esc := strings.ReplaceAll(s, `\`, `\\`)
	esc = strings.ReplaceAll(esc, `"`, `\"`)
	var out string
	if err := json.Unmarshal([]byte(`"`+esc+`"`), &out); err != nil {
		return "", err
	}
	return out, nil
}

func deepUnescape(v any) any {
	switch x := v.(type) {
	case string:
		if s, err := unescapeUnicodeString(x); err == nil {
			return s
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepUnescape(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = deepUnescape(vv)
		}
		return out
	default:
		return v
	}
}
