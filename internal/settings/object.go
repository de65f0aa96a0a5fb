// Package settings resolves the effective branding configuration of a portal
// from the account-wide template document and the portal's own override
// document.
package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Object is a decoded JSON object as stored in a settings document.
type Object map[string]any

// Clone returns a shallow copy. Nested values are shared.
func (o Object) Clone() Object {
	out := make(Object, len(o))
	for key, value := range o {
		out[key] = value
	}
	return out
}

// ParseError reports why a stored settings value could not be read as a JSON object.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("parse settings object: %s: %v", e.Reason, e.Err)
	}
	return "parse settings object: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ParseObject reads input as a JSON object. nil, empty input and JSON null
// yield an empty object. A JSON string holding an encoded object is decoded
// once more, since older rows stored the document double-encoded.
func ParseObject(input any) (Object, error) {
	switch value := input.(type) {
	case nil:
		return Object{}, nil
	case Object:
		return value, nil
	case map[string]any:
		return Object(value), nil
	case json.RawMessage:
		return parseBytes(value, true)
	case []byte:
		return parseBytes(value, true)
	case string:
		return parseBytes([]byte(value), true)
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unsupported type %T", input)}
	}
}

// ObjectOrEmpty is ParseObject with any failure read as an empty object.
func ObjectOrEmpty(input any) Object {
	obj, err := ParseObject(input)
	if err != nil {
		return Object{}
	}
	return obj
}

func parseBytes(data []byte, allowNested bool) (Object, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Object{}, nil
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return nil, &ParseError{Reason: "invalid JSON", Err: err}
	}
	switch value := decoded.(type) {
	case map[string]any:
		return Object(value), nil
	case string:
		if allowNested {
			return parseBytes([]byte(value), false)
		}
	}
	return nil, &ParseError{Reason: fmt.Sprintf("expected JSON object, got %s", jsonKind(decoded))}
}

func jsonKind(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	default:
		return "object"
	}
}

// asObject reports whether value is a plain JSON object (not an array, not null).
func asObject(value any) (Object, bool) {
	switch v := value.(type) {
	case Object:
		return v, v != nil
	case map[string]any:
		return Object(v), v != nil
	default:
		return nil, false
	}
}
