package settings

import (
	"encoding/json"
)

// Kind is the JSON type a settings field must hold to be taken from a document.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindNumber
	KindObject
)

// Coalesce controls when a stored value replaces a field default.
type Coalesce int

const (
	// CoalesceTruthy keeps the default for empty strings as well as missing
	// or mistyped values.
	CoalesceTruthy Coalesce = iota
	// CoalescePresent keeps any value of the right type, empty strings included.
	CoalescePresent
)

// Field describes one resolved setting: its output name, its type, its default
// and the stored keys consulted, in order, to find a value.
type Field struct {
	Name    string
	Kind    Kind
	Default any
	Keys    []string
}

func (f Field) lookupKeys() []string {
	if len(f.Keys) == 0 {
		return []string{f.Name}
	}
	return f.Keys
}

// Table is a declarative list of defaulted fields.
type Table struct {
	Mode   Coalesce
	Fields []Field
}

// Fill returns an object holding exactly the table's fields, each taken from
// src when present with the right type and from the default otherwise.
func (t Table) Fill(src Object) Object {
	out := make(Object, len(t.Fields))
	for _, field := range t.Fields {
		out[field.Name] = t.value(src, field)
	}
	return out
}

// Narrow keeps only src keys the table names, without applying defaults.
func (t Table) Narrow(src Object) Object {
	out := Object{}
	for _, field := range t.Fields {
		if value, ok := src[field.Name]; ok {
			out[field.Name] = value
		}
	}
	return out
}

func (t Table) value(src Object, field Field) any {
	for _, key := range field.lookupKeys() {
		raw, ok := src[key]
		if !ok {
			continue
		}
		if value, ok := t.accept(field.Kind, raw); ok {
			return value
		}
	}
	return field.Default
}

func (t Table) accept(kind Kind, raw any) (any, bool) {
	switch kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, false
		}
		if s == "" && t.Mode == CoalesceTruthy {
			return nil, false
		}
		return s, true
	case KindBool:
		b, ok := raw.(bool)
		return b, ok
	case KindNumber:
		return toNumber(raw)
	case KindObject:
		obj, ok := asObject(raw)
		return obj, ok
	default:
		return nil, false
	}
}

func toNumber(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

const (
	DefaultBrandColor = "#4647E0"
	DefaultFont       = "Inter"
)

// TopLevel lists the resolved top-level branding fields. Sidebar highlight
// colors fall back to their older unprefixed keys; clientTaskViews takes
// precedence over taskViews.
var TopLevel = Table{
	Mode: CoalesceTruthy,
	Fields: []Field{
		{Name: "brandColor", Kind: KindString, Default: DefaultBrandColor},
		{Name: "welcomeMessage", Kind: KindString, Default: ""},
		{Name: "logoUrl", Kind: KindString, Default: ""},
		{Name: "companyName", Kind: KindString, Default: ""},
		{Name: "useBackgroundImage", Kind: KindBool, Default: false},
		{Name: "backgroundImageUrl", Kind: KindString, Default: ""},
		{Name: "backgroundColor", Kind: KindString, Default: DefaultBrandColor},
		{Name: "sidebarBgColor", Kind: KindString, Default: "#FFFFFF"},
		{Name: "sidebarTextColor", Kind: KindString, Default: "#374151"},
		{Name: "sidebarHighlightColor", Kind: KindString, Default: DefaultBrandColor, Keys: []string{"sidebarHighlightColor", "highlightColor"}},
		{Name: "sidebarHighlightTextColor", Kind: KindString, Default: "#FFFFFF", Keys: []string{"sidebarHighlightTextColor", "highlightTextColor"}},
		{Name: "portalFont", Kind: KindString, Default: DefaultFont},
		{Name: "taskViews", Kind: KindObject, Default: nil, Keys: []string{"clientTaskViews", "taskViews"}},
	},
}

// TaskViewFields lists the task view toggles.
var TaskViewFields = Table{
	Mode: CoalescePresent,
	Fields: []Field{
		{Name: "milestones", Kind: KindBool, Default: true},
		{Name: "board", Kind: KindBool, Default: true},
	},
}

// LoginFields lists the login page fields. Stored values of the right type
// win even when empty.
var LoginFields = Table{
	Mode: CoalescePresent,
	Fields: []Field{
		{Name: "logoUrl", Kind: KindString, Default: ""},
		{Name: "welcomeHeadline", Kind: KindString, Default: "Welcome"},
		{Name: "welcomeSubtitle", Kind: KindString, Default: "Login to access your portal"},
		{Name: "bgMode", Kind: KindString, Default: "solid"},
		{Name: "bgColor", Kind: KindString, Default: "#F3F4F6"},
		{Name: "bgGradientFrom", Kind: KindString, Default: "#EEF2FF"},
		{Name: "bgGradientTo", Kind: KindString, Default: "#F5F7FF"},
		{Name: "bgGradientAngle", Kind: KindNumber, Default: float64(135)},
		{Name: "bgImageUrl", Kind: KindString, Default: ""},
		{Name: "imageFit", Kind: KindString, Default: "cover"},
		{Name: "overlayOpacity", Kind: KindNumber, Default: float64(20)},
		{Name: "blur", Kind: KindBool, Default: false},
		{Name: "magicLinkEnabled", Kind: KindBool, Default: true},
		{Name: "passwordEnabled", Kind: KindBool, Default: false},
		{Name: "activeAuthMode", Kind: KindString, Default: "magic"},
		{Name: "magicLinkButtonLabel", Kind: KindString, Default: "Send Magic Link"},
		{Name: "passwordButtonLabel", Kind: KindString, Default: "Sign In"},
		{Name: "showResend", Kind: KindBool, Default: false},
	},
}

func stringField(obj Object, name string) string {
	s, _ := obj[name].(string)
	return s
}

func boolField(obj Object, name string) bool {
	b, _ := obj[name].(bool)
	return b
}

func numberField(obj Object, name string) float64 {
	n, _ := toNumber(obj[name])
	return n
}
