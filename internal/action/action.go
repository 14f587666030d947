// Package action defines the typed vocabulary of desktop actions the
// planner may emit and the executor that maps them onto OS primitives.
package action

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Type tags an action variant.
type Type string

const (
	TypeOpenApp     Type = "open_app"
	TypeActivateApp Type = "activate_app"
	TypeClick       Type = "click"
	TypeDoubleClick Type = "double_click"
	TypeTypeText    Type = "type_text"
	TypeShortcut    Type = "shortcut"
	TypeWait        Type = "wait"
	TypeDone        Type = "done"
)

// Known reports whether t is a recognized action type.
func Known(t Type) bool {
	switch t {
	case TypeOpenApp, TypeActivateApp, TypeClick, TypeDoubleClick,
		TypeTypeText, TypeShortcut, TypeWait, TypeDone:
		return true
	}
	return false
}

// Action is one planned step. Fields are populated per type: App for the
// app actions, X/Y for clicks, Text for type_text, Keys for shortcut,
// WaitMS for wait, Reason for done. X and Y may be NaN when the planner
// emitted garbage; the executor catches that, not the parser.
type Action struct {
	Type   Type    `json:"action"`
	App    string  `json:"app,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Text   string  `json:"text,omitempty"`
	Keys   string  `json:"keys,omitempty"`
	WaitMS float64 `json:"ms,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// String renders a short human-readable form for step logs.
func (a Action) String() string {
	switch a.Type {
	case TypeOpenApp, TypeActivateApp:
		return fmt.Sprintf("%s(%s)", a.Type, a.App)
	case TypeClick, TypeDoubleClick:
		return fmt.Sprintf("%s(%.0f,%.0f)", a.Type, a.X, a.Y)
	case TypeTypeText:
		return fmt.Sprintf("%s(%q)", a.Type, truncate(a.Text, 40))
	case TypeShortcut:
		return fmt.Sprintf("%s(%s)", a.Type, a.Keys)
	case TypeWait:
		return fmt.Sprintf("%s(%.0fms)", a.Type, a.WaitMS)
	case TypeDone:
		return fmt.Sprintf("%s(%s)", a.Type, truncate(a.Reason, 60))
	default:
		return string(a.Type)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// FromRaw builds an Action from a decoded JSON object, coercing numeric
// fields the way a loose planner emits them (numbers, numeric strings,
// or garbage that becomes NaN). Returns false when the object carries no
// recognized action type.
func FromRaw(m map[string]interface{}) (Action, bool) {
	typStr, _ := m["action"].(string)
	typ := Type(strings.ToLower(strings.TrimSpace(typStr)))
	if !Known(typ) {
		return Action{}, false
	}
	a := Action{Type: typ}
	a.App = rawString(m, "app", "name")
	a.Text = rawString(m, "text", "value")
	a.Keys = rawString(m, "keys", "shortcut")
	a.Reason = rawString(m, "reason", "detail")
	a.X = rawNumber(m, "x")
	a.Y = rawNumber(m, "y")
	a.WaitMS = rawNumber(m, "ms", "duration", "wait")
	return a, true
}

func rawString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// rawNumber mirrors JavaScript Number() coercion: numbers pass through,
// numeric strings parse, anything else is NaN.
func rawNumber(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return f
			}
			return math.NaN()
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f
			}
			return math.NaN()
		case nil:
			return math.NaN()
		default:
			return math.NaN()
		}
	}
	return math.NaN()
}
