package action

import (
	"fmt"
	"strings"
)

// Shortcut is a parsed keystroke spec: a terminal key plus modifier flags
// in the form the OS executor expects ("command down", "shift down", ...).
type Shortcut struct {
	Key       string
	Modifiers []string
}

var modifierNames = map[string]string{
	"cmd":     "command down",
	"command": "command down",
	"shift":   "shift down",
	"alt":     "option down",
	"option":  "option down",
	"opt":     "option down",
	"ctrl":    "control down",
	"control": "control down",
	"fn":      "fn down",
}

// specialKeys maps named keys to the key identifier the OS layer sends.
// Anything not listed is sent as a literal character keystroke.
var specialKeys = map[string]string{
	"enter":  "return",
	"return": "return",
	"tab":    "tab",
	"esc":    "escape",
	"escape": "escape",
	"space":  "space",
	"delete": "delete",
	"del":    "delete",
	"up":     "up arrow",
	"down":   "down arrow",
	"left":   "left arrow",
	"right":  "right arrow",
}

// ParseShortcut parses a "+"-joined spec like "cmd+shift+p". The last
// non-modifier token is the terminal key; when every token is a modifier
// the last token counts as the key. An empty spec is an error: the loop
// must surface it rather than silently sending nothing.
func ParseShortcut(spec string) (Shortcut, error) {
	tokens := strings.Split(spec, "+")
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(strings.ToLower(t))
		if t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return Shortcut{}, fmt.Errorf("empty shortcut spec %q", spec)
	}

	var sc Shortcut
	for i, p := range parts {
		if mod, ok := modifierNames[p]; ok && i < len(parts)-1 {
			sc.Modifiers = append(sc.Modifiers, mod)
			continue
		}
		if i == len(parts)-1 {
			if key, ok := specialKeys[p]; ok {
				sc.Key = key
			} else {
				sc.Key = p
			}
		} else {
			// Non-modifier token in modifier position: treat it as a
			// literal key and ignore the rest.
			sc.Key = p
			break
		}
	}
	return sc, nil
}
