package macos

import (
	"context"
	"fmt"
	"strings"

	"deskpilot/internal/logging"
)

// Actions drives mouse and keyboard input through System Events.
type Actions struct{}

func (a *Actions) Click(ctx context.Context, x, y int) error {
	script := fmt.Sprintf(`tell application "System Events" to click at {%d, %d}`, x, y)
	if _, err := runOsascript(ctx, script); err != nil {
		return fmt.Errorf("click at %d,%d: %w", x, y, err)
	}
	logging.Get(logging.CategoryAction).Debugw("clicked", "x", x, "y", y)
	return nil
}

func (a *Actions) DoubleClick(ctx context.Context, x, y int) error {
	script := fmt.Sprintf(
		`tell application "System Events"
	click at {%d, %d}
	delay 0.05
	click at {%d, %d}
end tell`, x, y, x, y)
	if _, err := runOsascript(ctx, script); err != nil {
		return fmt.Errorf("double click at %d,%d: %w", x, y, err)
	}
	return nil
}

func (a *Actions) TypeText(ctx context.Context, text string) error {
	script := fmt.Sprintf(`tell application "System Events" to keystroke "%s"`,
		escapeAppleScript(text))
	if _, err := runOsascript(ctx, script); err != nil {
		return fmt.Errorf("type text: %w", err)
	}
	return nil
}

// keyCodes maps the named keys the shortcut parser emits to macOS virtual
// key codes, which System Events needs for non-character keys.
var keyCodes = map[string]int{
	"return":      36,
	"tab":         48,
	"space":       49,
	"delete":      51,
	"escape":      53,
	"left arrow":  123,
	"right arrow": 124,
	"down arrow":  125,
	"up arrow":    126,
}

// Keystroke presses one key with modifiers already in AppleScript form
// ("command down", "shift down", ...). Named keys are sent as virtual key
// codes, everything else as a literal character keystroke.
func (a *Actions) Keystroke(ctx context.Context, key string, modifiers []string) error {
	var stroke string
	if code, ok := keyCodes[key]; ok {
		stroke = fmt.Sprintf("key code %d", code)
	} else {
		stroke = fmt.Sprintf(`keystroke "%s"`, escapeAppleScript(key))
	}
	if len(modifiers) > 0 {
		stroke += " using {" + strings.Join(modifiers, ", ") + "}"
	}
	if _, err := runOsascript(ctx, `tell application "System Events" to `+stroke); err != nil {
		return fmt.Errorf("keystroke %s: %w", key, err)
	}
	logging.Get(logging.CategoryAction).Debugw("keystroke", "key", key, "modifiers", modifiers)
	return nil
}

func (a *Actions) LaunchApp(ctx context.Context, name string) error {
	script := fmt.Sprintf(`tell application "%s" to activate`, escapeAppleScript(name))
	if _, err := runOsascript(ctx, script); err != nil {
		return fmt.Errorf("launch %s: %w", name, err)
	}
	return nil
}

func (a *Actions) ActivateApp(ctx context.Context, name string) error {
	script := fmt.Sprintf(
		`tell application "System Events" to set frontmost of process "%s" to true`,
		escapeAppleScript(name))
	if _, err := runOsascript(ctx, script); err != nil {
		// The process may not be running yet; fall back to launch.
		return a.LaunchApp(ctx, name)
	}
	return nil
}
