package macos

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"deskpilot/internal/capture"
	"deskpilot/internal/logging"
)

// frontWindowScript reports the frontmost process, its front window title,
// and the window's position and size, pipe-separated. Title and bounds
// are best-effort: some processes expose no windows to System Events.
const frontWindowScript = `
tell application "System Events"
	set frontProc to first application process whose frontmost is true
	set procName to name of frontProc
	set winTitle to ""
	set winPos to ""
	set winSize to ""
	try
		set frontWin to front window of frontProc
		set winTitle to name of frontWin
		set {px, py} to position of frontWin
		set {pw, ph} to size of frontWin
		set winPos to (px as text) & "," & (py as text)
		set winSize to (pw as text) & "," & (ph as text)
	end try
	return procName & "|" & winTitle & "|" & winPos & "|" & winSize
end tell`

// Window looks up the frontmost window via System Events.
type Window struct{}

func (w *Window) FrontWindow(ctx context.Context) (capture.FrontWindow, error) {
	out, err := runOsascript(ctx, frontWindowScript)
	if err != nil {
		return capture.FrontWindow{}, fmt.Errorf("front window: %w", err)
	}

	parts := strings.SplitN(out, "|", 4)
	if len(parts) < 4 {
		return capture.FrontWindow{}, fmt.Errorf("front window: unexpected reply %q", out)
	}
	fw := capture.FrontWindow{
		AppName:     strings.TrimSpace(parts[0]),
		WindowTitle: strings.TrimSpace(parts[1]),
	}
	if pos, size := parsePair(parts[2]), parsePair(parts[3]); pos != nil && size != nil {
		fw.Bounds = &capture.Rect{X: pos[0], Y: pos[1], W: size[0], H: size[1]}
	} else {
		logging.Get(logging.CategoryCapture).Debugw("front window has no reported bounds",
			"app", fw.AppName)
	}
	return fw, nil
}

func parsePair(s string) []float64 {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return nil
	}
	out := make([]float64, 2)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil
		}
		out[i] = v
	}
	return out
}
