package macos

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"deskpilot/internal/capture"
	"deskpilot/internal/logging"
)

// Screen captures displays with the screencapture tool.
type Screen struct{}

// Displays lists attached displays. Logical bounds come from the Finder
// desktop; the pixel scale is derived lazily on first capture. Display IDs
// are 1-based indexes as screencapture's -D flag expects.
func (s *Screen) Displays(ctx context.Context) ([]capture.Display, error) {
	out, err := runOsascript(ctx, `tell application "Finder" to get bounds of window of desktop`)
	if err != nil {
		return nil, fmt.Errorf("list displays: %w", err)
	}
	// "0, 0, 1512, 982" spans all displays; treat it as one logical
	// surface captured from the main display.
	parts := strings.Split(out, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("list displays: unexpected desktop bounds %q", out)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("list displays: parse bounds %q: %w", out, err)
		}
		vals[i] = v
	}
	return []capture.Display{{
		ID:      "1",
		Bounds:  capture.Rect{X: vals[0], Y: vals[1], W: vals[2] - vals[0], H: vals[3] - vals[1]},
		Scale:   0, // filled from the first capture's pixel size
		Primary: true,
	}}, nil
}

// Capture screenshots one display at native resolution.
func (s *Screen) Capture(ctx context.Context, displayID string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, osCallTimeout)
	defer cancel()

	dir, err := os.MkdirTemp("", "deskpilot-cap-")
	if err != nil {
		return nil, "", fmt.Errorf("capture: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "frame.png")

	args := []string{"-x", "-t", "png"}
	if displayID != "" {
		args = append(args, "-D", displayID)
	}
	args = append(args, path)

	start := time.Now()
	cmd := exec.CommandContext(ctx, "screencapture", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, "", fmt.Errorf("screencapture: %s", msg)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("capture: read frame: %w", err)
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		logging.Get(logging.CategoryCapture).Debugw("screen captured",
			"display", displayID, "px_w", cfg.Width, "px_h", cfg.Height,
			"bytes", len(data), "elapsed", time.Since(start))
	}
	return data, "image/png", nil
}
