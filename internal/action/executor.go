package action

import (
	"context"
	"fmt"
	"math"
	"time"

	"deskpilot/internal/capture"
	"deskpilot/internal/logging"
)

// OsActionExecutor abstracts the OS input layer. All coordinates are in
// absolute screen space; every call honors context cancellation.
type OsActionExecutor interface {
	Click(ctx context.Context, x, y int) error
	DoubleClick(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	Keystroke(ctx context.Context, key string, modifiers []string) error
	LaunchApp(ctx context.Context, name string) error
	ActivateApp(ctx context.Context, name string) error
}

// Result reports one executed action. Failures come back as OK=false with
// a descriptive detail; the executor never panics and only returns an
// error for context cancellation, so the control loop can always record
// what happened.
type Result struct {
	OK     bool
	Detail string
}

// maxWaitMS bounds the wait action.
const maxWaitMS = 10000

// Executor maps Actions onto the OS layer.
type Executor struct {
	OS OsActionExecutor
}

// Execute runs one action. The capture provides the coordinate context for
// click remapping; it may be nil for non-click actions.
func (e *Executor) Execute(ctx context.Context, a Action, c *capture.Capture) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	log := logging.Get(logging.CategoryAction)

	switch a.Type {
	case TypeOpenApp:
		if a.App == "" {
			return Result{OK: false, Detail: "open_app requires an app name"}, nil
		}
		if err := e.OS.LaunchApp(ctx, a.App); err != nil {
			return e.osFailure(ctx, "open_app", err)
		}
		return Result{OK: true, Detail: fmt.Sprintf("opened %s", a.App)}, nil

	case TypeActivateApp:
		if a.App == "" {
			return Result{OK: false, Detail: "activate_app requires an app name"}, nil
		}
		if err := e.OS.ActivateApp(ctx, a.App); err != nil {
			return e.osFailure(ctx, "activate_app", err)
		}
		return Result{OK: true, Detail: fmt.Sprintf("activated %s", a.App)}, nil

	case TypeClick, TypeDoubleClick:
		if math.IsNaN(a.X) || math.IsNaN(a.Y) {
			return Result{OK: false, Detail: fmt.Sprintf("%s has non-numeric coordinates", a.Type)}, nil
		}
		x, y, mapped := RemapClickPoint(a.X, a.Y, c)
		log.Debugw("click", "type", string(a.Type), "x", x, "y", y, "remapped", mapped)
		var err error
		if a.Type == TypeDoubleClick {
			err = e.OS.DoubleClick(ctx, x, y)
		} else {
			err = e.OS.Click(ctx, x, y)
		}
		if err != nil {
			return e.osFailure(ctx, string(a.Type), err)
		}
		return Result{OK: true, Detail: fmt.Sprintf("%s at (%d,%d)", a.Type, x, y)}, nil

	case TypeTypeText:
		if err := e.OS.TypeText(ctx, a.Text); err != nil {
			return e.osFailure(ctx, "type_text", err)
		}
		return Result{OK: true, Detail: fmt.Sprintf("typed %d chars", len(a.Text))}, nil

	case TypeShortcut:
		sc, err := ParseShortcut(a.Keys)
		if err != nil {
			return Result{}, err
		}
		if err := e.OS.Keystroke(ctx, sc.Key, sc.Modifiers); err != nil {
			return e.osFailure(ctx, "shortcut", err)
		}
		return Result{OK: true, Detail: fmt.Sprintf("sent %s", a.Keys)}, nil

	case TypeWait:
		ms := a.WaitMS
		if math.IsNaN(ms) || ms < 0 {
			ms = 0
		}
		if ms > maxWaitMS {
			ms = maxWaitMS
		}
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		return Result{OK: true, Detail: fmt.Sprintf("waited %.0fms", ms)}, nil

	case TypeDone:
		// Signal only; the control loop terminates on it.
		return Result{OK: true, Detail: a.Reason}, nil

	default:
		return Result{OK: false, Detail: fmt.Sprintf("unsupported action %q", a.Type)}, nil
	}
}

// osFailure converts an OS-layer error into a Result, except cancellation
// which propagates so the loop can distinguish "paused" from "failed".
func (e *Executor) osFailure(ctx context.Context, what string, err error) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	return Result{OK: false, Detail: fmt.Sprintf("%s failed: %v", what, err)}, nil
}

// RemapClickPoint converts planner coordinates from screenshot pixel space
// to absolute screen space. When the capture was window-scoped with known
// bounds and the point plausibly lies inside the image (or the bounds),
// the point is scaled by bounds/image and translated by the window origin.
// Otherwise the point is treated as already absolute; the planner cannot
// be trusted to emit one coordinate space consistently.
func RemapClickPoint(x, y float64, c *capture.Capture) (sx, sy int, mapped bool) {
	if c == nil || c.Scope != capture.ScopeWindow || c.WindowBounds == nil ||
		c.PixelWidth <= 0 || c.PixelHeight <= 0 {
		return int(math.Round(x)), int(math.Round(y)), false
	}

	b := *c.WindowBounds
	inImage := within(x, float64(c.PixelWidth)) && within(y, float64(c.PixelHeight))
	inBounds := within(x, b.W) && within(y, b.H)
	if !inImage && !inBounds {
		return int(math.Round(x)), int(math.Round(y)), false
	}

	fx := b.X + x*(b.W/float64(c.PixelWidth))
	fy := b.Y + y*(b.H/float64(c.PixelHeight))
	return int(math.Round(fx)), int(math.Round(fy)), true
}

// within allows a small tolerance past the edges for rounding slop.
func within(v, dim float64) bool {
	return v >= -2 && v <= dim+2
}
