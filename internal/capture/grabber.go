package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"deskpilot/internal/logging"

	"golang.org/x/sync/errgroup"
)

// Display describes one attached display in logical screen coordinates.
type Display struct {
	ID      string
	Bounds  Rect
	Scale   float64 // pixels per logical point
	Primary bool
}

// FrontWindow is the frontmost window's identity and placement.
type FrontWindow struct {
	AppName     string
	WindowTitle string
	// Bounds is nil when the window system could not report placement.
	Bounds *Rect
}

// ScreenCaptureProvider abstracts the OS screenshot facility.
type ScreenCaptureProvider interface {
	// Displays lists attached displays; the first entry is the primary
	// when none is flagged.
	Displays(ctx context.Context) ([]Display, error)
	// Capture returns an encoded image of the given display at its
	// native pixel resolution.
	Capture(ctx context.Context, displayID string) (data []byte, mime string, err error)
}

// FrontWindowProvider abstracts front-window lookup.
type FrontWindowProvider interface {
	FrontWindow(ctx context.Context) (FrontWindow, error)
}

// Grabber produces Captures from the providers. One Grabber serves both
// control loops; it holds no mutable state.
type Grabber struct {
	Screen ScreenCaptureProvider
	Window FrontWindowProvider
	Scope  Scope
}

// Capture grabs one frame: pick the display nearest the front window's
// center (primary when placement is unknown), capture it, optionally crop
// to the window, and compute the luminance signature. Any failure is fatal
// to the calling round.
func (g *Grabber) Capture(ctx context.Context) (*Capture, error) {
	if g.Screen == nil {
		return nil, fmt.Errorf("no screen capture provider configured")
	}

	// Front-window lookup and display listing are independent subprocess
	// calls; run them concurrently. A failed window lookup is tolerated,
	// a failed display listing is fatal.
	var front FrontWindow
	var displays []Display
	eg, egCtx := errgroup.WithContext(ctx)
	if g.Window != nil {
		eg.Go(func() error {
			fw, err := g.Window.FrontWindow(egCtx)
			if err != nil {
				logging.Get(logging.CategoryCapture).Debugw("front window lookup failed", "error", err)
				return nil
			}
			front = fw
			return nil
		})
	}
	eg.Go(func() error {
		var err error
		displays, err = g.Screen.Displays(egCtx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("failed to list displays: %w", err)
	}

	display, err := pickDisplay(displays, front.Bounds)
	if err != nil {
		return nil, err
	}

	data, mime, err := g.Screen.Capture(ctx, display.ID)
	if err != nil {
		return nil, fmt.Errorf("display capture failed: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("display capture returned empty image")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode capture: %w", err)
	}

	scope := ScopeFull
	if g.Scope == ScopeWindow && front.Bounds != nil {
		cropped, ok := cropToWindow(img, *front.Bounds, display)
		if ok {
			img = cropped
			scope = ScopeWindow
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err != nil {
				return nil, fmt.Errorf("failed to encode cropped capture: %w", err)
			}
			data = buf.Bytes()
			mime = "image/png"
		}
	}

	b := img.Bounds()
	c := &Capture{
		Data:         data,
		MIME:         mime,
		Signature:    ComputeSignature(img),
		Scope:        scope,
		AppName:      front.AppName,
		WindowTitle:  front.WindowTitle,
		WindowBounds: front.Bounds,
		PixelWidth:   b.Dx(),
		PixelHeight:  b.Dy(),
		Timestamp:    time.Now(),
		ContentHash:  HashContent(data),
	}
	return c, nil
}

// pickDisplay selects the display whose bounds contain or sit nearest the
// window center. Falls back to the flagged primary, then the first display.
func pickDisplay(displays []Display, windowBounds *Rect) (Display, error) {
	if len(displays) == 0 {
		return Display{}, fmt.Errorf("no displays available")
	}

	primary := displays[0]
	for _, d := range displays {
		if d.Primary {
			primary = d
			break
		}
	}
	if windowBounds == nil {
		return primary, nil
	}

	cx, cy := windowBounds.CenterX(), windowBounds.CenterY()
	best := primary
	bestDist := -1.0
	for _, d := range displays {
		dx := clampDelta(cx, d.Bounds.X, d.Bounds.X+d.Bounds.W)
		dy := clampDelta(cy, d.Bounds.Y, d.Bounds.Y+d.Bounds.H)
		dist := dx*dx + dy*dy
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = d
		}
	}
	return best, nil
}

// clampDelta is the distance from v to the interval [lo,hi]; zero inside.
func clampDelta(v, lo, hi float64) float64 {
	if v < lo {
		return lo - v
	}
	if v > hi {
		return v - hi
	}
	return 0
}

// cropToWindow converts window bounds from logical to pixel coordinates via
// the display scale and crops. Returns ok=false when the window does not
// intersect the display, in which case the full frame stands.
func cropToWindow(img image.Image, win Rect, display Display) (image.Image, bool) {
	scale := display.Scale
	if scale <= 0 && display.Bounds.W > 0 {
		// Provider did not report a scale; derive it from the captured
		// pixel width against the display's logical width.
		scale = float64(img.Bounds().Dx()) / display.Bounds.W
	}
	if scale <= 0 {
		scale = 1
	}
	px := int((win.X - display.Bounds.X) * scale)
	py := int((win.Y - display.Bounds.Y) * scale)
	pw := int(win.W * scale)
	ph := int(win.H * scale)

	rect := image.Rect(px, py, px+pw, py+ph).Intersect(img.Bounds())
	if rect.Empty() {
		return img, false
	}

	type subImager interface {
		SubImage(image.Rectangle) image.Image
	}
	src, ok := img.(subImager)
	if !ok {
		return img, false
	}
	return src.SubImage(rect), true
}
