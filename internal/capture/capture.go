// Package capture produces in-memory screenshots with front-window
// metadata and a coarse luminance signature for cheap frame-to-frame
// change detection.
package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Scope says whether a capture covers the whole display or the front window.
type Scope string

const (
	ScopeFull   Scope = "full"
	ScopeWindow Scope = "window"
)

// Rect is a rectangle in logical screen coordinates.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// CenterX returns the horizontal center of the rectangle.
func (r Rect) CenterX() float64 { return r.X + r.W/2 }

// CenterY returns the vertical center of the rectangle.
func (r Rect) CenterY() float64 { return r.Y + r.H/2 }

// Capture is one screenshot plus metadata. Created fresh each sampling
// tick and never mutated.
type Capture struct {
	Data        []byte
	MIME        string
	Signature   *Signature
	Scope       Scope
	AppName     string
	WindowTitle string
	// WindowBounds is the front window's bounds in logical screen
	// coordinates, nil when unknown.
	WindowBounds *Rect
	PixelWidth   int
	PixelHeight  int
	Timestamp    time.Time
	ContentHash  string
}

// HashContent returns a short hex digest of image bytes, used to dedupe
// near-static frame bursts in the live-watch buffer.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}
