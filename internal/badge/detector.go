// Package badge locates unread-message badges in a capture with a local
// connected-component scan. A vision planning round costs seconds; this
// scan costs milliseconds, and a red digit badge on a conversation row is
// visually unambiguous, so unread-message goals short-circuit through here
// before falling back to the general planner.
package badge

import (
	"bytes"
	"image"
	_ "image/png"

	"deskpilot/internal/capture"
)

// DetectorConfig names every tuning constant of the scan. The defaults
// match conventional macOS chat-app layouts; non-1.0 display scales may
// need the pixel tolerances adjusted.
type DetectorConfig struct {
	// Scan strip: conversation-list badges live on the left edge.
	StripWidthRatioWindow float64 // strip width as ratio of image width, window scope
	StripWidthRatioFull   float64 // same, full-screen scope
	TopChromeRatio        float64 // vertical band start, excludes title bar and search
	BottomPadRatio        float64 // vertical band end

	// Red-ish pixel classification.
	MinRed       uint8
	MaxGreen     uint8
	MaxBlue      uint8
	RedDominance int // red must exceed green and blue by this much

	// Component filters.
	MinArea      int
	MaxArea      int
	MinBoxDim    int
	MaxBoxDim    int
	MinFillRatio float64
	MinAspect    float64

	// Row click derivation.
	RowShiftRatio float64 // shift right of badge centroid, as ratio of width
	RowMinXRatio  float64 // clamp range for the click column
	RowMaxXRatio  float64

	// Persisted-candidate tolerances for the post-click retry decision.
	SameCandidateDX int
	SameCandidateDY int
}

// DefaultDetectorConfig returns the stock tuning.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		StripWidthRatioWindow: 0.38,
		StripWidthRatioFull:   0.34,
		TopChromeRatio:        0.08,
		BottomPadRatio:        0.96,
		MinRed:                145,
		MaxGreen:              150,
		MaxBlue:               150,
		RedDominance:          40,
		MinArea:               12,
		MaxArea:               4200,
		MinBoxDim:             4,
		MaxBoxDim:             128,
		MinFillRatio:          0.18,
		MinAspect:             0.28,
		RowShiftRatio:         0.08,
		RowMinXRatio:          0.16,
		RowMaxXRatio:          0.34,
		SameCandidateDX:       28,
		SameCandidateDY:       18,
	}
}

// Candidate is one detected badge component. Ephemeral per capture.
type Candidate struct {
	X          int // centroid
	Y          int
	Area       int
	Box        image.Rectangle
	WhiteRatio float64 // white pixels inside the box; a digit badge has a white digit
	Score      float64
}

// SameAs reports whether another candidate sits at essentially the same
// position, within the configured tolerances. Used to detect that a click
// failed to open the row.
func (c *Candidate) SameAs(other *Candidate, cfg DetectorConfig) bool {
	if c == nil || other == nil {
		return false
	}
	dx := c.X - other.X
	if dx < 0 {
		dx = -dx
	}
	dy := c.Y - other.Y
	if dy < 0 {
		dy = -dy
	}
	return dx <= cfg.SameCandidateDX && dy <= cfg.SameCandidateDY
}

// Detector runs the scan. Zero value is not usable; construct with New.
type Detector struct {
	cfg DetectorConfig
}

// New creates a detector with the given tuning.
func New(cfg DetectorConfig) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the active tuning.
func (d *Detector) Config() DetectorConfig { return d.cfg }

// Detect scans a capture for the highest-scoring badge candidate, or nil
// when none survives the filters.
func (d *Detector) Detect(c *capture.Capture) *Candidate {
	if c == nil || len(c.Data) == 0 {
		return nil
	}
	img, _, err := image.Decode(bytes.NewReader(c.Data))
	if err != nil {
		return nil
	}
	return d.detectInImage(img, c.Scope)
}

func (d *Detector) detectInImage(img image.Image, scope capture.Scope) *Candidate {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	stripRatio := d.cfg.StripWidthRatioFull
	if scope == capture.ScopeWindow {
		stripRatio = d.cfg.StripWidthRatioWindow
	}
	x1 := int(float64(w) * stripRatio)
	y0 := int(float64(h) * d.cfg.TopChromeRatio)
	y1 := int(float64(h) * d.cfg.BottomPadRatio)
	if x1 < 1 || y1 <= y0 {
		return nil
	}

	region := scanRegion{
		img: img,
		x0:  bounds.Min.X,
		y0:  bounds.Min.Y + y0,
		x1:  bounds.Min.X + x1,
		y1:  bounds.Min.Y + y1,
	}

	var best *Candidate
	visited := make([]bool, (region.x1-region.x0)*(region.y1-region.y0))
	for y := region.y0; y < region.y1; y++ {
		for x := region.x0; x < region.x1; x++ {
			if visited[region.index(x, y)] || !d.isRedish(img, x, y) {
				continue
			}
			cand := d.floodFill(region, x, y, visited)
			if cand == nil {
				continue
			}
			d.score(cand, region, w)
			if best == nil || cand.Score > best.Score {
				best = cand
			}
		}
	}
	return best
}

type scanRegion struct {
	img            image.Image
	x0, y0, x1, y1 int
}

func (r scanRegion) index(x, y int) int {
	return (y-r.y0)*(r.x1-r.x0) + (x - r.x0)
}

func (r scanRegion) contains(x, y int) bool {
	return x >= r.x0 && x < r.x1 && y >= r.y0 && y < r.y1
}

func (d *Detector) isRedish(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	r8, g8, b8 := int(r>>8), int(g>>8), int(b>>8)
	return r8 >= int(d.cfg.MinRed) &&
		g8 <= int(d.cfg.MaxGreen) &&
		b8 <= int(d.cfg.MaxBlue) &&
		r8-g8 >= d.cfg.RedDominance &&
		r8-b8 >= d.cfg.RedDominance
}

func isWhiteish(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	return r>>8 >= 220 && g>>8 >= 220 && b>>8 >= 220
}

// floodFill grows a 4-connected component of red-ish pixels from the seed
// and applies the shape filters. Returns nil for rejected components.
func (d *Detector) floodFill(region scanRegion, seedX, seedY int, visited []bool) *Candidate {
	type point struct{ x, y int }
	queue := []point{{seedX, seedY}}
	visited[region.index(seedX, seedY)] = true

	minX, minY := seedX, seedY
	maxX, maxY := seedX, seedY
	var sumX, sumY, area int

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		area++
		sumX += p.x
		sumY += p.y
		if p.x < minX {
			minX = p.x
		}
		if p.x > maxX {
			maxX = p.x
		}
		if p.y < minY {
			minY = p.y
		}
		if p.y > maxY {
			maxY = p.y
		}

		for _, n := range [4]point{{p.x + 1, p.y}, {p.x - 1, p.y}, {p.x, p.y + 1}, {p.x, p.y - 1}} {
			if !region.contains(n.x, n.y) || visited[region.index(n.x, n.y)] {
				continue
			}
			visited[region.index(n.x, n.y)] = true
			if d.isRedish(region.img, n.x, n.y) {
				queue = append(queue, n)
			}
		}
	}

	if area < d.cfg.MinArea || area > d.cfg.MaxArea {
		return nil
	}
	bw := maxX - minX + 1
	bh := maxY - minY + 1
	if bw < d.cfg.MinBoxDim || bw > d.cfg.MaxBoxDim || bh < d.cfg.MinBoxDim || bh > d.cfg.MaxBoxDim {
		return nil
	}
	fill := float64(area) / float64(bw*bh)
	if fill < d.cfg.MinFillRatio {
		return nil
	}
	aspect := float64(bh) / float64(bw)
	if aspect > 1 {
		aspect = 1 / aspect
	}
	// Thin anti-aliasing artifacts are long and flat.
	if aspect < d.cfg.MinAspect {
		return nil
	}

	box := image.Rect(minX, minY, maxX+1, maxY+1)
	white := 0
	total := 0
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			total++
			if isWhiteish(region.img, x, y) {
				white++
			}
		}
	}
	whiteRatio := 0.0
	if total > 0 {
		whiteRatio = float64(white) / float64(total)
	}

	return &Candidate{
		X:          sumX / area,
		Y:          sumY / area,
		Area:       area,
		Box:        box,
		WhiteRatio: whiteRatio,
	}
}

// score rewards candidates that sit where a conversation-list badge sits
// and look like a digit badge; edge-touching components are penalized as
// likely crops of something larger.
func (d *Detector) score(c *Candidate, region scanRegion, imageWidth int) {
	score := 0.0

	// Horizontal proximity to the expected badge column (right edge of
	// the conversation list strip).
	expectedX := float64(region.x1) * 0.85
	dx := float64(c.X) - expectedX
	if dx < 0 {
		dx = -dx
	}
	score += 1.0 - dx/float64(region.x1-region.x0+1)

	// Vertical position below chrome.
	if c.Y > region.y0+8 {
		score += 0.5
	}

	// Area and shape within the typical digit-badge range.
	if c.Area >= 40 && c.Area <= 900 {
		score += 0.8
	}
	if c.WhiteRatio >= 0.05 && c.WhiteRatio <= 0.6 {
		score += 0.6
	}

	// Edge-touching components are usually partial shapes.
	if c.Box.Min.X <= region.x0 || c.Box.Max.X >= region.x1 ||
		c.Box.Min.Y <= region.y0 || c.Box.Max.Y >= region.y1 {
		score -= 0.7
	}

	c.Score = score
}

// RowClickPoint derives the click target for a candidate: the row body to
// the right of the badge, not the badge glyph itself. The x coordinate is
// shifted right by RowShiftRatio of the image width and clamped into the
// plausible conversation-list column range.
func (d *Detector) RowClickPoint(c *Candidate, imageWidth int) (x, y int) {
	fx := float64(c.X) + float64(imageWidth)*d.cfg.RowShiftRatio
	minX := float64(imageWidth) * d.cfg.RowMinXRatio
	maxX := float64(imageWidth) * d.cfg.RowMaxXRatio
	if fx < minX {
		fx = minX
	}
	if fx > maxX {
		fx = maxX
	}
	return int(fx), c.Y
}
