package badge

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"deskpilot/internal/capture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// badgeFrame paints a synthetic conversation list: grey background with an
// optional red badge (white digit core) at the given center.
func badgeFrame(t *testing.T, w, h int, badgeAt *image.Point, radius int) *capture.Capture {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	grey := color.RGBA{240, 240, 240, 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, grey)
		}
	}
	if badgeAt != nil {
		red := color.RGBA{230, 60, 60, 255}
		white := color.RGBA{255, 255, 255, 255}
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				if dx*dx+dy*dy > radius*radius {
					continue
				}
				c := red
				if dx*dx+dy*dy <= (radius/3)*(radius/3) {
					c = white
				}
				img.Set(badgeAt.X+dx, badgeAt.Y+dy, c)
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &capture.Capture{
		Data:        buf.Bytes(),
		MIME:        "image/png",
		Scope:       capture.ScopeFull,
		PixelWidth:  w,
		PixelHeight: h,
	}
}

func TestDetectFindsBadge(t *testing.T) {
	d := New(DefaultDetectorConfig())
	at := image.Point{X: 300, Y: 400}
	c := badgeFrame(t, 1200, 800, &at, 8)

	cand := d.Detect(c)
	require.NotNil(t, cand)
	assert.InDelta(t, at.X, cand.X, 3)
	assert.InDelta(t, at.Y, cand.Y, 3)
	assert.Greater(t, cand.WhiteRatio, 0.0)
}

func TestDetectNoRedReturnsNil(t *testing.T) {
	d := New(DefaultDetectorConfig())
	c := badgeFrame(t, 1200, 800, nil, 0)
	assert.Nil(t, d.Detect(c))
}

func TestDetectIgnoresBadgeOutsideStrip(t *testing.T) {
	d := New(DefaultDetectorConfig())
	// Right half of the screen is outside the left scan strip.
	at := image.Point{X: 900, Y: 400}
	c := badgeFrame(t, 1200, 800, &at, 8)
	assert.Nil(t, d.Detect(c))
}

func TestDetectRejectsTinyComponent(t *testing.T) {
	d := New(DefaultDetectorConfig())
	at := image.Point{X: 300, Y: 400}
	c := badgeFrame(t, 1200, 800, &at, 1) // area below MinArea
	assert.Nil(t, d.Detect(c))
}

func TestRowClickPointShiftAndClamp(t *testing.T) {
	d := New(DefaultDetectorConfig())

	// Scenario: candidate at (50,400), width 1200. The +8% shift gives
	// 146, below the 0.16 clamp floor of 192.
	x, y := d.RowClickPoint(&Candidate{X: 50, Y: 400}, 1200)
	assert.Equal(t, 192, x)
	assert.Equal(t, 400, y)

	// Inside the clamp range the shift applies directly.
	x, _ = d.RowClickPoint(&Candidate{X: 200, Y: 100}, 1200)
	assert.Equal(t, 296, x)

	// Above the ceiling it clamps to 0.34*width.
	x, _ = d.RowClickPoint(&Candidate{X: 400, Y: 100}, 1200)
	assert.Equal(t, 408, x)
}

func TestCandidateSameAs(t *testing.T) {
	cfg := DefaultDetectorConfig()
	a := &Candidate{X: 100, Y: 200}
	assert.True(t, a.SameAs(&Candidate{X: 120, Y: 210}, cfg))
	assert.False(t, a.SameAs(&Candidate{X: 140, Y: 210}, cfg))
	assert.False(t, a.SameAs(&Candidate{X: 110, Y: 230}, cfg))
	assert.False(t, a.SameAs(nil, cfg))
}

func TestMatchesUnreadGoal(t *testing.T) {
	tests := []struct {
		goal string
		want bool
	}{
		{"查看企业微信有没有未读消息", true},
		{"check WeChat for unread messages", true},
		{"any new message in Slack?", true},
		{"帮我看看微信消息", true},
		{"open the calculator", false},
		{"check the news", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesUnreadGoal(tt.goal), "goal %q", tt.goal)
	}
}

func TestLooksLikeChatApp(t *testing.T) {
	assert.True(t, LooksLikeChatApp("WeChat"))
	assert.True(t, LooksLikeChatApp("企业微信"))
	assert.True(t, LooksLikeChatApp("Slack"))
	assert.False(t, LooksLikeChatApp("Safari"))
	assert.False(t, LooksLikeChatApp(""))
}

func TestTargetAppHint(t *testing.T) {
	assert.Equal(t, "WeCom", TargetAppHint("查看企业微信有没有未读消息"))
	assert.Equal(t, "WeChat", TargetAppHint("reply to the WeChat group"))
	assert.Equal(t, "Slack", TargetAppHint("check slack"))
	assert.Equal(t, "", TargetAppHint("open the calculator"))
}
