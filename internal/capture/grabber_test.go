package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScreen struct {
	displays []Display
	frames   map[string][]byte
	captured []string
}

func (f *fakeScreen) Displays(ctx context.Context) ([]Display, error) {
	return f.displays, nil
}

func (f *fakeScreen) Capture(ctx context.Context, id string) ([]byte, string, error) {
	data, ok := f.frames[id]
	if !ok {
		return nil, "", fmt.Errorf("no frame for display %s", id)
	}
	f.captured = append(f.captured, id)
	return data, "image/png", nil
}

type fakeWindow struct {
	fw  FrontWindow
	err error
}

func (f *fakeWindow) FrontWindow(ctx context.Context) (FrontWindow, error) {
	return f.fw, f.err
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGrabberPicksNearestDisplay(t *testing.T) {
	screen := &fakeScreen{
		displays: []Display{
			{ID: "main", Bounds: Rect{0, 0, 1440, 900}, Scale: 2, Primary: true},
			{ID: "side", Bounds: Rect{1440, 0, 1920, 1080}, Scale: 1},
		},
		frames: map[string][]byte{
			"main": encodePNG(t, 2880, 1800),
			"side": encodePNG(t, 1920, 1080),
		},
	}
	window := &fakeWindow{fw: FrontWindow{
		AppName:     "WeChat",
		WindowTitle: "Chats",
		Bounds:      &Rect{X: 2000, Y: 200, W: 800, H: 600},
	}}

	g := &Grabber{Screen: screen, Window: window, Scope: ScopeFull}
	c, err := g.Capture(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"side"}, screen.captured)
	assert.Equal(t, "WeChat", c.AppName)
	assert.Equal(t, ScopeFull, c.Scope)
	assert.Equal(t, 1920, c.PixelWidth)
	assert.NotNil(t, c.Signature)
	assert.NotEmpty(t, c.ContentHash)
}

func TestGrabberFallsBackToPrimary(t *testing.T) {
	screen := &fakeScreen{
		displays: []Display{
			{ID: "side", Bounds: Rect{1440, 0, 1920, 1080}, Scale: 1},
			{ID: "main", Bounds: Rect{0, 0, 1440, 900}, Scale: 1, Primary: true},
		},
		frames: map[string][]byte{"main": encodePNG(t, 1440, 900)},
	}
	g := &Grabber{Screen: screen, Window: &fakeWindow{fw: FrontWindow{AppName: "Finder"}}}

	c, err := g.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, screen.captured)
	assert.Nil(t, c.WindowBounds)
}

func TestGrabberWindowScopeCrops(t *testing.T) {
	screen := &fakeScreen{
		displays: []Display{{ID: "main", Bounds: Rect{0, 0, 1440, 900}, Scale: 2, Primary: true}},
		frames:   map[string][]byte{"main": encodePNG(t, 2880, 1800)},
	}
	window := &fakeWindow{fw: FrontWindow{
		AppName: "WeChat",
		Bounds:  &Rect{X: 100, Y: 100, W: 400, H: 300},
	}}

	g := &Grabber{Screen: screen, Window: window, Scope: ScopeWindow}
	c, err := g.Capture(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ScopeWindow, c.Scope)
	// 400x300 logical at 2x scale.
	assert.Equal(t, 800, c.PixelWidth)
	assert.Equal(t, 600, c.PixelHeight)
}

func TestGrabberEmptyCaptureIsError(t *testing.T) {
	screen := &fakeScreen{
		displays: []Display{{ID: "main", Bounds: Rect{0, 0, 1440, 900}, Scale: 1, Primary: true}},
		frames:   map[string][]byte{"main": {}},
	}
	g := &Grabber{Screen: screen}
	_, err := g.Capture(context.Background())
	assert.Error(t, err)
}
