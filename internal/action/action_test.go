package action

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShortcut(t *testing.T) {
	tests := []struct {
		spec    string
		key     string
		mods    []string
		wantErr bool
	}{
		{spec: "cmd+shift+p", key: "p", mods: []string{"command down", "shift down"}},
		{spec: "cmd+enter", key: "return", mods: []string{"command down"}},
		{spec: "ctrl+alt+delete", key: "delete", mods: []string{"control down", "option down"}},
		{spec: "esc", key: "escape"},
		{spec: "cmd+up", key: "up arrow", mods: []string{"command down"}},
		{spec: "CMD + Shift + P", key: "p", mods: []string{"command down", "shift down"}},
		{spec: "a", key: "a"},
		{spec: "", wantErr: true},
		{spec: "  +  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			sc, err := ParseShortcut(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, sc.Key)
			assert.Equal(t, tt.mods, sc.Modifiers)
		})
	}
}

func TestFromRaw(t *testing.T) {
	a, ok := FromRaw(map[string]interface{}{
		"action": "click",
		"x":      float64(120),
		"y":      "340",
	})
	require.True(t, ok)
	assert.Equal(t, TypeClick, a.Type)
	assert.Equal(t, 120.0, a.X)
	assert.Equal(t, 340.0, a.Y)

	a, ok = FromRaw(map[string]interface{}{"action": "click", "x": "abc", "y": nil})
	require.True(t, ok)
	assert.True(t, math.IsNaN(a.X))
	assert.True(t, math.IsNaN(a.Y))

	_, ok = FromRaw(map[string]interface{}{"action": "teleport"})
	assert.False(t, ok)

	_, ok = FromRaw(map[string]interface{}{"reason": "no type at all"})
	assert.False(t, ok)

	a, ok = FromRaw(map[string]interface{}{"action": "done", "reason": "all read"})
	require.True(t, ok)
	assert.Equal(t, "all read", a.Reason)
}
