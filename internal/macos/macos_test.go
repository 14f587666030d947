package macos

import "testing"

func TestEscapeAppleScript(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`hello`, `hello`},
		{`say "hi"`, `say \"hi\"`},
		{`path\to`, `path\\to`},
	}
	for _, tt := range tests {
		if got := escapeAppleScript(tt.in); got != tt.want {
			t.Errorf("escapeAppleScript(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePair(t *testing.T) {
	if got := parsePair("100, 200"); got == nil || got[0] != 100 || got[1] != 200 {
		t.Errorf("parsePair(\"100, 200\") = %v", got)
	}
	if parsePair("") != nil {
		t.Error("parsePair(\"\") should be nil")
	}
	if parsePair("1,2,3") != nil {
		t.Error("parsePair with three fields should be nil")
	}
}

func TestKeyCodesCoverShortcutParserKeys(t *testing.T) {
	for _, key := range []string{"return", "tab", "space", "delete", "escape",
		"left arrow", "right arrow", "down arrow", "up arrow"} {
		if _, ok := keyCodes[key]; !ok {
			t.Errorf("no key code for %q", key)
		}
	}
}
