package observe

import (
	"strings"
	"testing"

	"deskpilot/internal/status"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStrictJSON(t *testing.T) {
	raw := "```json\n" + `{
		"should_notify": true,
		"severity": "warn",
		"summary": "build failed",
		"reply": "The CI build just failed on main.",
		"memory_update": "CI red since 14:02",
		"question": "Want me to open the logs?",
		"issue": true,
		"confidence": 0.9,
		"dedupe_key": "ci-fail"
	}` + "\n```"

	obs := Normalize(raw)
	assert.True(t, obs.ShouldNotify)
	assert.Equal(t, status.SeverityWarn, obs.Severity)
	assert.Equal(t, "build failed", obs.Summary)
	assert.Equal(t, "CI red since 14:02", obs.MemoryUpdate)
	assert.True(t, obs.Issue)
	assert.Equal(t, 0.9, obs.Confidence)
	assert.Equal(t, DedupeKey("ci-fail", obs), obs.DedupeKey)
	assert.Len(t, obs.DedupeKey, 12)
}

func TestNormalizeFieldSynonyms(t *testing.T) {
	obs := Normalize(`{"observation": "screen idle", "answer": "nothing new", "shouldNotify": false, "memoryUpdate": "idle"}`)
	assert.Equal(t, "screen idle", obs.Summary)
	assert.Equal(t, "nothing new", obs.Reply)
	assert.Equal(t, "idle", obs.MemoryUpdate)
	assert.False(t, obs.ShouldNotify)
}

func TestNormalizeLooseKeyValues(t *testing.T) {
	raw := "summary: new email arrived\nreply: \"You got mail from Kim.\"\nnotify: yes\nseverity: info"
	obs := Normalize(raw)
	assert.Equal(t, "new email arrived", obs.Summary)
	assert.Equal(t, "You got mail from Kim.", obs.Reply)
	assert.True(t, obs.ShouldNotify)
	assert.Equal(t, status.SeverityInfo, obs.Severity)
}

func TestNormalizeProseFallback(t *testing.T) {
	raw := "The screen shows a chat window with no new messages."
	obs := Normalize(raw)
	assert.True(t, obs.ShouldNotify)
	assert.Equal(t, raw, obs.Reply)
	assert.Equal(t, fallbackConfidence, obs.Confidence)
	assert.NotEmpty(t, obs.DedupeKey)
}

// Normalize must be total over arbitrary input.
func TestNormalizeNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"{",
		"}{",
		`{"summary":}`,
		`{"confidence": "very"}`,
		`{"severity": 42}`,
		strings.Repeat("a", 100000),
		"```json\n\n```",
		`{"summary": null, "reply": null}`,
		"键: 值\n无结构文本",
	}
	for _, in := range inputs {
		obs := Normalize(in)
		assert.GreaterOrEqual(t, obs.Confidence, 0.0)
		assert.LessOrEqual(t, obs.Confidence, 1.0)
		assert.NotEmpty(t, obs.DedupeKey)
	}
}

func TestDedupeKeyDeterminism(t *testing.T) {
	a := Observation{Severity: status.SeverityInfo, Summary: "s", Reply: "r", Question: "q"}
	assert.Equal(t, DedupeKey("", a), DedupeKey("", a))
	assert.Equal(t, DedupeKey("k", a), DedupeKey("k", Observation{}))
	assert.NotEqual(t, DedupeKey("", a), DedupeKey("", Observation{Summary: "other"}))
}

func TestNormalizeQuestion(t *testing.T) {
	assert.Equal(t,
		NormalizeQuestion("  Want me to   open the logs?  "),
		NormalizeQuestion("want me to open the logs"))
	assert.Equal(t, "需要我帮你回复吗", NormalizeQuestion("需要我帮你回复吗？"))
}

func TestConfidenceClamped(t *testing.T) {
	assert.Equal(t, 1.0, Normalize(`{"summary":"x","confidence": 7}`).Confidence)
	assert.Equal(t, 0.0, Normalize(`{"summary":"x","confidence": -2}`).Confidence)
}
