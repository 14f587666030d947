// Package observe turns arbitrary model output into a structured
// Observation for the live-watch engine. Normalize is total: any string,
// including empty, prose, or broken JSON, yields a usable Observation.
package observe

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"deskpilot/internal/extract"
	"deskpilot/internal/status"
)

// Observation is the structured result of one live-watch analysis.
type Observation struct {
	ShouldNotify bool
	Severity     status.Severity
	Summary      string
	Reply        string
	MemoryUpdate string
	Question     string
	Issue        bool
	Confidence   float64
	DedupeKey    string
}

// fallbackConfidence is assigned when nothing structured was found and
// the whole text becomes the reply.
const fallbackConfidence = 0.4

// Normalize parses model output into an Observation. Strategy, in order:
// strict JSON extraction with field synonyms, loose line-oriented
// key:value scanning, then whole-text-as-reply so the system degrades to
// "just show what it said" instead of dropping output.
func Normalize(raw string) Observation {
	raw = strings.TrimSpace(raw)

	var obj map[string]interface{}
	if extract.FirstObject(raw, &obj) {
		return fromJSON(obj)
	}

	if kv := extract.LooseKeyValues(raw); len(kv) > 0 {
		if obs, ok := fromLoose(kv); ok {
			return obs
		}
	}

	obs := Observation{
		ShouldNotify: true,
		Severity:     status.SeverityInfo,
		Reply:        raw,
		Confidence:   fallbackConfidence,
	}
	obs.DedupeKey = DedupeKey("", obs)
	return obs
}

func fromJSON(m map[string]interface{}) Observation {
	var obs Observation
	obs.Summary, _ = extract.String(m, "summary", "observation")
	obs.Reply, _ = extract.String(m, "reply", "answer", "message")
	obs.MemoryUpdate, _ = extract.String(m, "memory_update", "memoryUpdate", "memory")
	obs.Question, _ = extract.String(m, "question", "ask")
	obs.ShouldNotify, _ = extract.Bool(m, "should_notify", "shouldNotify", "notify")
	obs.Issue, _ = extract.Bool(m, "issue", "problem")

	obs.Severity = parseSeverity(firstString(m, "severity", "level"))
	if conf, ok := extract.Float(m, "confidence"); ok {
		obs.Confidence = clamp01(conf)
	} else {
		obs.Confidence = 0.5
	}

	explicit, _ := extract.String(m, "dedupe_key", "dedupeKey", "key")
	obs.DedupeKey = DedupeKey(explicit, obs)
	return obs
}

func fromLoose(kv map[string]string) (Observation, bool) {
	known := 0
	for _, k := range []string{"summary", "observation", "reply", "answer", "should_notify", "notify", "severity", "question", "memory_update", "confidence"} {
		if _, ok := kv[k]; ok {
			known++
		}
	}
	if known == 0 {
		return Observation{}, false
	}

	var obs Observation
	obs.Summary = firstLoose(kv, "summary", "observation")
	obs.Reply = firstLoose(kv, "reply", "answer", "message")
	obs.MemoryUpdate = firstLoose(kv, "memory_update", "memory")
	obs.Question = firstLoose(kv, "question")
	obs.Severity = parseSeverity(firstLoose(kv, "severity", "level"))
	obs.ShouldNotify = parseLooseBool(firstLoose(kv, "should_notify", "notify"))
	obs.Issue = parseLooseBool(firstLoose(kv, "issue", "problem"))
	if f, ok := extract.Float(map[string]interface{}{"c": firstLoose(kv, "confidence")}, "c"); ok {
		obs.Confidence = clamp01(f)
	} else {
		obs.Confidence = 0.5
	}
	obs.DedupeKey = DedupeKey(kv["dedupe_key"], obs)
	return obs, true
}

func firstString(m map[string]interface{}, keys ...string) string {
	s, _ := extract.String(m, keys...)
	return s
}

func firstLoose(kv map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := kv[k]; ok {
			return v
		}
	}
	return ""
}

func parseLooseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true
	}
	return false
}

func parseSeverity(s string) status.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warn", "warning", "error":
		return status.SeverityWarn
	default:
		return status.SeverityInfo
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// DedupeKey derives the suppression key: a truncated hash of the explicit
// model-provided key when present, else of the observation's composite
// content. Deterministic so suppression can compare across rounds.
func DedupeKey(explicit string, obs Observation) string {
	src := strings.TrimSpace(explicit)
	if src == "" {
		src = strings.Join([]string{string(obs.Severity), obs.Summary, obs.Reply, obs.Question}, "|")
	}
	return shortHash(src)
}

// SummaryKey hashes the user-visible conclusion of an observation, used
// for the "same conclusion about a static screen" suppression rule.
func SummaryKey(obs Observation) string {
	return shortHash(strings.Join([]string{string(obs.Severity), obs.Summary, obs.Reply, obs.Question}, "\n"))
}

// MemoryKey hashes a visual-memory fact for dedupe.
func MemoryKey(app, window, text string) string {
	return shortHash(app + "|" + window + "|" + text)
}

// NormalizeQuestion canonicalizes a question for repeat detection.
func NormalizeQuestion(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = strings.TrimRight(q, "?？!！.。")
	return strings.Join(strings.Fields(q), " ")
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
