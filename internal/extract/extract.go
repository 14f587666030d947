// Package extract pulls structured JSON out of free-form model output.
// Models wrap JSON in prose, fence it in markdown, truncate it, or skip it
// entirely; callers that need a plan or an observation go through this
// package instead of calling json.Unmarshal on raw text.
package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// FencedBlocks returns the inner text of every markdown code fence,
// in order of appearance.
func FencedBlocks(s string) []string {
	matches := fencedBlockRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, strings.TrimSpace(m[1]))
	}
	return blocks
}

// JSONCandidates scans the input for top-level JSON object candidates.
// It handles nested braces and string escaping to identify boundaries.
//
// A byte-level state machine is used rather than regex extraction; it is
// safe to iterate bytes for ASCII delimiters ({, }, ", \) because UTF-8
// guarantees ASCII bytes never appear inside a multi-byte sequence.
func JSONCandidates(s string) []string {
	var candidates []string
	var depth int
	start := -1
	var inString, escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}
		if b == '"' {
			inString = true
			continue
		}
		if b == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if b == '}' {
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return candidates
}

// FirstObject finds the first parseable JSON object in the input and
// unmarshals it into out. Fenced blocks are tried before bare candidates
// so a model that both narrates and fences gets the fenced version.
// Returns false if nothing in the input parses.
func FirstObject(s string, out interface{}) bool {
	sources := FencedBlocks(s)
	sources = append(sources, s)
	for _, src := range sources {
		for _, cand := range JSONCandidates(src) {
			if json.Unmarshal([]byte(cand), out) == nil {
				return true
			}
		}
	}
	return false
}

var looseLineRe = regexp.MustCompile(`^\s*"?([A-Za-z_][A-Za-z0-9_]*)"?\s*[:=]\s*(.+?)\s*,?\s*$`)

// LooseKeyValues scans line-oriented `key: value` text and returns the
// collected pairs with keys lowercased. Values may be quoted or bare;
// trailing commas are tolerated. Used as the fallback when no JSON object
// parses at all.
func LooseKeyValues(s string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		m := looseLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ToLower(m[1])
		val := strings.TrimSpace(m[2])
		val = strings.Trim(val, `"'`)
		if _, seen := out[key]; !seen {
			out[key] = val
		}
	}
	return out
}

// String reads a string field from a decoded JSON map, accepting any of
// the given synonym keys in order.
func String(m map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Bool reads a boolean field, tolerating string renderings ("true", "yes").
func Bool(m map[string]interface{}, keys ...string) (bool, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "yes", "1":
				return true, true
			case "false", "no", "0":
				return false, true
			}
		}
	}
	return false, false
}

// Float reads a numeric field, tolerating JSON numbers and numeric strings.
func Float(m map[string]interface{}, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, true
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
