// Package formatter turns raw AI field text into short, policy-compliant display
// strings. Every function here is pure and total.
package formatter

import (
	"regexp"
	"strings"
	"unicode"

	"breakfear-decoder/pkg/registry"
)

const (
	maxChars   = 280
	truncateAt = 277
	ellipsis   = "..."
)

var (
	scrubChars       = strings.NewReplacer(":", " ", "-", " ", "&", " ")
	spaceBeforePunct = regexp.MustCompile(`\s+([.,!?;])`)
	leadingPunct     = regexp.MustCompile(`^[\s.,;!?]+`)
)

// Format runs the full pipeline for one field. A role with a closing sentence
// gets the suffix treatment; any other role falls back to role.Fallback when
// nothing survives.
func Format(raw string, role registry.FieldSpec) string {
	if role.IsSuffix() {
		return formatSuffix(raw, role)
	}
	out := pipeline(raw, role)
	if out == "" {
		return role.Fallback
	}
	return out
}

// FormatResult formats every field the variant declares. Missing fields format
// to their fallback.
func FormatResult(v registry.Variant, raw map[string]string) map[string]string {
	out := make(map[string]string, len(v.Fields))
	for _, f := range v.Fields {
		out[f.Name] = Format(raw[f.Name], f)
	}
	return out
}

func pipeline(text string, role registry.FieldSpec) string {
	text = dedupSentences(text, role.MaxSentences)
	text = scrub(text)
	text = normalizePronouns(text)
	text = removeBanned(text)
	text = removeTechTerms(text)
	// removals can make two sentences equal
	text = dedupSentences(text, role.MaxSentences)
	return capWords(text, role.MaxWords)
}

func formatSuffix(raw string, role registry.FieldSpec) string {
	body := stripClosing(strings.TrimSpace(raw), role.ClosingSentence)
	body = pipeline(body, role)
	if body == "" {
		body = role.Fallback
	}
	if !endsWithTerminal(body) {
		body += "."
	}
	return body + " " + role.ClosingSentence
}

// stripClosing removes every trailing copy of closing, ignoring case and an
// optional final period.
func stripClosing(text, closing string) string {
	candidates := []string{strings.ToLower(closing)}
	if trimmed := strings.TrimRight(closing, "."); trimmed != closing {
		candidates = append(candidates, strings.ToLower(trimmed))
	}
	for {
		lower := strings.ToLower(text)
		stripped := false
		for _, c := range candidates {
			if c != "" && strings.HasSuffix(lower, c) {
				text = strings.TrimSpace(text[:len(text)-len(c)])
				stripped = true
				break
			}
		}
		if !stripped {
			return text
		}
	}
}

// ==========================
// Step 1: sentence dedup and cap
// ==========================

func dedupSentences(text string, max int) string {
	sentences := splitSentences(text)
	if max <= 0 {
		max = len(sentences)
	}
	seen := make(map[string]bool)
	kept := make([]string, 0, max)
	for _, s := range sentences {
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		if len(kept) < max {
			kept = append(kept, s)
		}
	}
	return capLength(strings.Join(kept, " "))
}

// splitSentences breaks text after runs of . ! ? that are followed by
// whitespace or the end of the text.
func splitSentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		j := i
		for j+1 < len(runes) && isTerminal(runes[j+1]) {
			j++
		}
		if j+1 == len(runes) || unicode.IsSpace(runes[j+1]) {
			if s := strings.TrimSpace(string(runes[start : j+1])); s != "" {
				out = append(out, s)
			}
			start = j + 1
		}
		i = j
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func capLength(s string) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	cut := []rune(strings.TrimRightFunc(string(runes[:truncateAt]), unicode.IsSpace))
	if n := len(cut); n > 0 && isDangling(cut[n-1]) {
		cut = cut[:n-1]
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + ellipsis
}

// ==========================
// Step 2: character scrub
// ==========================

func scrub(text string) string {
	return tidy(scrubChars.Replace(text))
}

// tidy collapses whitespace and drops spaces before punctuation and any
// punctuation left dangling at the start.
func tidy(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	return leadingPunct.ReplaceAllString(text, "")
}

// ==========================
// Step 6: word cap
// ==========================

func capWords(text string, max int) string {
	words := strings.Fields(text)
	if max <= 0 || len(words) <= max {
		return text
	}
	words = words[:max]
	last := strings.TrimRightFunc(words[max-1], unicode.IsPunct)
	words[max-1] = last + ellipsis
	return strings.Join(words, " ")
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isDangling(r rune) bool {
	return strings.ContainsRune(".,;:!?-&", r)
}

func endsWithTerminal(s string) bool {
	r := []rune(s)
	return len(r) > 0 && isTerminal(r[len(r)-1])
}
