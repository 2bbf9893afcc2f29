package formatter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// BannedWords are medical or therapeutic claims the copy must never make.
var BannedWords = []string{
	"diagnose", "diagnosis", "cure", "cured", "therapy", "therapist", "treatment",
	"medication", "prescribe", "prescription", "disorder", "clinical",
	"guarantee", "guaranteed",
}

// TechTerms reference the machinery behind the decoder.
var TechTerms = []string{
	"ai", "algorithm", "algorithms", "chatbot", "chatbots", "bot", "bots", "gemini",
	"gpt", "llm", "openai", "software", "computer", "computers", "machine", "machines",
	"digital", "technology",
}

var (
	bannedPattern = wordListPattern(BannedWords)
	techPattern   = wordListPattern(TechTerms)

	pronounPattern = regexp.MustCompile(`(?i)\b(i['’](?:m|ve|ll|d)|i|me|my|mine)\b`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s*$`)
)

var pronouns = map[string]string{
	"i":    "we",
	"me":   "us",
	"my":   "our",
	"mine": "ours",
	"i'm":  "we're",
	"i've": "we've",
	"i'll": "we'll",
	"i'd":  "we'd",
}

func wordListPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// normalizePronouns rewrites first-person singular as plural, capitalising a
// replacement that opens a sentence.
func normalizePronouns(text string) string {
	matches := pronounPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	prev := 0
	for _, m := range matches {
		b.WriteString(text[prev:m[0]])
		key := strings.ToLower(strings.ReplaceAll(text[m[0]:m[1]], "’", "'"))
		repl := pronouns[key]
		if atSentenceStart(text[:m[0]]) {
			repl = capitalize(repl)
		}
		b.WriteString(repl)
		prev = m[1]
	}
	b.WriteString(text[prev:])
	return b.String()
}

func atSentenceStart(before string) bool {
	if strings.TrimSpace(before) == "" {
		return true
	}
	return sentenceEnd.MatchString(before)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func removeBanned(text string) string {
	return tidy(bannedPattern.ReplaceAllString(text, ""))
}

func removeTechTerms(text string) string {
	return tidy(techPattern.ReplaceAllString(text, ""))
}

// ContainsBanned reports whether text still carries a banned word or tech term.
func ContainsBanned(text string) bool {
	return bannedPattern.MatchString(text) || techPattern.MatchString(text)
}
