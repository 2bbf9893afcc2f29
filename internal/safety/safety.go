// Package safety screens questions for crisis language before any AI call.
package safety

import "strings"

const (
	// Message is shown in place of a decoded result when a question is screened out.
	Message = "Your question suggests concerns about your safety or well-being. For your safety, we cannot process this request."
	// Support points the visitor to real help.
	Support = "If you feel unsafe or in distress, please reach out to a licensed professional or call 911."
)

// CrisisKeywords is matched as a case-insensitive substring.
var CrisisKeywords = []string{
	"suicide",
	"suicidal",
	"kill myself",
	"end my life",
	"take my life",
	"want to die",
	"self-harm",
	"self harm",
	"hurt myself",
	"cut myself",
	"overdose",
	"no reason to live",
	"kill someone",
	"hurt someone",
	"murder",
	"abuse",
	"being abused",
}

// ContainsCrisisLanguage reports whether text mentions any crisis keyword.
func ContainsCrisisLanguage(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range CrisisKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Filter screens text only when enabled, so variants without a crisis filter
// share the same call site.
type Filter struct {
	Enabled bool
}

// Screen reports whether the question must short-circuit.
func (f Filter) Screen(text string) bool {
	return f.Enabled && ContainsCrisisLanguage(text)
}
