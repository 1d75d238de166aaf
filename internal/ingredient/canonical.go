// Package ingredient normalizes raw ingredient text coming back from the
// extraction model into a stable lookup key and a display form.
package ingredient

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var trailingPunctuation = regexp.MustCompile(`[.,;:!?]+$`)

// Canonicalize returns the canonical_name key for a raw ingredient name.
// It trims, lowercases, collapses whitespace runs (Unicode spaces included) to
// a single space and strips trailing punctuation. An empty result means the
// ingredient must be skipped.
//
// No stemming or synonym lookup happens here; the extraction prompt asks the
// model for singular nouns.
func Canonicalize(raw string) string {
	s := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if s == "" {
		return ""
	}
	s = trailingPunctuation.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// DisplayName returns the title-cased display form of a raw ingredient name.
func DisplayName(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	// cases.Caser is stateful, so build one per call.
	return cases.Title(language.Und).String(s)
}
