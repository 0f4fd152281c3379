// Package textnorm folds free text into the canonical form used for lexicon
// lookups and cleans raw spreadsheet/API cells before they reach the scorer.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns s decomposed (NFD) with every non-spacing mark removed,
// lowercased and trimmed. "Péssimo " becomes "pessimo". Empty input yields "".
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		// The chain only drops runes; fall back to case folding alone.
		folded = s
	}
	return strings.TrimSpace(strings.ToLower(folded))
}
