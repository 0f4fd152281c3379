package risk

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/denizumutdereli/npsrisk/pkg/lexicon"
)

var (
	exclamationRun = regexp.MustCompile(`!{2,}`)
	questionRun    = regexp.MustCompile(`\?{2,}`)
)

// capsFactor scores shouting: the share of uppercase letters in raw text.
func capsFactor(raw string) float64 {
	if utf8.RuneCountInString(raw) < 10 {
		return 1.0
	}
	var letters, upper int
	for _, r := range raw {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 1.0
	}
	ratio := float64(upper) / float64(letters)
	switch {
	case ratio > 0.5:
		return 1.3
	case ratio > 0.3:
		return 1.15
	default:
		return 1.0
	}
}

// punctuationFactor counts runs of repeated "!" and "?", capped at 1.5.
func punctuationFactor(raw string) float64 {
	excl := len(exclamationRun.FindAllStringIndex(raw, -1))
	quest := len(questionRun.FindAllStringIndex(raw, -1))
	return math.Min(1.0+0.10*float64(excl)+0.05*float64(quest), 1.5)
}

// sarcasmFactor returns the damping factor of the first sarcasm marker in
// raw text, applied only when normalized text also carries a risk term.
func sarcasmFactor(raw, normalized string, lex *lexicon.Lexicon) float64 {
	factor, ok := lex.SarcasmFactor(strings.ToLower(raw))
	if !ok {
		return 1.0
	}
	for _, e := range lex.Risk {
		if strings.Contains(normalized, e.Term) {
			return factor
		}
	}
	return 1.0
}
