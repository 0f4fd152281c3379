package risk

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/denizumutdereli/npsrisk/pkg/lexicon"
)

const (
	// contextWindow is the number of whitespace tokens inspected before a match.
	contextWindow = 3
	// negationDamping scales a negated weight after its sign is flipped.
	negationDamping = 0.7
)

// OverlapPolicy decides what happens when lexicon terms overlap in the text.
type OverlapPolicy string

const (
	// OverlapLongest drops an occurrence that overlaps a strictly longer
	// matched term and retries that term further along the text. Terms of
	// equal length may share a span, so a phrase listed in both lexicons
	// still counts on both sides.
	OverlapLongest OverlapPolicy = "longest"
	// OverlapAll counts the first occurrence of every term independently,
	// so "funciona" also scores inside "nao funciona".
	OverlapAll OverlapPolicy = "all"
)

// ParseOverlapPolicy validates a policy name. Empty selects OverlapLongest.
func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch p := OverlapPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return OverlapLongest, nil
	case OverlapLongest, OverlapAll:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overlap policy %q (want longest|all)", s)
	}
}

// Occurrence is one lexicon term found in the text. Weight is the adjusted,
// signed weight; Position is the byte offset in the normalized text.
type Occurrence struct {
	Term     string  `json:"term" msgpack:"term"`
	Weight   float64 `json:"weight" msgpack:"weight"`
	Position int     `json:"position" msgpack:"position"`
}

type candidate struct {
	negative bool
	index    int
	entry    lexicon.Entry
	runes    int
}

type span struct {
	start, end, runes int
}

// match scans normalized text for the terms of both lexicons and returns
// the risk and positive occurrences, each in lexicon order.
func match(text string, lex *lexicon.Lexicon, policy OverlapPolicy) (negative, positive []Occurrence) {
	if text == "" {
		return nil, nil
	}

	cands := make([]candidate, 0, len(lex.Risk)+len(lex.Positive))
	for i, e := range lex.Risk {
		cands = append(cands, candidate{negative: true, index: i, entry: e, runes: utf8.RuneCountInString(e.Term)})
	}
	for i, e := range lex.Positive {
		cands = append(cands, candidate{index: i, entry: e, runes: utf8.RuneCountInString(e.Term)})
	}

	negHits := make([]*Occurrence, len(lex.Risk))
	posHits := make([]*Occurrence, len(lex.Positive))
	record := func(c candidate, pos int) {
		occ := &Occurrence{Term: c.entry.Term, Weight: adjustWeight(text, pos, c.entry.Weight, lex), Position: pos}
		if c.negative {
			negHits[c.index] = occ
		} else {
			posHits[c.index] = occ
		}
	}

	if policy == OverlapAll {
		for _, c := range cands {
			if pos := strings.Index(text, c.entry.Term); pos >= 0 {
				record(c, pos)
			}
		}
	} else {
		// Longer terms claim their spans first.
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].runes > cands[j].runes })
		var claimed []span
		for _, c := range cands {
			if pos := firstFree(text, c.entry.Term, c.runes, claimed); pos >= 0 {
				claimed = append(claimed, span{start: pos, end: pos + len(c.entry.Term), runes: c.runes})
				record(c, pos)
			}
		}
	}

	return collect(negHits), collect(posHits)
}

// firstFree returns the first occurrence of term that does not overlap a
// claimed span of a strictly longer term, or -1.
func firstFree(text, term string, runes int, claimed []span) int {
	from := 0
	for from <= len(text) {
		i := strings.Index(text[from:], term)
		if i < 0 {
			return -1
		}
		pos := from + i
		end := pos + len(term)
		blocked := false
		for _, s := range claimed {
			if s.runes > runes && pos < s.end && s.start < end {
				blocked = true
				break
			}
		}
		if !blocked {
			return pos
		}
		_, size := utf8.DecodeRuneInString(text[pos:])
		from = pos + size
	}
	return -1
}

// adjustWeight applies the negation or intensifier found in the tokens
// preceding pos. Negation wins over intensification.
func adjustWeight(text string, pos int, weight float64, lex *lexicon.Lexicon) float64 {
	ctx := precedingTokens(text[:pos], contextWindow)
	for _, tok := range ctx {
		if lex.IsNegator(tok) {
			return -weight * negationDamping
		}
	}
	if mult, ok := lex.Intensifier(ctx); ok {
		return weight * mult
	}
	return weight
}

func precedingTokens(prefix string, n int) []string {
	fields := strings.Fields(prefix)
	if len(fields) > n {
		fields = fields[len(fields)-n:]
	}
	return fields
}

func collect(hits []*Occurrence) []Occurrence {
	var out []Occurrence
	for _, h := range hits {
		if h != nil {
			out = append(out, *h)
		}
	}
	return out
}
