// Package risk scores NPS comments for reputational risk. An Engine turns
// a description/comment pair into a signed sentiment score with a
// Breakdown; Classify and Explain map that to a Grade and a short
// Portuguese rationale; an Analyzer wraps it all behind an optional
// external classifier.
package risk

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/denizumutdereli/npsrisk/pkg/lexicon"
	"github.com/denizumutdereli/npsrisk/pkg/textnorm"
)

// minTextRunes is the shortest trimmed text worth scoring.
const minTextRunes = 3

// invertedShare is how much a negated term counts against its own lexicon.
const invertedShare = 0.5

// Breakdown explains how a score was reached. Weights and sub-scores are
// rounded to two decimals.
type Breakdown struct {
	Negative          []Occurrence `json:"negative" msgpack:"negative"`
	Positive          []Occurrence `json:"positive" msgpack:"positive"`
	RiskScore         float64      `json:"riskScore" msgpack:"riskScore"`
	SatisfactionScore float64      `json:"satisfactionScore" msgpack:"satisfactionScore"`
	CapsFactor        float64      `json:"capsFactor" msgpack:"capsFactor"`
	PunctuationFactor float64      `json:"punctuationFactor" msgpack:"punctuationFactor"`
	SarcasmFactor     float64      `json:"sarcasmFactor" msgpack:"sarcasmFactor"`
	// Empty is set when the input was too short to score.
	Empty bool `json:"empty" msgpack:"empty"`
}

// Assessment is the full heuristic verdict for one input.
type Assessment struct {
	Score       float64   `json:"score" msgpack:"score"`
	Grade       Grade     `json:"grade" msgpack:"grade"`
	Explanation string    `json:"explanation" msgpack:"explanation"`
	Breakdown   Breakdown `json:"breakdown" msgpack:"breakdown"`
}

// Engine is the lexicon heuristic. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	lex     *lexicon.Lexicon
	overlap OverlapPolicy
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithOverlapPolicy sets how overlapping lexicon terms are counted.
func WithOverlapPolicy(p OverlapPolicy) EngineOption {
	return func(e *Engine) {
		if p != "" {
			e.overlap = p
		}
	}
}

// NewEngine creates an Engine over lex. A nil lex selects lexicon.Default().
func NewEngine(lex *lexicon.Lexicon, opts ...EngineOption) *Engine {
	if lex == nil {
		lex = lexicon.Default()
	}
	e := &Engine{lex: lex, overlap: OverlapLongest}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Lexicon returns the lexicon the engine scores against.
func (e *Engine) Lexicon() *lexicon.Lexicon { return e.lex }

// OverlapPolicy returns the configured overlap policy.
func (e *Engine) OverlapPolicy() OverlapPolicy { return e.overlap }

// Score computes the signed sentiment score of description and comment.
// Negative values lean towards risk, positive towards satisfaction. The
// score and breakdown are rounded to two decimals for reporting; Assess
// grades the unrounded values.
func (e *Engine) Score(description, comment string) (float64, Breakdown) {
	score, b := e.evaluate(description, comment)
	return round2(score), reported(b)
}

// Assess runs Score, Classify and Explain in one call. Band edges are
// compared against the unrounded score.
func (e *Engine) Assess(description, comment string) Assessment {
	score, b := e.evaluate(description, comment)
	return Assessment{
		Score:       round2(score),
		Grade:       Classify(score, b),
		Explanation: Explain(score, b, comment),
		Breakdown:   reported(b),
	}
}

func (e *Engine) evaluate(description, comment string) (float64, Breakdown) {
	raw := strings.TrimSpace(description + " " + comment)
	if utf8.RuneCountInString(raw) < minTextRunes {
		return 0, Breakdown{Empty: true, CapsFactor: 1, PunctuationFactor: 1, SarcasmFactor: 1}
	}
	normalized := textnorm.Normalize(raw)

	caps := capsFactor(raw)
	punct := punctuationFactor(raw)
	sarcasm := sarcasmFactor(raw, normalized, e.lex)

	negative, positive := match(normalized, e.lex, e.overlap)

	negDirect, negInverted := split(negative)
	posDirect, posInverted := split(positive)

	riskScore := negDirect*caps*punct - negInverted*invertedShare
	satisfaction := posDirect*sarcasm - posInverted*invertedShare

	return satisfaction - riskScore, Breakdown{
		Negative:          negative,
		Positive:          positive,
		RiskScore:         riskScore,
		SatisfactionScore: satisfaction,
		CapsFactor:        caps,
		PunctuationFactor: punct,
		SarcasmFactor:     sarcasm,
	}
}

func reported(b Breakdown) Breakdown {
	b.Negative = rounded(b.Negative)
	b.Positive = rounded(b.Positive)
	b.RiskScore = round2(b.RiskScore)
	b.SatisfactionScore = round2(b.SatisfactionScore)
	b.PunctuationFactor = round2(b.PunctuationFactor)
	return b
}

// split sums the weights that count for the term's lexicon and the
// magnitudes of the negated ones.
func split(occs []Occurrence) (direct, inverted float64) {
	for _, o := range occs {
		switch {
		case o.Weight > 0:
			direct += o.Weight
		case o.Weight < 0:
			inverted += -o.Weight
		}
	}
	return direct, inverted
}

func rounded(occs []Occurrence) []Occurrence {
	if len(occs) == 0 {
		return nil
	}
	out := make([]Occurrence, len(occs))
	for i, o := range occs {
		o.Weight = round2(o.Weight)
		out[i] = o
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
