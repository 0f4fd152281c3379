// Package lexicon holds the weighted term lists the risk scorer matches
// against: risk terms, positive terms, intensifiers, negators and sarcasm
// markers. A Lexicon is immutable once loaded and safe for concurrent use.
package lexicon

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/denizumutdereli/npsrisk/pkg/textnorm"
)

// ErrInvalidLexicon is returned when lexicon data fails validation.
var ErrInvalidLexicon = errors.New("invalid lexicon")

//go:embed data/pt_br.yaml
var embeddedPTBR []byte

// Entry is a weighted lexicon term. Weight is a positive magnitude; the
// lexicon it belongs to decides its polarity.
type Entry struct {
	Term   string  `yaml:"term" json:"term" msgpack:"term"`
	Weight float64 `yaml:"weight" json:"weight" msgpack:"weight"`
}

// Intensifier scales the weight of a term it precedes.
type Intensifier struct {
	Term       string  `yaml:"term" json:"term" msgpack:"term"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier" msgpack:"multiplier"`
}

// SarcasmMarker dampens the satisfaction score when its phrase appears in
// a text that also carries a risk term.
type SarcasmMarker struct {
	Phrase string  `yaml:"phrase" json:"phrase" msgpack:"phrase"`
	Factor float64 `yaml:"factor" json:"factor" msgpack:"factor"`
}

// Lexicon is an ordered set of term lists. Slice order is significant:
// it decides which intensifier or sarcasm marker wins and the order terms
// are quoted in explanations.
type Lexicon struct {
	Name         string          `yaml:"name" json:"name" msgpack:"name"`
	Risk         []Entry         `yaml:"risk" json:"risk" msgpack:"risk"`
	Positive     []Entry         `yaml:"positive" json:"positive" msgpack:"positive"`
	Intensifiers []Intensifier   `yaml:"intensifiers" json:"intensifiers" msgpack:"intensifiers"`
	Negators     []string        `yaml:"negators" json:"negators" msgpack:"negators"`
	Sarcasm      []SarcasmMarker `yaml:"sarcasm" json:"sarcasm" msgpack:"sarcasm"`

	negators map[string]struct{}
}

// Stats summarises list sizes, used by the lexicon command and endpoint.
type Stats struct {
	Name         string `json:"name" msgpack:"name"`
	Risk         int    `json:"risk" msgpack:"risk"`
	Positive     int    `json:"positive" msgpack:"positive"`
	Intensifiers int    `json:"intensifiers" msgpack:"intensifiers"`
	Negators     int    `json:"negators" msgpack:"negators"`
	Sarcasm      int    `json:"sarcasm" msgpack:"sarcasm"`
}

var (
	defaultLexicon *Lexicon
	once           sync.Once
)

// Default returns the embedded Brazilian Portuguese lexicon (lazy-initialized).
func Default() *Lexicon {
	once.Do(func() {
		defaultLexicon = MustParse(embeddedPTBR)
	})
	return defaultLexicon
}

// Load returns the lexicon at path, or the embedded default when path is empty.
func Load(path string) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads and parses a YAML lexicon from disk.
func LoadFile(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	lex, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lex, nil
}

// MustParse is like Parse but panics on error.
func MustParse(data []byte) *Lexicon {
	lex, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return lex
}

// Parse decodes YAML lexicon data, folds every term into normalized form
// and validates the result. Entries that fold to an already seen term are
// dropped, keeping the first.
func Parse(data []byte) (*Lexicon, error) {
	var raw Lexicon
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLexicon, err)
	}
	return build(raw)
}

// New builds a Lexicon from in-memory lists with the same folding and
// validation Parse applies.
func New(name string, risk, positive []Entry, intensifiers []Intensifier, negators []string, sarcasm []SarcasmMarker) (*Lexicon, error) {
	return build(Lexicon{
		Name:         name,
		Risk:         risk,
		Positive:     positive,
		Intensifiers: intensifiers,
		Negators:     negators,
		Sarcasm:      sarcasm,
	})
}

func build(raw Lexicon) (*Lexicon, error) {
	lex := &Lexicon{Name: strings.TrimSpace(raw.Name)}

	var err error
	if lex.Risk, err = foldEntries("risk", raw.Risk); err != nil {
		return nil, err
	}
	if lex.Positive, err = foldEntries("positive", raw.Positive); err != nil {
		return nil, err
	}
	if len(lex.Risk) == 0 && len(lex.Positive) == 0 {
		return nil, fmt.Errorf("%w: no risk or positive terms", ErrInvalidLexicon)
	}

	seen := make(map[string]struct{}, len(raw.Intensifiers))
	for i, in := range raw.Intensifiers {
		term := textnorm.Normalize(in.Term)
		if term == "" {
			return nil, fmt.Errorf("%w: intensifiers[%d]: empty term", ErrInvalidLexicon, i)
		}
		if in.Multiplier <= 1 {
			return nil, fmt.Errorf("%w: intensifiers[%d] %q: multiplier must be > 1", ErrInvalidLexicon, i, in.Term)
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		lex.Intensifiers = append(lex.Intensifiers, Intensifier{Term: term, Multiplier: in.Multiplier})
	}

	lex.negators = make(map[string]struct{}, len(raw.Negators))
	for i, n := range raw.Negators {
		term := textnorm.Normalize(n)
		if term == "" {
			return nil, fmt.Errorf("%w: negators[%d]: empty term", ErrInvalidLexicon, i)
		}
		if _, dup := lex.negators[term]; dup {
			continue
		}
		lex.negators[term] = struct{}{}
		lex.Negators = append(lex.Negators, term)
	}

	seen = make(map[string]struct{}, len(raw.Sarcasm))
	for i, s := range raw.Sarcasm {
		// Sarcasm phrases are matched against the raw lowercased text, so
		// they keep their diacritics.
		phrase := strings.ToLower(strings.TrimSpace(s.Phrase))
		if phrase == "" {
			return nil, fmt.Errorf("%w: sarcasm[%d]: empty phrase", ErrInvalidLexicon, i)
		}
		if s.Factor <= 0 || s.Factor > 1 {
			return nil, fmt.Errorf("%w: sarcasm[%d] %q: factor must be in (0, 1]", ErrInvalidLexicon, i, s.Phrase)
		}
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}
		lex.Sarcasm = append(lex.Sarcasm, SarcasmMarker{Phrase: phrase, Factor: s.Factor})
	}

	return lex, nil
}

func foldEntries(list string, in []Entry) ([]Entry, error) {
	out := make([]Entry, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, e := range in {
		term := textnorm.Normalize(e.Term)
		if term == "" {
			return nil, fmt.Errorf("%w: %s[%d]: empty term", ErrInvalidLexicon, list, i)
		}
		if e.Weight <= 0 {
			return nil, fmt.Errorf("%w: %s[%d] %q: weight must be > 0", ErrInvalidLexicon, list, i, e.Term)
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, Entry{Term: term, Weight: e.Weight})
	}
	return out, nil
}

// IsNegator reports whether token is a negator. Tokens are expected in
// normalized form.
func (l *Lexicon) IsNegator(token string) bool {
	_, ok := l.negators[token]
	return ok
}

// Intensifier returns the multiplier of the first intensifier, in lexicon
// order, that equals one of tokens.
func (l *Lexicon) Intensifier(tokens []string) (float64, bool) {
	for _, in := range l.Intensifiers {
		for _, tok := range tokens {
			if tok == in.Term {
				return in.Multiplier, true
			}
		}
	}
	return 1, false
}

// SarcasmFactor returns the factor of the first marker, in lexicon order, whose
// phrase appears in lowered. lowered must already be lowercased.
func (l *Lexicon) SarcasmFactor(lowered string) (float64, bool) {
	for _, s := range l.Sarcasm {
		if strings.Contains(lowered, s.Phrase) {
			return s.Factor, true
		}
	}
	return 1, false
}

// Stats returns the number of entries in each list.
func (l *Lexicon) Stats() Stats {
	return Stats{
		Name:         l.Name,
		Risk:         len(l.Risk),
		Positive:     len(l.Positive),
		Intensifiers: len(l.Intensifiers),
		Negators:     len(l.Negators),
		Sarcasm:      len(l.Sarcasm),
	}
}
