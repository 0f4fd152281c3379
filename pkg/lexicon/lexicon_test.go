package lexicon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
name: sample
risk:
  - {term: "Péssimo", weight: 8}
  - {term: "pessimo", weight: 2}
  - {term: "não funciona", weight: 7}
positive:
  - {term: "Ótimo", weight: 8}
intensifiers:
  - {term: "muito", multiplier: 1.5}
  - {term: "tão", multiplier: 1.4}
negators: ["Não", "nao", "nunca"]
sarcasm:
  - {phrase: "Que ÓTIMO", factor: 0.6}
`

func TestParseFoldsAndDedupes(t *testing.T) {
	lex, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if lex.Name != "sample" {
		t.Fatalf("name = %q", lex.Name)
	}
	if len(lex.Risk) != 2 {
		t.Fatalf("expected 2 risk terms after dedupe, got %d: %+v", len(lex.Risk), lex.Risk)
	}
	if lex.Risk[0] != (Entry{Term: "pessimo", Weight: 8}) {
		t.Fatalf("first entry should win, got %+v", lex.Risk[0])
	}
	if lex.Risk[1].Term != "nao funciona" {
		t.Fatalf("expected folded phrase, got %q", lex.Risk[1].Term)
	}
	if lex.Positive[0].Term != "otimo" {
		t.Fatalf("positive term not folded: %q", lex.Positive[0].Term)
	}
	if len(lex.Negators) != 2 {
		t.Fatalf("expected negators deduped to 2, got %v", lex.Negators)
	}
	if lex.Sarcasm[0].Phrase != "que ótimo" {
		t.Fatalf("sarcasm phrase should be lowercased with accents kept, got %q", lex.Sarcasm[0].Phrase)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"malformed", "risk: [: :"},
		{"empty lists", "name: x"},
		{"zero weight", `risk: [{term: "ruim", weight: 0}]`},
		{"blank term", `risk: [{term: "  ", weight: 3}]`},
		{"multiplier not above one", "risk: [{term: ruim, weight: 3}]\nintensifiers: [{term: muito, multiplier: 1}]"},
		{"blank negator", "risk: [{term: ruim, weight: 3}]\nnegators: [\"\"]"},
		{"sarcasm factor above one", "risk: [{term: ruim, weight: 3}]\nsarcasm: [{phrase: né, factor: 1.2}]"},
		{"sarcasm factor zero", "risk: [{term: ruim, weight: 3}]\nsarcasm: [{phrase: né, factor: 0}]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if !errors.Is(err, ErrInvalidLexicon) {
				t.Fatalf("expected ErrInvalidLexicon, got %v", err)
			}
		})
	}
}

func TestNegatorAndIntensifierLookup(t *testing.T) {
	lex := MustParse([]byte(sampleYAML))

	if !lex.IsNegator("nao") || !lex.IsNegator("nunca") {
		t.Fatal("folded negators should be recognised")
	}
	if lex.IsNegator("não") {
		t.Fatal("lookups take normalized tokens")
	}

	cases := []struct {
		tokens []string
		want   float64
		ok     bool
	}{
		{[]string{"foi", "muito"}, 1.5, true},
		{[]string{"tao"}, 1.4, true},
		// lexicon order decides, not token order
		{[]string{"tao", "muito"}, 1.5, true},
		{[]string{"pouco"}, 1, false},
		{nil, 1, false},
	}
	for _, tc := range cases {
		got, ok := lex.Intensifier(tc.tokens)
		if got != tc.want || ok != tc.ok {
			t.Errorf("Intensifier(%v) = %v,%v want %v,%v", tc.tokens, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSarcasmFactor(t *testing.T) {
	lex := MustParse([]byte(sampleYAML))
	if f, ok := lex.SarcasmFactor("que ótimo, demorou duas horas"); !ok || f != 0.6 {
		t.Fatalf("expected 0.6 marker, got %v,%v", f, ok)
	}
	if f, ok := lex.SarcasmFactor("que otimo"); ok || f != 1 {
		t.Fatalf("unaccented text should not match accented marker, got %v,%v", f, ok)
	}
}

func TestDefaultLexicon(t *testing.T) {
	lex := Default()
	if lex != Default() {
		t.Fatal("Default should return a singleton")
	}

	st := lex.Stats()
	if st.Name != "pt-BR" {
		t.Fatalf("name = %q", st.Name)
	}
	if st.Risk == 0 || st.Positive == 0 || st.Intensifiers == 0 || st.Negators == 0 || st.Sarcasm == 0 {
		t.Fatalf("embedded lexicon has an empty list: %+v", st)
	}

	want := map[string]float64{"procon": 10, "justica": 10, "nunca mais": 9, "ruim": 6, "demora": 5}
	for _, e := range lex.Risk {
		if w, ok := want[e.Term]; ok {
			if e.Weight != w {
				t.Errorf("%s weight = %v, want %v", e.Term, e.Weight, w)
			}
			delete(want, e.Term)
		}
	}
	if len(want) != 0 {
		t.Errorf("missing risk terms: %v", want)
	}
	if m, ok := lex.Intensifier([]string{"tao"}); !ok || m != 1.4 {
		t.Errorf("folded intensifier lookup = %v,%v", m, ok)
	}
}

func TestLoad(t *testing.T) {
	lex, err := Load("")
	if err != nil || lex != Default() {
		t.Fatalf("empty path should yield default, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	lex, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lex.Name != "sample" {
		t.Fatalf("loaded wrong lexicon: %q", lex.Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
