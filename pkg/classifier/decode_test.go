package classifier

import (
	"errors"
	"strings"
	"testing"

	"github.com/denizumutdereli/npsrisk/pkg/risk"
)

func TestParseResponse_Valid(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		grade risk.Grade
		expl  string
	}{
		{"plain", `{"grau_risco": "Alto", "explicacao": "Cliente frustrado."}`, risk.GradeHigh, "Cliente frustrado."},
		{"fenced", "```json\n{\"grau_risco\": \"Médio\", \"explicacao\": \"Feedback misto.\"}\n```", risk.GradeMedium, "Feedback misto."},
		{"chatter", `Claro! Segue: {"grau_risco":"Baixo","explicacao":"Elogio {sincero}."} Espero ter ajudado.`, risk.GradeLow, "Elogio {sincero}."},
		{"fuzzy grade", `{"grau_risco": "MUITO ALTO (ameaça legal)", "explicacao": "Menciona Procon."}`, risk.GradeVeryHigh, "Menciona Procon."},
		{"unaccented grade", `{"grau_risco": "medio", "explicacao": "ok"}`, risk.GradeMedium, "ok"},
		{"markup stripped", `{"grau_risco": "Alto", "explicacao": "<b>Cliente</b>   irritado &amp; decepcionado"}`, risk.GradeHigh, "Cliente irritado & decepcionado"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := ParseResponse(tc.raw)
			if err != nil {
				t.Fatalf("ParseResponse: %v", err)
			}
			if v.Grade != tc.grade || v.Explanation != tc.expl {
				t.Fatalf("got %v %q, want %v %q", v.Grade, v.Explanation, tc.grade, tc.expl)
			}
		})
	}
}

func TestParseResponse_Errors(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		reason error
		risk   error
	}{
		{"empty", "", ErrNoJSON, risk.ErrMalformedVerdict},
		{"prose", "O risco é alto.", ErrNoJSON, risk.ErrMalformedVerdict},
		{"broken json", `{"grau_risco": "Alto", `, ErrNoJSON, risk.ErrMalformedVerdict},
		{"missing grade", `{"explicacao": "x"}`, ErrInvalidGrade, risk.ErrUnknownGrade},
		{"unknown grade", `{"grau_risco": "crítico", "explicacao": "x"}`, ErrInvalidGrade, risk.ErrUnknownGrade},
		{"empty explanation", `{"grau_risco": "Alto", "explicacao": "  "}`, ErrEmptyExplanation, risk.ErrEmptyExplanation},
		{"markup only explanation", `{"grau_risco": "Alto", "explicacao": "<br/>"}`, ErrEmptyExplanation, risk.ErrEmptyExplanation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseResponse(tc.raw)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if pe.Raw != tc.raw {
				t.Fatalf("raw reply not kept: %q", pe.Raw)
			}
			if !errors.Is(err, tc.reason) || !errors.Is(err, tc.risk) {
				t.Fatalf("error %v does not wrap %v / %v", err, tc.reason, tc.risk)
			}
			if !IsParseError(err) {
				t.Fatal("IsParseError = false")
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("  ", `Disse "nunca mais"`)
	for _, want := range []string{"não informado", `"Disse 'nunca mais'"`, "grau_risco", "explicacao"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if p2 := BuildPrompt("Troca de óleo", "ok"); !strings.Contains(p2, "Contexto do atendimento: Troca de óleo") {
		t.Errorf("description not rendered:\n%s", p2)
	}
}
