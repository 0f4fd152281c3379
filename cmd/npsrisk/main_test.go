package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/denizumutdereli/npsrisk/pkg/core"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	out, _, err := execute(t, "", "analyze", "--json", "--explain", "Péssimo")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var res map[string]any
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res["grade"] != "Alto" || res["source"] != "heuristic" {
		t.Fatalf("got %v", res)
	}
	if _, ok := res["assessment"]; !ok {
		t.Fatal("--explain should include the assessment")
	}
}

func TestAnalyzeCommand_Stdin(t *testing.T) {
	out, _, err := execute(t, "Péssimo atendimento, nunca mais volto, vou no Procon", "analyze", "-")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out, "Grau de Risco: Muito Alto") {
		t.Fatalf("output = %q", out)
	}
}

func TestAnalyzeCommand_InvalidConfigFlag(t *testing.T) {
	if _, _, err := execute(t, "", "analyze", "--overlap", "shortest", "ruim"); err == nil {
		t.Fatal("expected invalid overlap to fail")
	}
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "nps.csv")
	output := filepath.Join(dir, "nps_risco.csv")
	data := "Pesquisa NPS\nNota;Descrição;Comentário\n3;Troca de óleo;Péssimo atendimento, nunca mais volto, vou no Procon\n10;Revisão;Agendamento rápido e cordialidade no atendimento\n"
	if err := os.WriteFile(input, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := execute(t, "", "batch", "-i", input, "-o", output, "--header-row", "2", "--delimiter", ";", "--progress=false")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !strings.Contains(stderr, "Muito Alto") {
		t.Fatalf("summary missing from stderr: %q", stderr)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = ';'
	records, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 || records[1][3] != "Muito Alto" || records[2][3] != "Baixo" {
		t.Fatalf("records = %q", records)
	}
}

func TestRunBatch_Stdout(t *testing.T) {
	cfg := core.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	var out, summary bytes.Buffer
	err := runBatch(context.Background(), cfg, strings.NewReader("Comentário\nDemorou demais\n"), "-", &out, &summary)
	if err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	if !strings.Contains(out.String(), "Grau de Risco") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestLexiconCommand(t *testing.T) {
	out, _, err := execute(t, "", "lexicon")
	if err != nil {
		t.Fatalf("lexicon: %v", err)
	}
	if !strings.Contains(out, "pt-BR") || !strings.Contains(out, "longest") {
		t.Fatalf("output = %q", out)
	}
}

func TestCommentFromArgs(t *testing.T) {
	got, err := commentFromArgs([]string{"muito", "ruim"}, nil)
	if err != nil || got != "muito ruim" {
		t.Fatalf("got %q, %v", got, err)
	}
	got, err = commentFromArgs([]string{"-"}, strings.NewReader("péssimo"))
	if err != nil || got != "péssimo" {
		t.Fatalf("got %q, %v", got, err)
	}
}
