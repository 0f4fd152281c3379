package batch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/denizumutdereli/npsrisk/pkg/risk"
)

func newDataset() *Dataset {
	return &Dataset{
		Header: []string{"Nota", "Descrição", "Comentário"},
		Rows: [][]string{
			{"3", "Troca de óleo", "Péssimo atendimento, nunca mais volto, vou no Procon"},
			{"10", "Revisão", "Agendamento rápido e cordialidade no atendimento"},
			{"7", "Revisão", "Atendimento ok mas demorou um pouco"},
			{"8", "Revisão", ""},
			{"7", "Revisão", "Atendimento ok mas demorou um pouco"},
		},
	}
}

func TestProcessor_Run(t *testing.T) {
	ds := newDataset()
	var reported *Report
	p := NewProcessor(risk.NewAnalyzer(nil), WithWorkers(3), WithReportHook(func(r *Report) { reported = r }))

	report, err := p.Run(context.Background(), ds, Columns{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reported != report {
		t.Fatal("report hook not called with the run report")
	}
	if report.RunID == "" || report.Rows != 5 || report.Unique != 4 {
		t.Fatalf("report = %+v", report)
	}
	if report.DescriptionColumn != "Descrição" || report.CommentColumn != "Comentário" {
		t.Fatalf("detected columns %q / %q", report.DescriptionColumn, report.CommentColumn)
	}

	wantHeader := []string{"Nota", "Descrição", "Comentário", DefaultGradeColumn, DefaultExplanationColumn}
	if strings.Join(ds.Header, "|") != strings.Join(wantHeader, "|") {
		t.Fatalf("header = %q", ds.Header)
	}
	wantGrades := []string{"Muito Alto", "Baixo", "Médio", "Baixo", "Médio"}
	for i, g := range wantGrades {
		if ds.Rows[i][3] != g {
			t.Errorf("row %d grade = %q, want %q", i, ds.Rows[i][3], g)
		}
		if ds.Rows[i][4] == "" {
			t.Errorf("row %d has no explanation", i)
		}
	}
	if ds.Rows[3][4] != risk.NoCommentMessage {
		t.Errorf("blank comment explanation = %q", ds.Rows[3][4])
	}

	summary := report.Summary()
	want := []GradeCount{{"Muito Alto", 1}, {"Alto", 0}, {"Médio", 2}, {"Baixo", 2}}
	for i := range want {
		if summary[i] != want[i] {
			t.Fatalf("summary = %+v", summary)
		}
	}
}

func TestProcessor_RunRefusesExistingOutputColumns(t *testing.T) {
	ds := newDataset()
	ds.Header[0] = "grau de risco"
	before := len(ds.Header)

	_, err := NewProcessor(risk.NewAnalyzer(nil)).Run(context.Background(), ds, Columns{})
	if !errors.Is(err, ErrColumnExists) {
		t.Fatalf("expected ErrColumnExists, got %v", err)
	}
	if len(ds.Header) != before {
		t.Fatal("dataset modified on failure")
	}
}

func TestProcessor_RunRefusesCollidingOutputColumns(t *testing.T) {
	ds := &Dataset{
		Header: []string{"comentario"},
		Rows:   [][]string{{"Péssimo atendimento"}, {"Ótimo serviço"}},
	}

	_, err := NewProcessor(risk.NewAnalyzer(nil)).Run(context.Background(), ds,
		Columns{Grade: "Resultado", Explanation: "resultado"})
	if !errors.Is(err, ErrColumnExists) {
		t.Fatalf("expected ErrColumnExists, got %v", err)
	}
	if len(ds.Header) != 1 {
		t.Fatalf("dataset modified on failure: header=%q", ds.Header)
	}
	for i, rec := range ds.Rows {
		if len(rec) != 1 {
			t.Fatalf("row %d modified on failure: %q", i, rec)
		}
	}
}

func TestProcessor_RunColumns(t *testing.T) {
	p := NewProcessor(risk.NewAnalyzer(nil))

	ds := newDataset()
	report, err := p.Run(context.Background(), ds, Columns{Description: "(nenhuma)", Comment: "comentário", Grade: "Risco", Explanation: "Motivo"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.DescriptionColumn != "" {
		t.Fatalf("description should be skipped, got %q", report.DescriptionColumn)
	}
	if ds.Header[3] != "Risco" || ds.Header[4] != "Motivo" {
		t.Fatalf("custom output columns missing: %q", ds.Header)
	}

	ds = newDataset()
	if _, err := p.Run(context.Background(), ds, Columns{Comment: "Observação"}); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}

	ds = &Dataset{Header: []string{"Nota", "Texto"}, Rows: [][]string{{"1", "ruim"}}}
	if _, err := p.Run(context.Background(), ds, Columns{}); !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("undetectable comment column: %v", err)
	}

	if _, err := p.Run(context.Background(), &Dataset{Header: []string{"Comentário"}}, Columns{}); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestProcessor_DedupesIdenticalRows(t *testing.T) {
	var calls atomic.Int32
	classifier := risk.ClassifierFunc(func(context.Context, string, string) (risk.Verdict, error) {
		calls.Add(1)
		return risk.Verdict{Grade: risk.GradeHigh, Explanation: "Cliente irritado."}, nil
	})
	p := NewProcessor(risk.NewAnalyzer(nil, risk.WithClassifier(classifier)), WithWorkers(8))

	rows := make([]Row, 50)
	for i := range rows {
		rows[i] = Row{Description: "Revisão", Comment: "Demorou demais"}
	}
	report, err := p.Analyze(context.Background(), rows)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Fatalf("classifier called %d times for identical rows", calls.Load())
	}
	if report.Unique != 1 || report.Counts[risk.GradeHigh] != 50 {
		t.Fatalf("report = %+v", report)
	}
}

func TestProcessor_Progress(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[int]bool{}
	)
	p := NewProcessor(risk.NewAnalyzer(nil), WithWorkers(4), WithProgress(func(done, total int) {
		if total != 20 {
			t.Errorf("total = %d", total)
		}
		mu.Lock()
		seen[done] = true
		mu.Unlock()
	}))

	rows := make([]Row, 20)
	for i := range rows {
		rows[i] = Row{Comment: strings.Repeat("ruim ", i+1)}
	}
	if _, err := p.Analyze(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 20; i++ {
		if !seen[i] {
			t.Fatalf("progress never reported %d", i)
		}
	}
}

func TestProcessor_Sanitize(t *testing.T) {
	p := NewProcessor(risk.NewAnalyzer(nil), WithSanitize(true))
	report, err := p.Analyze(context.Background(), []Row{{Comment: "<p>Péssimo</p><script>ótimo</script> 😡"}})
	if err != nil {
		t.Fatal(err)
	}
	if report.Results[0].Grade != risk.GradeHigh {
		t.Fatalf("grade = %v", report.Results[0].Grade)
	}
}

func TestProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProcessor(risk.NewAnalyzer(nil)).Analyze(ctx, []Row{{Comment: "ruim"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRow_Key(t *testing.T) {
	a := Row{Description: "x", Comment: "y"}
	if a.Key() != (Row{Description: "x", Comment: "y"}).Key() {
		t.Fatal("identical rows must share a key")
	}
	if a.Key() == (Row{Description: "xy"}).Key() {
		t.Fatal("field boundary must be part of the key")
	}
}
