package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/denizumutdereli/npsrisk/pkg/risk"
)

// scrape renders the collector's exposition text.
func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func expectLines(t *testing.T, body string, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if !strings.Contains(body, l+"\n") {
			t.Errorf("missing %q in exposition:\n%s", l, body)
		}
	}
}

func TestCollector_RecordResult(t *testing.T) {
	c := New()
	c.RecordResult(risk.Result{Grade: risk.GradeVeryHigh, Source: risk.SourceHeuristic})
	c.RecordResult(risk.Result{Grade: risk.GradeVeryHigh, Source: risk.SourceHeuristic})
	c.RecordResult(risk.Result{Grade: risk.GradeLow, Source: risk.SourceNoInput})

	expectLines(t, scrape(t, c),
		`npsrisk_analyses_total{grade="Muito Alto",source="heuristic"} 2`,
		`npsrisk_analyses_total{grade="Baixo",source="no_input"} 1`,
	)
}

func TestCollector_FallbackAndClassifier(t *testing.T) {
	c := New()
	c.RecordFallback(risk.FallbackTimeout, errors.New("deadline"))
	c.RecordClassifierCall("openai", 120*time.Millisecond, nil)
	c.RecordClassifierCall("openai", time.Second, errors.New("boom"))

	expectLines(t, scrape(t, c),
		`npsrisk_classifier_fallbacks_total{reason="timeout"} 1`,
		`npsrisk_classifier_calls_total{provider="openai",status="ok"} 1`,
		`npsrisk_classifier_calls_total{provider="openai",status="error"} 1`,
		`npsrisk_classifier_call_duration_seconds_count{provider="openai"} 2`,
	)
}

func TestCollector_RecordBatch(t *testing.T) {
	c := New()
	c.RecordBatch(map[risk.Grade]int{risk.GradeHigh: 3, risk.GradeLow: 7}, 2*time.Second)
	expectLines(t, scrape(t, c),
		`npsrisk_batch_rows_total{grade="Alto"} 3`,
		`npsrisk_batch_rows_total{grade="Baixo"} 7`,
		`npsrisk_batch_duration_seconds_count 1`,
	)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := New()
	c.RecordHTTPRequest("POST", "/v1/analyze", 200, 5*time.Millisecond)
	expectLines(t, scrape(t, c),
		`npsrisk_http_requests_total{method="POST",path="/v1/analyze",status_code="200"} 1`,
	)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.RecordResult(risk.Result{})
	c.RecordFallback(risk.FallbackPanic, nil)
	c.RecordClassifierCall("x", 0, nil)
	c.RecordBatch(nil, 0)
	c.RecordHTTPRequest("GET", "/", 200, 0)
}
