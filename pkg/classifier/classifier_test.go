package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/denizumutdereli/npsrisk/pkg/risk"
)

// fakeOpenAI serves /chat/completions with the given assistant content.
func fakeOpenAI(t *testing.T, status int, content string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if seen != nil {
			if err := json.NewDecoder(r.Body).Decode(seen); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"quota"}}`, status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOpenAIClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{
		Provider:    ProviderOpenAI,
		APIKey:      "test-key",
		BaseURL:     baseURL + "/",
		Temperature: DefaultTemperature,
		Timeout:     2 * time.Second,
	}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_Providers(t *testing.T) {
	for _, p := range []string{"", "none", " NONE "} {
		c, err := New(context.Background(), Config{Provider: p})
		if c != nil || err != nil {
			t.Errorf("provider %q: got %v, %v", p, c, err)
		}
	}
	if _, err := New(context.Background(), Config{Provider: "watson"}); err == nil {
		t.Error("expected unknown provider error")
	}
	if _, err := New(context.Background(), Config{Provider: ProviderOpenAI}); err == nil {
		t.Error("expected missing key error")
	}
}

func TestClient_ClassifyOpenAI(t *testing.T) {
	var seen chatRequest
	srv := fakeOpenAI(t, http.StatusOK, "```json\n{\"grau_risco\": \"Muito Alto\", \"explicacao\": \"Ameaça acionar o Procon.\"}\n```", &seen)

	var observed atomic.Int32
	c := newOpenAIClient(t, srv.URL, WithObserver(func(provider string, _ time.Duration, err error) {
		if provider != ProviderOpenAI || err != nil {
			t.Errorf("observer got %s, %v", provider, err)
		}
		observed.Add(1)
	}))

	v, err := c.Classify(context.Background(), "Revisão", "Vou no Procon")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if v.Grade != risk.GradeVeryHigh || v.Explanation != "Ameaça acionar o Procon." {
		t.Fatalf("verdict = %+v", v)
	}
	if observed.Load() != 1 {
		t.Fatalf("observer called %d times", observed.Load())
	}

	if seen.Model != DefaultOpenAIModel || seen.MaxTokens != DefaultMaxOutputTokens || seen.Temperature != DefaultTemperature {
		t.Fatalf("request = %+v", seen)
	}
	if len(seen.Messages) != 2 || seen.Messages[0].Role != "system" || !strings.Contains(seen.Messages[1].Content, "Vou no Procon") {
		t.Fatalf("messages = %+v", seen.Messages)
	}
}

func TestClient_StatusErrorIsUnavailable(t *testing.T) {
	srv := fakeOpenAI(t, http.StatusTooManyRequests, "", nil)
	c := newOpenAIClient(t, srv.URL)

	_, err := c.Classify(context.Background(), "", "Demorou demais")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if IsParseError(err) {
		t.Fatal("status failure reported as parse error")
	}
}

func TestClient_MalformedReply(t *testing.T) {
	srv := fakeOpenAI(t, http.StatusOK, "Não sei classificar.", nil)
	c := newOpenAIClient(t, srv.URL)

	_, err := c.Classify(context.Background(), "", "Demorou demais")
	if !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}

func TestClient_TimeoutKeepsDeadlineCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := newOpenAIClient(t, srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.Classify(context.Background(), "", "Demorou demais")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected unavailable deadline error, got %v", err)
	}
}

type stubCompleter struct {
	calls atomic.Int32
	reply string
	err   error
}

func (s *stubCompleter) Name() string { return "stub" }

func (s *stubCompleter) Complete(context.Context, string, string) (string, error) {
	s.calls.Add(1)
	return s.reply, s.err
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	stub := &stubCompleter{reply: `{"grau_risco":"Baixo","explicacao":"Elogio."}`}
	c := NewClient(stub, WithRateLimit(0.001, 1))

	if _, err := c.Classify(context.Background(), "", "Ótimo"); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Classify(ctx, "", "Ótimo")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected rate-limited call to fail, got %v", err)
	}
	if stub.calls.Load() != 1 {
		t.Fatalf("completer called %d times", stub.calls.Load())
	}
}

func TestClient_AnalyzerFallback(t *testing.T) {
	comment := "Atendimento ok mas demorou um pouco"
	wantGrade, wantExpl := risk.Score("", comment)

	cases := []struct {
		name   string
		stub   *stubCompleter
		reason risk.FallbackReason
	}{
		{"transport", &stubCompleter{err: errors.New("dial tcp: refused")}, risk.FallbackUnavailable},
		{"prose", &stubCompleter{reply: "Médio"}, risk.FallbackMalformed},
		{"bad grade", &stubCompleter{reply: `{"grau_risco":"grave","explicacao":"x"}`}, risk.FallbackInvalidGrade},
		{"blank explanation", &stubCompleter{reply: `{"grau_risco":"Alto","explicacao":""}`}, risk.FallbackEmptyExplanation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got risk.FallbackReason
			a := risk.NewAnalyzer(nil,
				risk.WithClassifier(NewClient(tc.stub)),
				risk.WithFallbackHook(func(r risk.FallbackReason, _ error) { got = r }),
			)
			res := a.Analyze(context.Background(), "", comment)
			if res.Source != risk.SourceHeuristic || res.Grade != wantGrade || res.Explanation != wantExpl {
				t.Fatalf("result = %+v", res)
			}
			if got != tc.reason {
				t.Fatalf("reason = %q, want %q", got, tc.reason)
			}
		})
	}
}

func TestClient_NilFallsBack(t *testing.T) {
	c, err := New(context.Background(), Config{Provider: ProviderNone})
	if err != nil || c != nil {
		t.Fatalf("New(none) = %v, %v", c, err)
	}
	if c.Provider() != ProviderNone {
		t.Fatalf("Provider() = %q", c.Provider())
	}
	if _, err := c.Classify(context.Background(), "", "Péssimo"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	var got risk.FallbackReason
	a := risk.NewAnalyzer(nil,
		risk.WithClassifier(c),
		risk.WithFallbackHook(func(r risk.FallbackReason, _ error) { got = r }),
	)
	res := a.Analyze(context.Background(), "", "Péssimo atendimento")
	if res.Source != risk.SourceHeuristic {
		t.Fatalf("source = %q", res.Source)
	}
	if got != risk.FallbackUnavailable {
		t.Fatalf("fallback reason = %q, want %q", got, risk.FallbackUnavailable)
	}
}
