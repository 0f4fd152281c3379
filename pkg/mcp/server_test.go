package mcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
)

type fakeBackend struct {
	lastDescription string
	lastComment     string
	lastExplain     bool
	lastRows        []Row
	err             error
}

func (f *fakeBackend) Analyze(_ context.Context, description, comment string, explain bool) (map[string]any, error) {
	f.lastDescription, f.lastComment, f.lastExplain = description, comment, explain
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"grade": "Alto", "explanation": "Cliente insatisfeito."}, nil
}

func (f *fakeBackend) AnalyzeBatch(_ context.Context, rows []Row) (map[string]any, error) {
	f.lastRows = rows
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"rows": len(rows)}, nil
}

func callRequest(args map[string]any) mcpproto.CallToolRequest {
	var req mcpproto.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcpproto.CallToolResult) string {
	t.Helper()
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcpproto.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestNewHandler_RequiresBackend(t *testing.T) {
	if _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatal("expected error for nil backend")
	}
}

func TestNewHandler_APIKey(t *testing.T) {
	h, err := NewHandler(Config{APIKey: "secret", Stateless: true}, &fakeBackend{})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	cases := []struct {
		name   string
		header string
		value  string
	}{
		{"missing", "", ""},
		{"wrong key", "X-API-Key", "nope"},
		{"wrong bearer", "Authorization", "Bearer nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", w.Code)
			}
		})
	}

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("preflight expected 200, got %d", w.Code)
	}
}

func TestAPIKeyMiddleware_Accepts(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	h := apiKeyMiddleware("secret", next)

	for _, set := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("X-API-Key", "secret") },
		func(r *http.Request) { r.Header.Set("Authorization", "bearer secret") },
	} {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		set(req)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusTeapot {
			t.Fatalf("expected request to reach next handler, got %d", w.Code)
		}
	}
}

func TestNewHandler_RateLimit(t *testing.T) {
	h, err := NewHandler(Config{APIKey: "secret", RateLimitRPS: 1, RateLimitBurst: 1}, &fakeBackend{})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	codes := make([]int, 2)
	for i := range codes {
		req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	if codes[0] != http.StatusUnauthorized {
		t.Fatalf("first request expected 401 from auth, got %d", codes[0])
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", codes[1])
	}
}

func TestAnalyzeTool(t *testing.T) {
	backend := &fakeBackend{}
	handler := analyzeTool(backend)

	res, err := handler(context.Background(), callRequest(map[string]any{
		"description": "Revisão",
		"comment":     "Demorou demais",
		"explain":     true,
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}
	if backend.lastDescription != "Revisão" || backend.lastComment != "Demorou demais" || !backend.lastExplain {
		t.Fatalf("backend got %+v", backend)
	}
	if text := resultText(t, res); !strings.Contains(text, "risk grade: Alto") || !strings.Contains(text, `"explanation"`) {
		t.Fatalf("result text = %q", text)
	}

	// blank comments are valid input
	if res, _ := handler(context.Background(), callRequest(map[string]any{"comment": ""})); res.IsError {
		t.Fatalf("blank comment rejected: %s", resultText(t, res))
	}

	if res, _ := handler(context.Background(), callRequest(map[string]any{"description": "x"})); !res.IsError {
		t.Fatal("missing comment should be an error result")
	}

	backend.err = errors.New("comment exceeds maximum size")
	res, _ = handler(context.Background(), callRequest(map[string]any{"comment": "x"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "maximum size") {
		t.Fatalf("backend error not surfaced: %s", resultText(t, res))
	}
}

func TestAnalyzeBatchTool(t *testing.T) {
	backend := &fakeBackend{}
	handler := analyzeBatchTool(backend)

	res, err := handler(context.Background(), callRequest(map[string]any{
		"rows": `[{"description":"Revisão","comment":"Demorou demais"},{"comment":"Ótimo"}]`,
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, res))
	}
	if len(backend.lastRows) != 2 || backend.lastRows[0].Description != "Revisão" || backend.lastRows[1].Comment != "Ótimo" {
		t.Fatalf("rows = %+v", backend.lastRows)
	}

	for _, rows := range []string{"", "   ", "not json", "[]"} {
		res, _ := handler(context.Background(), callRequest(map[string]any{"rows": rows}))
		if !res.IsError {
			t.Fatalf("rows %q should be rejected", rows)
		}
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{"s": "v", "b": true, "n": 3}
	if getString(args, "s", "d") != "v" || getString(args, "n", "d") != "d" || getString(nil, "s", "d") != "d" {
		t.Fatal("getString mismatch")
	}
	if !getBool(args, "b", false) || getBool(args, "s", false) || !getBool(nil, "b", true) {
		t.Fatal("getBool mismatch")
	}
}
