// Package mcp exposes comment risk analysis as Model Context Protocol tools
// over streamable HTTP.
package mcp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/denizumutdereli/npsrisk/pkg/api/apierr"
	"github.com/denizumutdereli/npsrisk/pkg/api/ratelimit"
)

const (
	toolAnalyze      = "nps_analyze"
	toolAnalyzeBatch = "nps_analyze_batch"
	promptTriage     = "nps_triage"
)

// Config controls MCP route behavior.
type Config struct {
	APIKey         string
	Stateless      bool
	RateLimitRPS   float64
	RateLimitBurst int
	EnablePrompts  bool
	Version        string
}

// Row is one description/comment pair of a batch call.
type Row struct {
	Description string `json:"description"`
	Comment     string `json:"comment"`
}

// Backend is the capability contract exposed to MCP tools.
type Backend interface {
	Analyze(ctx context.Context, description, comment string, explain bool) (map[string]any, error)
	AnalyzeBatch(ctx context.Context, rows []Row) (map[string]any, error)
}

// NewHandler builds an MCP streamable HTTP handler with optional API-key auth
// and endpoint-local rate limiting.
func NewHandler(cfg Config, backend Backend) (http.Handler, error) {
	if backend == nil {
		return nil, fmt.Errorf("mcp backend is required")
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := mcpserver.NewMCPServer(
		"npsrisk-mcp",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(cfg.EnablePrompts),
		mcpserver.WithRecovery(),
	)

	registerTools(s, backend)
	if cfg.EnablePrompts {
		registerPrompts(s)
	}

	streamable := mcpserver.NewStreamableHTTPServer(s, mcpserver.WithStateLess(cfg.Stateless))
	var h http.Handler = http.HandlerFunc(streamable.ServeHTTP)

	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		h = apiKeyMiddleware(key, h)
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		h = ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware(apierr.TooManyRequests, h)
	}

	return h, nil
}

func registerTools(s *mcpserver.MCPServer, backend Backend) {
	s.AddTool(mcpproto.NewTool(toolAnalyze,
		mcpproto.WithDescription("Grade the reputational risk of one NPS comment (Muito Alto, Alto, Médio, Baixo) with a short Portuguese explanation."),
		mcpproto.WithString("comment", mcpproto.Required(), mcpproto.Description("Customer comment. Blank comments grade Baixo.")),
		mcpproto.WithString("description", mcpproto.Description("Optional service or product description scored together with the comment.")),
		mcpproto.WithBoolean("explain", mcpproto.Description("Include the heuristic score breakdown (matched terms, factors).")),
	), analyzeTool(backend))

	s.AddTool(mcpproto.NewTool(toolAnalyzeBatch,
		mcpproto.WithDescription("Grade many NPS comments at once and return per-row results plus counts per grade."),
		mcpproto.WithString("rows", mcpproto.Required(), mcpproto.Description("JSON array of objects with \"comment\" and optional \"description\" (e.g. [{\"description\":\"Revisão\",\"comment\":\"Demorou demais\"}]).")),
	), analyzeBatchTool(backend))
}

func analyzeTool(backend Backend) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
		args := req.GetArguments()
		if _, ok := args["comment"].(string); !ok {
			return errResult("comment is required"), nil
		}
		result, err := backend.Analyze(ctx,
			getString(args, "description", ""),
			getString(args, "comment", ""),
			getBool(args, "explain", false),
		)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return structuredResult(fmt.Sprintf("risk grade: %v", result["grade"]), result)
	}
}

func analyzeBatchTool(backend Backend) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
		raw := getString(req.GetArguments(), "rows", "")
		if strings.TrimSpace(raw) == "" {
			return errResult("rows is required"), nil
		}
		var rows []Row
		if err := json.Unmarshal([]byte(raw), &rows); err != nil {
			return errResult("rows must be a JSON array of {description, comment} objects"), nil
		}
		if len(rows) == 0 {
			return errResult("rows must not be empty"), nil
		}
		result, err := backend.AnalyzeBatch(ctx, rows)
		if err != nil {
			return errResult(err.Error()), nil
		}
		return structuredResult(fmt.Sprintf("%d rows analysed", len(rows)), result)
	}
}

func registerPrompts(s *mcpserver.MCPServer) {
	s.AddPrompt(mcpproto.NewPrompt(promptTriage,
		mcpproto.WithPromptDescription("Triage a customer comment and suggest a follow-up for the CX team."),
		mcpproto.WithArgument("comment", mcpproto.RequiredArgument(), mcpproto.ArgumentDescription("The NPS comment to triage.")),
		mcpproto.WithArgument("description", mcpproto.ArgumentDescription("Optional service description.")),
	), func(_ context.Context, req mcpproto.GetPromptRequest) (*mcpproto.GetPromptResult, error) {
		comment := req.Params.Arguments["comment"]
		description := req.Params.Arguments["description"]
		if description == "" {
			description = "não informado"
		}
		return &mcpproto.GetPromptResult{
			Description: "NPS comment triage workflow",
			Messages: []mcpproto.PromptMessage{
				{
					Role: mcpproto.RoleUser,
					Content: mcpproto.TextContent{
						Type: "text",
						Text: fmt.Sprintf("Call %s with description %q and comment %q (explain=true). "+
							"Report the risk grade, quote the terms that drove it, and if the grade is Alto or Muito Alto "+
							"draft a short reply in Portuguese the CX team can send to the customer.", toolAnalyze, description, comment),
					},
				},
			},
		}, nil
	})
}

func errResult(msg string) *mcpproto.CallToolResult {
	return &mcpproto.CallToolResult{
		Content: []mcpproto.Content{
			mcpproto.TextContent{Type: "text", Text: "Error: " + msg},
		},
		IsError: true,
	}
}

func structuredResult(summary string, data any) (*mcpproto.CallToolResult, error) {
	blob, err := json.Marshal(data)
	if err != nil {
		return errResult(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return &mcpproto.CallToolResult{
		Content: []mcpproto.Content{
			mcpproto.TextContent{Type: "text", Text: summary},
			mcpproto.TextContent{Type: "text", Text: string(blob)},
		},
	}, nil
}

func getString(args map[string]any, key string, def string) string {
	if args == nil {
		return def
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return def
}

func getBool(args map[string]any, key string, def bool) bool {
	if args == nil {
		return def
	}
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func apiKeyMiddleware(expected string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		provided := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if provided == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				provided = strings.TrimSpace(auth[7:])
			}
		}

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			apierr.Unauthorized(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
