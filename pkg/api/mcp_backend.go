package api

import (
	"context"

	"github.com/denizumutdereli/npsrisk/pkg/batch"
	mcpapi "github.com/denizumutdereli/npsrisk/pkg/mcp"
)

type mcpBackend struct {
	server *Server
}

func newMCPBackend(s *Server) *mcpBackend {
	return &mcpBackend{server: s}
}

func (b *mcpBackend) Analyze(ctx context.Context, description, comment string, explain bool) (map[string]any, error) {
	if err := validateInputs(description, comment); err != nil {
		return nil, err
	}
	return resultDocument(newResultView(b.server.analyze(ctx, description, comment, explain))), nil
}

func (b *mcpBackend) AnalyzeBatch(ctx context.Context, rows []mcpapi.Row) (map[string]any, error) {
	in := make([]batch.Row, len(rows))
	for i, row := range rows {
		in[i] = batch.Row{Description: row.Description, Comment: row.Comment}
	}

	resp, err := b.server.analyzeRows(ctx, in, false)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, len(resp.Results))
	for i, v := range resp.Results {
		results[i] = resultDocument(v)
	}
	return map[string]any{
		"runId":   resp.RunID,
		"rows":    resp.Rows,
		"unique":  resp.Unique,
		"summary": resp.Summary,
		"results": results,
	}, nil
}

func resultDocument(v resultView) map[string]any {
	doc := map[string]any{
		"grade":       v.Grade,
		"explanation": v.Explanation,
		"source":      v.Source,
	}
	if v.Score != nil {
		doc["score"] = *v.Score
	}
	if v.Breakdown != nil {
		doc["breakdown"] = v.Breakdown
	}
	return doc
}
