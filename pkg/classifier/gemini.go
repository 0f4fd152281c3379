package classifier

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini talks to the Gemini API through the genai SDK.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

// NewGemini creates a Gemini completer. An empty API key falls back to
// application default credentials.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	cc := &genai.ClientConfig{}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	g := &Gemini{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxOutputTokens),
	}
	if g.model == "" {
		g.model = DefaultGeminiModel
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultMaxOutputTokens
	}
	return g, nil
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Complete(ctx context.Context, system, prompt string) (string, error) {
	content := genai.NewContentFromText(prompt, genai.RoleUser)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   g.maxTokens,
		ResponseMIMEType:  "application/json",
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content with Gemini: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates from Gemini")
	}

	var result strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			result.WriteString(part.Text)
		}
	}
	return result.String(), nil
}
