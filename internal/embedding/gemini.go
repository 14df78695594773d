package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider embeds through the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	dims   int32
}

// NewGeminiProvider creates a provider with the given client configuration.
func NewGeminiProvider(ctx context.Context, model string, dims int, cfg *genai.ClientConfig) (*GeminiProvider, error) {
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, dims: int32(dims)}, nil //nolint:gosec // dims is a small config value
}

// Name returns "gemini".
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Embed requests one embedding for text.
func (p *GeminiProvider) Embed(ctx context.Context, _ string, text string) ([]float32, error) {
	var cfg *genai.EmbedContentConfig
	if p.dims > 0 {
		dims := p.dims
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dims}
	}

	resp, err := p.client.Models.EmbedContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}
