package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPProvider speaks the embedding service protocol:
// POST {"text": ..., "id": ...} and expect {"embedding": [[...]], "id": ...}.
type HTTPProvider struct {
	endpoint   string
	httpClient *http.Client
	headers    map[string]string
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.httpClient = c }
}

// WithHeader adds a header to every request, e.g. an auth token.
func WithHeader(key, value string) HTTPOption {
	return func(p *HTTPProvider) { p.headers[key] = value }
}

// NewHTTPProvider creates a provider for the service at endpoint.
func NewHTTPProvider(endpoint string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		headers:    map[string]string{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type embedRequest struct {
	Text string `json:"text"`
	ID   string `json:"id"`
}

type embedResponse struct {
	Embedding [][]float32 `json:"embedding"`
	ID        string      `json:"id"`
	// older service builds echo the id under this key
	UUID string `json:"uuid,omitempty"`
}

// Name returns "http".
func (p *HTTPProvider) Name() string {
	return "http"
}

// Embed posts text to the service. A response whose id differs from the request's is discarded.
func (p *HTTPProvider) Embed(ctx context.Context, id, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Text: text, ID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	echoed := out.ID
	if echoed == "" {
		echoed = out.UUID
	}
	if echoed != id {
		return nil, fmt.Errorf("response id %q does not match request id %q", echoed, id)
	}
	if len(out.Embedding) == 0 || len(out.Embedding[0]) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return out.Embedding[0], nil
}
