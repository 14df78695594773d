package checkers

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ReadinessText is embedded by every embedding check.
const ReadinessText = "readiness check"

// Embedder is the embedding service wire call: the request carries an ID the
// service must echo back, and a mismatch is returned as an error.
type Embedder interface {
	Embed(ctx context.Context, id, text string) ([]float32, error)
}

// EmbeddingChecker sends a real embed request with a fresh ID, so a service
// that answers 200 but returns nothing usable is caught too.
type EmbeddingChecker struct {
	embedder Embedder
	dim      int
	name     string
}

// NewEmbeddingChecker checks e; dim <= 0 accepts any vector length.
func NewEmbeddingChecker(e Embedder, dim int, name string) *EmbeddingChecker {
	if name == "" {
		name = "embedding"
	}
	return &EmbeddingChecker{embedder: e, dim: dim, name: name}
}

// Name returns the check name.
func (c *EmbeddingChecker) Name() string {
	return c.name
}

// Check embeds ReadinessText and verifies the vector.
func (c *EmbeddingChecker) Check(ctx context.Context) error {
	_, err := c.Report(ctx)
	return err
}

// Report embeds ReadinessText and returns the request ID and vector length.
func (c *EmbeddingChecker) Report(ctx context.Context) (map[string]any, error) {
	id := ulid.Make().String()
	details := map[string]any{"request_id": id}

	vec, err := c.embedder.Embed(ctx, id, ReadinessText)
	if err != nil {
		return details, fmt.Errorf("embed request %s: %w", id, err)
	}
	details["dimension"] = len(vec)
	if len(vec) == 0 {
		return details, fmt.Errorf("embed request %s: empty vector", id)
	}
	if c.dim > 0 && len(vec) != c.dim {
		return details, fmt.Errorf("embed request %s: got %d dimensions, want %d", id, len(vec), c.dim)
	}
	return details, nil
}
