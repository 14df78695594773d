package checkers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/memory_engine/internal/embedding"
)

// embedService answers the embedding protocol; echo rewrites the returned id.
type embedService struct {
	mu   sync.Mutex
	seen []map[string]string
	echo func(id string) string
	dim  int
}

func (s *embedService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.seen = append(s.seen, req)
	s.mu.Unlock()

	id := req["id"]
	if s.echo != nil {
		id = s.echo(id)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":        id,
		"embedding": [][]float32{make([]float32, s.dim)},
	})
}

func TestEmbeddingChecker(t *testing.T) {
	ctx := context.Background()

	t.Run("echoed id and dimension", func(t *testing.T) {
		svc := &embedService{dim: 4}
		srv := httptest.NewServer(svc)
		defer srv.Close()

		c := NewEmbeddingChecker(embedding.NewHTTPProvider(srv.URL), 4, "")
		assert.Equal(t, "embedding", c.Name())

		details, err := c.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, details["dimension"])

		require.Len(t, svc.seen, 1)
		assert.Equal(t, ReadinessText, svc.seen[0]["text"])
		assert.Equal(t, details["request_id"], svc.seen[0]["id"])
		assert.Len(t, svc.seen[0]["id"], 26)

		require.NoError(t, c.Check(ctx))
		require.Len(t, svc.seen, 2)
		assert.NotEqual(t, svc.seen[0]["id"], svc.seen[1]["id"])
	})

	t.Run("wrong echo fails", func(t *testing.T) {
		srv := httptest.NewServer(&embedService{dim: 4, echo: func(string) string { return "stale" }})
		defer srv.Close()

		err := NewEmbeddingChecker(embedding.NewHTTPProvider(srv.URL), 4, "embedding").Check(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"stale" does not match`)
	})

	t.Run("dimension mismatch fails", func(t *testing.T) {
		srv := httptest.NewServer(&embedService{dim: 3})
		defer srv.Close()

		details, err := NewEmbeddingChecker(embedding.NewHTTPProvider(srv.URL), 4, "embedding").Report(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "got 3 dimensions, want 4")
		assert.Equal(t, 3, details["dimension"])
	})

	t.Run("unreachable service fails", func(t *testing.T) {
		srv := httptest.NewServer(&embedService{dim: 4})
		url := srv.URL
		srv.Close()

		assert.Error(t, NewEmbeddingChecker(embedding.NewHTTPProvider(url), 0, "embedding").Check(ctx))
	})
}
