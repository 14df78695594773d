package vector_index //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/lewisedginton/memory_engine/internal/memerrors"
)

// ChromemIndex stores each namespace as a chromem-go collection. Documents carry
// only the ID and the vector. Collections persist under their own directory
// rather than through a FileProvider.
type ChromemIndex struct {
	db  *chromem.DB
	dim int

	mu     sync.Mutex
	writes map[string]*sync.Mutex
}

// NewChromemIndex opens a persistent chromem database at path, or an in-memory
// one when path is empty.
func NewChromemIndex(path string, compress bool, dim int) (*ChromemIndex, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}
	return &ChromemIndex{db: db, dim: dim, writes: make(map[string]*sync.Mutex)}, nil
}

func (c *ChromemIndex) writeLock(namespace string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.writes[namespace]
	if !ok {
		l = &sync.Mutex{}
		c.writes[namespace] = l
	}
	return l
}

// Add implements Index.
func (c *ChromemIndex) Add(ctx context.Context, namespace string, id int64, vec []float32) (int, error) {
	if len(vec) != c.dim {
		return 0, memerrors.Validation("add", "vector has %d dimensions, index holds %d", len(vec), c.dim)
	}
	l := c.writeLock(namespace)
	l.Lock()
	defer l.Unlock()

	col, err := c.db.GetOrCreateCollection(namespace, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("open collection %s: %w", namespace, err)
	}
	doc := chromem.Document{
		ID:        strconv.FormatInt(id, 10),
		Embedding: vec,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return 0, fmt.Errorf("add document %d to %s: %w", id, namespace, err)
	}
	return col.Count(), nil
}

// Remove implements Index.
func (c *ChromemIndex) Remove(ctx context.Context, namespace string, id int64) (bool, error) {
	l := c.writeLock(namespace)
	l.Lock()
	defer l.Unlock()

	col := c.db.GetCollection(namespace, nil)
	if col == nil {
		return false, nil
	}
	before := col.Count()
	err := col.Delete(ctx, nil, nil, strconv.FormatInt(id, 10))
	removed := col.Count() < before
	if err != nil && removed {
		return true, fmt.Errorf("delete document %d from %s: %w", id, namespace, err)
	}
	// an absent id is not an error
	return removed, nil
}

// Query implements Index. Cosine similarity is mapped to squared L2 distance,
// which is equivalent on unit vectors.
func (c *ChromemIndex) Query(ctx context.Context, namespace string, vec []float32, k int) ([]Hit, error) {
	if len(vec) != c.dim {
		return nil, memerrors.Validation("query", "vector has %d dimensions, index holds %d", len(vec), c.dim)
	}
	col := c.db.GetCollection(namespace, nil)
	if col == nil {
		return nil, memerrors.E(memerrors.KindIndexMissing, "query "+namespace, nil)
	}

	n := min(k, col.Count())
	if n <= 0 {
		return []Hit{}, nil
	}
	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", namespace, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, Hit{ID: id, Distance: 2 - 2*r.Similarity})
	}
	return hits, nil
}

// Size implements Index.
func (c *ChromemIndex) Size(_ context.Context, namespace string) (int, error) {
	col := c.db.GetCollection(namespace, nil)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}
