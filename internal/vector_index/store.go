package vector_index //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/lewisedginton/memory_engine/pkg/metrics"
)

// Embedder returns unit vectors sized for the index. *embedding.Guard satisfies it.
type Embedder interface {
	Embed(ctx context.Context, id, text string) ([]float32, error)
	Name() string
}

// Resolver maps a vector ID back to the record it indexes. ok=false drops the hit.
type Resolver[T any] func(ctx context.Context, id int64) (T, bool)

// Store is the engine-facing vector store. None of its methods return errors:
// failures are logged and reported as false or an empty result.
type Store struct {
	index    Index
	embedder Embedder
	log      logger.Logger
	metrics  *metrics.EngineMetrics
}

// Config holds the collaborators of a Store.
type Config struct {
	Index    Index
	Embedder Embedder
	Logger   logger.Logger
	Metrics  *metrics.EngineMetrics
}

// NewStore creates a Store.
func NewStore(cfg Config) *Store {
	if cfg.Index == nil {
		panic("index cannot be nil")
	}
	if cfg.Embedder == nil {
		panic("embedder cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	return &Store{
		index:    cfg.Index,
		embedder: cfg.Embedder,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// ParseID accepts a positive base-10 integer that fits in 64 bits.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, memerrors.Validation("parse id", "id %q is not a 64-bit integer", raw)
	}
	if id <= 0 {
		return 0, memerrors.Validation("parse id", "id %d is not positive", id)
	}
	return id, nil
}

// ValidateNamespace rejects names that cannot be used as a single file name.
func ValidateNamespace(namespace string) error {
	if namespace == "" || strings.ContainsAny(namespace, `/\`) || strings.HasPrefix(namespace, ".") {
		return memerrors.Validation("namespace", "invalid namespace %q", namespace)
	}
	return nil
}

func (s *Store) logFailure(msg string, err error, fields ...logger.LogField) {
	fields = append(fields, logger.StringField("kind", string(memerrors.KindOf(err))), logger.ErrorField(err))
	if errors.Is(err, memerrors.ErrValidation) {
		s.log.Debug(msg, fields...)
		return
	}
	s.log.Warn(msg, fields...)
}

// Upsert validates rawID before anything else, then embeds text and stores the
// vector. A non-integer ID never reaches the embedding provider.
func (s *Store) Upsert(ctx context.Context, namespace, text, rawID string) bool {
	id, err := ParseID(rawID)
	if err != nil {
		s.metrics.ObserveUpsert(namespace, false)
		s.logFailure("Vector upsert rejected", err, logger.NamespaceField(namespace), logger.StringField("raw_id", rawID))
		return false
	}
	return s.UpsertID(ctx, namespace, text, id)
}

// UpsertID is Upsert for an already-typed ID.
func (s *Store) UpsertID(ctx context.Context, namespace, text string, id int64) bool {
	ok := s.upsert(ctx, namespace, text, id)
	s.metrics.ObserveUpsert(namespace, ok)
	return ok
}

func (s *Store) upsert(ctx context.Context, namespace, text string, id int64) bool {
	fields := []logger.LogField{logger.NamespaceField(namespace), logger.RecordIDField(id)}
	if err := ValidateNamespace(namespace); err != nil {
		s.logFailure("Vector upsert rejected", err, fields...)
		return false
	}
	if id <= 0 {
		s.logFailure("Vector upsert rejected", memerrors.Validation("upsert", "id %d is not positive", id), fields...)
		return false
	}

	vec, err := s.embedder.Embed(ctx, strconv.FormatInt(id, 10), text)
	if err != nil {
		s.logFailure("Vector upsert skipped, no embedding", err, fields...)
		return false
	}

	size, err := s.index.Add(ctx, namespace, id, vec)
	if err != nil {
		s.logFailure("Vector upsert failed", err, fields...)
		return false
	}
	s.metrics.SetIndexSize(namespace, size)
	s.log.Debug("Vector upserted", append(fields, logger.IntField("index_size", size))...)
	return true
}

// Nearest embeds text and returns up to k hits, nearest first.
func (s *Store) Nearest(ctx context.Context, namespace, text string, k int) []Hit {
	hits, err := s.nearest(ctx, namespace, text, k)
	s.metrics.ObserveSearch(namespace, err == nil)
	if err != nil {
		fields := []logger.LogField{logger.NamespaceField(namespace), logger.IntField("k", k)}
		if errors.Is(err, memerrors.ErrIndexMissing) {
			s.log.Debug("Vector search on empty namespace", fields...)
		} else {
			s.logFailure("Vector search degraded to no result", err, fields...)
		}
		return []Hit{}
	}
	return hits
}

func (s *Store) nearest(ctx context.Context, namespace, text string, k int) ([]Hit, error) {
	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Hit{}, nil
	}
	vec, err := s.embedder.Embed(ctx, uuid.NewString(), text)
	if err != nil {
		return nil, err
	}
	return s.index.Query(ctx, namespace, vec, k)
}

// Search is Nearest followed by resolution of each hit. Unresolvable IDs are dropped.
func Search[T any](ctx context.Context, s *Store, namespace, text string, k int, resolve Resolver[T]) []T {
	hits := s.Nearest(ctx, namespace, text, k)
	out := make([]T, 0, len(hits))
	for _, h := range hits {
		if rec, ok := resolve(ctx, h.ID); ok {
			out = append(out, rec)
		} else {
			s.log.Debug("Dropping unresolvable vector hit", logger.NamespaceField(namespace), logger.RecordIDField(h.ID))
		}
	}
	return out
}

// Delete removes id from namespace. It returns false if id was absent or the
// rewrite failed.
func (s *Store) Delete(ctx context.Context, namespace string, id int64) bool {
	fields := []logger.LogField{logger.NamespaceField(namespace), logger.RecordIDField(id)}
	if err := ValidateNamespace(namespace); err != nil {
		s.logFailure("Vector delete rejected", err, fields...)
		s.metrics.ObserveDelete(namespace, false)
		return false
	}
	removed, err := s.index.Remove(ctx, namespace, id)
	if err != nil {
		s.logFailure("Vector delete failed", err, fields...)
		removed = false
	}
	s.metrics.ObserveDelete(namespace, removed)
	if removed {
		if size, err := s.index.Size(ctx, namespace); err == nil {
			s.metrics.SetIndexSize(namespace, size)
		}
	}
	return removed
}

// Size reports how many vectors a namespace holds, 0 on any failure.
func (s *Store) Size(ctx context.Context, namespace string) int {
	n, err := s.index.Size(ctx, namespace)
	if err != nil {
		s.logFailure("Vector index size unavailable", err, logger.NamespaceField(namespace))
		return 0
	}
	return n
}
