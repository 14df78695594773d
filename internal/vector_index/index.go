// Package vector_index maps integer IDs to embedding vectors, one index per namespace.
//
// An Index is the raw ID to vector structure. Store layers the engine's policy on
// top: IDs are validated before any embedding is requested, embeddings are
// time-bounded, and failures are absorbed and logged so callers get false or an
// empty result instead of an error.
package vector_index //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
)

// Well-known namespaces.
const (
	NamespaceConversation = "conversation"
	NamespaceSummaries    = "summaries"
	NamespaceNotes        = "notes"
	NamespaceDocuments    = "documents"
)

// Hit is one nearest-neighbour result. Lower Distance is closer.
type Hit struct {
	ID       int64   `json:"id"`
	Distance float32 `json:"distance"`
}

// Index is a namespace-partitioned ID to vector mapping.
//
// Add and Remove on the same namespace are serialized by the implementation.
// Query never observes a half-applied mutation. Query on a namespace that has
// never been written returns an error matching memerrors.ErrIndexMissing.
type Index interface {
	// Add stores vec under id, replacing any previous vector for id, and
	// returns the namespace size after the write.
	Add(ctx context.Context, namespace string, id int64, vec []float32) (int, error)
	// Remove deletes id and reports whether it was present.
	Remove(ctx context.Context, namespace string, id int64) (bool, error)
	// Query returns up to k hits ordered nearest first.
	Query(ctx context.Context, namespace string, vec []float32, k int) ([]Hit, error)
	// Size returns the number of vectors in a namespace, 0 if it does not exist.
	Size(ctx context.Context, namespace string) (int, error)
}
