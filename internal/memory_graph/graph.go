// Package memory_graph answers "what did they say, what did I answer, and how
// did they take it" on top of the vector store and the record store.
package memory_graph //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"sort"
	"time"

	"github.com/lewisedginton/memory_engine/internal/record_store"
	"github.com/lewisedginton/memory_engine/internal/vector_index"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// Record is the record type the graph works with.
type Record = record_store.MemoryRecord

// RecordSource resolves record IDs. *record_store.Store satisfies it.
type RecordSource interface {
	Lookup(ctx context.Context, id int64) (*Record, bool)
}

// Exchange is one causal snippet. Reply and Reaction are nil when the chain
// does not reach them.
type Exchange struct {
	Statement *Record `json:"statement"`
	Reply     *Record `json:"reply"`
	Reaction  *Record `json:"reaction"`
}

// Query describes one retrieval.
type Query struct {
	Namespace string
	Text      string
	K         int
	// TriggerID is the record whose arrival prompted this search, when known.
	// It is excluded instead of the most recent hit.
	TriggerID int64
}

// Graph composes vector search with record resolution.
type Graph struct {
	vectors *vector_index.Store
	records RecordSource
	log     logger.Logger
	now     func() time.Time
}

// Config holds the collaborators of a Graph.
type Config struct {
	Vectors *vector_index.Store
	Records RecordSource
	Logger  logger.Logger
	Now     func() time.Time
}

// New creates a Graph.
func New(cfg Config) *Graph {
	if cfg.Vectors == nil || cfg.Records == nil {
		panic("vectors and records cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Graph{vectors: cfg.Vectors, records: cfg.Records, log: cfg.Logger, now: cfg.Now}
}

// Now returns the graph's clock reading, used for relative time phrasing.
func (g *Graph) Now() time.Time {
	return g.now()
}

// ExcludeTrigger sorts records newest first and removes the record that
// triggered the search: triggerID when it is non-zero, otherwise the most
// recent one. The input slice is not modified.
func ExcludeTrigger(records []*Record, triggerID int64) []*Record {
	rest, _ := excludeTrigger(records, triggerID)
	return rest
}

// excludeTrigger also reports the ID treated as the trigger.
func excludeTrigger(records []*Record, triggerID int64) ([]*Record, int64) {
	ordered := make([]*Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time.After(ordered[j].Time) })

	if len(ordered) == 0 {
		return ordered, triggerID
	}
	if triggerID != 0 {
		for i, r := range ordered {
			if r.ID == triggerID {
				return append(ordered[:i:i], ordered[i+1:]...), triggerID
			}
		}
		return ordered, triggerID
	}
	return ordered[1:], ordered[0].ID
}

func (g *Graph) resolver() vector_index.Resolver[*Record] {
	return g.records.Lookup
}

// Recall returns up to q.K records relevant to q.Text, newest first, with the
// triggering record excluded.
func (g *Graph) Recall(ctx context.Context, q Query) []*Record {
	if q.K <= 0 {
		return []*Record{}
	}
	hits := vector_index.Search(ctx, g.vectors, q.Namespace, q.Text, q.K+1, g.resolver())
	ordered := ExcludeTrigger(hits, q.TriggerID)
	if len(ordered) > q.K {
		ordered = ordered[:q.K]
	}
	return ordered
}

// CausalChains returns up to q.K exchanges opened by other, newest first.
// The search is widened because hits by other speakers are filtered out.
func (g *Graph) CausalChains(ctx context.Context, q Query, other string) []Exchange {
	if q.K <= 0 {
		return []Exchange{}
	}
	hits := vector_index.Search(ctx, g.vectors, q.Namespace, q.Text, 2*q.K+1, g.resolver())
	ordered, trigger := excludeTrigger(hits, q.TriggerID)

	out := make([]Exchange, 0, q.K)
	for _, rec := range ordered {
		if rec.Speaker != other {
			continue
		}
		out = append(out, g.follow(ctx, rec, other, trigger))
		if len(out) == q.K {
			break
		}
	}
	return out
}

// Follow walks two forward links from a statement by other: the next record
// must be someone else's reply and the one after other's reaction. Hops that
// are missing or break that alternation are left nil.
func (g *Graph) Follow(ctx context.Context, statement *Record, other string) Exchange {
	return g.follow(ctx, statement, other, 0)
}

// follow treats the record skip as missing, so the trigger never comes back
// as a reply or reaction.
func (g *Graph) follow(ctx context.Context, statement *Record, other string, skip int64) Exchange {
	ex := Exchange{Statement: statement}

	reply, ok := g.hop(ctx, statement, skip)
	if !ok || reply.Speaker == other {
		return ex
	}
	ex.Reply = reply

	reaction, ok := g.hop(ctx, reply, skip)
	if !ok || reaction.Speaker != other {
		return ex
	}
	ex.Reaction = reaction
	return ex
}

func (g *Graph) hop(ctx context.Context, from *Record, skip int64) (*Record, bool) {
	next, ok := from.ResultingMessageID.Get()
	if !ok || (skip != 0 && next == skip) {
		return nil, false
	}
	return g.records.Lookup(ctx, next)
}
