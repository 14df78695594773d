// Package engine is the memory and retrieval facade the rest of the agent talks
// to. Writes go through RecordUtterance; each turn's reads are assembled by
// BuildTurnContext, which fans the independent lookups out concurrently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/internal/memory_graph"
	"github.com/lewisedginton/memory_engine/internal/record_store"
	"github.com/lewisedginton/memory_engine/internal/rollover"
	"github.com/lewisedginton/memory_engine/internal/vector_index"
	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/lewisedginton/memory_engine/pkg/metrics"
)

// DefaultUpsertTimeout bounds the vector write that follows each record.
const DefaultUpsertTimeout = 15 * time.Second

// Config holds the collaborators of an Engine.
type Config struct {
	Records  *record_store.Store
	Vectors  *vector_index.Store
	Rollover *rollover.Manager
	// KnowledgeBase nil disables knowledge base context
	KnowledgeBase *knowledgebase.Retriever

	// Namespace is the conversation namespace, also used as the record thread
	Namespace string
	// AgentName and OtherName identify the two speakers of the thread
	AgentName string
	OtherName string

	UpsertTimeout time.Duration
	Logger        logger.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg     Config
	records *record_store.Store
	vectors *vector_index.Store
	graph   *memory_graph.Graph
	roll    *rollover.Manager
	kb      *knowledgebase.Retriever
	log     logger.Logger

	mu   sync.Mutex
	last *record_store.MemoryRecord
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Records == nil {
		return nil, errors.New("record store cannot be nil")
	}
	if cfg.Vectors == nil {
		return nil, errors.New("vector store cannot be nil")
	}
	if cfg.Rollover == nil {
		return nil, errors.New("rollover manager cannot be nil")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = vector_index.NamespaceConversation
	}
	if err := vector_index.ValidateNamespace(cfg.Namespace); err != nil {
		return nil, err
	}
	if cfg.OtherName == "" {
		return nil, errors.New("other speaker name is required")
	}
	if cfg.UpsertTimeout <= 0 {
		cfg.UpsertTimeout = DefaultUpsertTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	e := &Engine{
		cfg:     cfg,
		records: cfg.Records,
		vectors: cfg.Vectors,
		graph: memory_graph.New(memory_graph.Config{
			Vectors: cfg.Vectors,
			Records: cfg.Records,
			Logger:  cfg.Logger,
			Now:     cfg.Now,
		}),
		roll: cfg.Rollover,
		kb:   cfg.KnowledgeBase,
		log:  cfg.Logger.WithFields(logger.StringField("component", "engine")),
	}
	e.roll.SetContextBuilder(e.SummaryContext)
	return e, nil
}

func (e *Engine) engineMetrics() *metrics.EngineMetrics {
	if e.cfg.Metrics == nil {
		return nil
	}
	return e.cfg.Metrics.Engine
}

// Rollover exposes the rollover manager, e.g. for its event feed.
func (e *Engine) Rollover() *rollover.Manager {
	return e.roll
}

// RecordUtterance persists one utterance and returns its ID. The record is
// durable before its vector is attempted; a failed vector only leaves the
// record unsearchable and is not reported as an error.
func (e *Engine) RecordUtterance(ctx context.Context, speaker, text string) (int64, error) {
	const op = "engine.RecordUtterance"
	if strings.TrimSpace(speaker) == "" {
		return 0, memerrors.Validation(op, "speaker is required")
	}
	if strings.TrimSpace(text) == "" {
		return 0, memerrors.Validation(op, "text is required")
	}

	rec, err := e.records.Append(ctx, e.cfg.Namespace, speaker, text)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	e.mu.Lock()
	e.last = rec
	e.mu.Unlock()

	if err := e.roll.Append(ctx, speaker, text); err != nil {
		e.log.Warn("Could not append to live transcript", logger.RecordIDField(rec.ID), logger.ErrorField(err))
	}
	if err := e.roll.Touch(ctx, rec.Time); err != nil {
		e.log.Warn("Could not update rollover state", logger.RecordIDField(rec.ID), logger.ErrorField(err))
	}

	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.UpsertTimeout)
	defer cancel()
	if !e.vectors.UpsertID(vctx, e.cfg.Namespace, text, rec.ID) {
		e.log.Debug("Utterance stored without a vector", logger.RecordIDField(rec.ID))
	}
	return rec.ID, nil
}

// trigger returns the ID of the latest recorded utterance when it is the
// query itself, so a search never answers with the message that prompted it.
func (e *Engine) trigger(query string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last != nil && e.last.Message == query {
		return e.last.ID
	}
	return 0
}

// RecentMemory is plain recall: up to k records similar to query, newest
// first, formatted one "//Memory from ..." line each.
func (e *Engine) RecentMemory(ctx context.Context, query string, k int) (string, []*record_store.MemoryRecord) {
	recs := e.graph.Recall(ctx, memory_graph.Query{
		Namespace: e.cfg.Namespace,
		Text:      query,
		K:         k,
		TriggerID: e.trigger(query),
	})
	return memory_graph.FormatRecall(recs, e.graph.Now()), recs
}

// RecentCausalMemory returns up to k exchanges in which the other speaker said
// something like query, with the agent's reply and their reaction.
func (e *Engine) RecentCausalMemory(ctx context.Context, query string, k int) (string, []memory_graph.Exchange) {
	return e.causal(ctx, query, k, e.trigger(query))
}

func (e *Engine) causal(ctx context.Context, query string, k int, trigger int64) (string, []memory_graph.Exchange) {
	exchanges := e.graph.CausalChains(ctx, memory_graph.Query{
		Namespace: e.cfg.Namespace,
		Text:      query,
		K:         k,
		TriggerID: trigger,
	}, e.cfg.OtherName)
	return memory_graph.FormatCausal(exchanges, e.cfg.OtherName, e.graph.Now()), exchanges
}

// KnowledgeBaseContext runs knowledge base retrieval over window.
func (e *Engine) KnowledgeBaseContext(ctx context.Context, window string, opts knowledgebase.RetrieveOptions) (string, knowledgebase.Result) {
	if e.kb == nil {
		return "", knowledgebase.Result{Selected: []knowledgebase.Selected{}}
	}
	res := e.kb.Retrieve(ctx, window, opts)
	return res.Text, res
}

// ConstantContext returns the force-activated knowledge base entries.
func (e *Engine) ConstantContext(ctx context.Context, opts knowledgebase.RetrieveOptions) (string, []knowledgebase.Entry) {
	if e.kb == nil {
		return "", []knowledgebase.Entry{}
	}
	return e.kb.ConstantContext(ctx, opts)
}

// SummaryMemory returns up to k conversation summaries similar to query,
// newest first.
func (e *Engine) SummaryMemory(ctx context.Context, query string, k int) (string, []*rollover.SummaryRecord) {
	recs := vector_index.Search(ctx, e.vectors, e.roll.SummaryNamespace(), query, k, e.roll.Summaries().Lookup)
	sortSummaries(recs)
	return FormatSummaries(recs, e.graph.Now()), recs
}

// Shutdown waits for background summaries, then releases the record cache.
func (e *Engine) Shutdown(ctx context.Context) error {
	err := e.roll.Shutdown(ctx)
	e.records.Close()
	return err
}
