package knowledgebase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lewisedginton/memory_engine/internal/tokens"
	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/lewisedginton/memory_engine/pkg/metrics"
)

// RetrieverConfig holds the selection limits.
type RetrieverConfig struct {
	MaxEntries int
	// Budgets below BudgetFloor are replaced by FloorTokens
	BudgetFloor int
	FloorTokens int
	// Output above GlobalCap tokens is cut to GlobalCutTo
	GlobalCap   int
	GlobalCutTo int
}

// DefaultRetrieverConfig returns the standard limits.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		MaxEntries:  6,
		BudgetFloor: 10,
		FloorTokens: 50,
		GlobalCap:   1400,
		GlobalCutTo: 1000,
	}
}

// Selected is an entry chosen for the turn.
type Selected struct {
	Entry      Entry   `json:"entry"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
}

// Result is the knowledge base contribution to one turn.
type Result struct {
	Text       string     `json:"text"`
	Selected   []Selected `json:"selected"`
	Candidates int        `json:"candidates"`
}

// RetrieveOptions vary retrieval per caller.
type RetrieveOptions struct {
	// ExcludeHidden drops entries flagged hidden
	ExcludeHidden bool `json:"exclude_hidden"`
}

// Retriever selects entries for a context window.
type Retriever struct {
	store   Store
	cfg     RetrieverConfig
	log     logger.Logger
	metrics *metrics.EngineMetrics
}

// NewRetriever creates a Retriever. Zero config fields take their defaults.
func NewRetriever(store Store, cfg RetrieverConfig, log logger.Logger, m *metrics.EngineMetrics) *Retriever {
	def := DefaultRetrieverConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.BudgetFloor <= 0 {
		cfg.BudgetFloor = def.BudgetFloor
	}
	if cfg.FloorTokens <= 0 {
		cfg.FloorTokens = def.FloorTokens
	}
	if cfg.GlobalCap <= 0 {
		cfg.GlobalCap = def.GlobalCap
	}
	if cfg.GlobalCutTo <= 0 {
		cfg.GlobalCutTo = def.GlobalCutTo
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Retriever{store: store, cfg: cfg, log: log, metrics: m}
}

// tail returns the last n runes of s, or s when n <= 0.
func tail(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// Prefilter returns the enabled, non-constant entries with a key matching
// window. Keys that fail to compile are skipped.
func (r *Retriever) Prefilter(entries []Entry, window string, opts RetrieveOptions) []Entry {
	var out []Entry
	for _, e := range entries {
		if !e.Enabled || e.ForceActivation || (opts.ExcludeHidden && e.Hidden) {
			continue
		}
		scope := tail(window, e.SearchRange)
		for _, k := range e.Keys {
			match, err := compileKey(k)
			if err != nil {
				r.log.Debug("Skipping invalid knowledge base key",
					logger.StringField("entry_id", e.ID), logger.ErrorField(err))
				continue
			}
			if match(scope) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Select ranks candidates by similarity to window, keeps the top entries,
// orders them by budget priority and trims each to its budget.
func (r *Retriever) Select(candidates []Entry, window string) []Selected {
	if len(candidates) == 0 {
		return []Selected{}
	}

	texts := make([]string, len(candidates))
	for i, e := range candidates {
		texts[i] = e.TextContent
	}
	scores := Similarities(window, texts)

	ranked := make([]Selected, len(candidates))
	for i, e := range candidates {
		ranked[i] = Selected{Entry: e, Similarity: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Similarity > ranked[j].Similarity })
	if len(ranked) > r.cfg.MaxEntries {
		ranked = ranked[:r.cfg.MaxEntries]
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Entry.BudgetPriority > ranked[j].Entry.BudgetPriority
	})
	for i := range ranked {
		ranked[i].Content = tokens.TrimWithFloor(ranked[i].Entry.TextContent,
			ranked[i].Entry.TokenBudget, r.cfg.BudgetFloor, r.cfg.FloorTokens)
	}
	return ranked
}

// Retrieve runs the full pipeline for window. Store failures yield an empty
// result; the turn goes ahead without knowledge base context.
func (r *Retriever) Retrieve(ctx context.Context, window string, opts RetrieveOptions) Result {
	entries, err := r.store.ListEntries(ctx)
	if err != nil {
		r.log.Warn("Knowledge base unavailable", logger.ErrorField(err))
		return Result{Selected: []Selected{}}
	}

	candidates := r.Prefilter(entries, window, opts)
	selected := r.Select(candidates, window)

	parts := make([]string, len(selected))
	for i, s := range selected {
		parts[i] = s.Content
	}
	text := tokens.Cap(strings.Join(parts, "\n"), r.cfg.GlobalCap, r.cfg.GlobalCutTo)

	r.metrics.ObserveKnowledgeBase(len(candidates), len(selected))
	r.log.Debug("Knowledge base retrieval",
		logger.IntField("candidates", len(candidates)),
		logger.IntField("selected", len(selected)))
	return Result{Text: text, Selected: selected, Candidates: len(candidates)}
}

// ConstantContext returns the force-activated entries, one per line with a
// space on either side.
func (r *Retriever) ConstantContext(ctx context.Context, opts RetrieveOptions) (string, []Entry) {
	entries, err := r.store.ListEntries(ctx)
	if err != nil {
		r.log.Warn("Knowledge base unavailable", logger.ErrorField(err))
		return "", []Entry{}
	}

	constant := []Entry{}
	lines := []string{}
	for _, e := range entries {
		if !e.Enabled || !e.ForceActivation || (opts.ExcludeHidden && e.Hidden) {
			continue
		}
		constant = append(constant, e)
		lines = append(lines, fmt.Sprintf(" %s ", e.TextContent))
	}
	return strings.Join(lines, "\n"), constant
}
