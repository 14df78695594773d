package engine

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
	"github.com/lewisedginton/memory_engine/internal/memory_graph"
	"github.com/lewisedginton/memory_engine/internal/rollover"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// Default lookup sizes for a turn.
const (
	DefaultCausalK  = 3
	DefaultSummaryK = 2
)

// TurnRequest describes the turn being answered.
type TurnRequest struct {
	// Query is what the other speaker just said
	Query string `json:"query"`
	// Window is the recent context keys are matched against; empty uses Query
	Window    string                        `json:"window,omitempty"`
	CausalK   int                           `json:"causal_k,omitempty"`
	SummaryK  int                           `json:"summary_k,omitempty"`
	KBOptions knowledgebase.RetrieveOptions `json:"kb_options"`
	// TriggerID is the record of Query when it is already stored
	TriggerID int64 `json:"trigger_id,omitempty"`
}

// TurnContext is everything the engine contributes to one reply.
type TurnContext struct {
	Rollover rollover.Decision `json:"rollover"`

	Constant        string                `json:"constant"`
	ConstantEntries []knowledgebase.Entry `json:"constant_entries"`

	Transcript   string `json:"transcript"`
	EarlierToday string `json:"earlier_today"`

	Causal    string                  `json:"causal"`
	Exchanges []memory_graph.Exchange `json:"exchanges"`

	KnowledgeBase       string               `json:"knowledge_base"`
	KnowledgeBaseResult knowledgebase.Result `json:"knowledge_base_result"`

	Summaries      string                    `json:"summaries"`
	SummaryRecords []*rollover.SummaryRecord `json:"summary_records"`
}

// BuildTurnContext runs the rollover check, then issues the independent
// lookups concurrently and joins them. Lookup failures leave their part empty.
// Call it before the query is recorded so the check sees the previous message.
func (e *Engine) BuildTurnContext(ctx context.Context, req TurnRequest) (*TurnContext, error) {
	start := time.Now()
	decision := e.checkRollover(ctx)
	tc, err := e.gather(ctx, req)
	if err != nil {
		return nil, err
	}
	tc.Rollover = decision
	e.observeTurn(tc, start)
	return tc, nil
}

// Turn handles a message from the other speaker end to end: rollover check,
// then RecordUtterance, then the fan-out with the new record as the trigger.
func (e *Engine) Turn(ctx context.Context, req TurnRequest) (int64, *TurnContext, error) {
	start := time.Now()
	decision := e.checkRollover(ctx)

	id, err := e.RecordUtterance(ctx, e.cfg.OtherName, req.Query)
	if err != nil {
		return 0, nil, err
	}
	req.TriggerID = id

	tc, err := e.gather(ctx, req)
	if err != nil {
		return id, nil, err
	}
	tc.Rollover = decision
	e.observeTurn(tc, start)
	return id, tc, nil
}

func (e *Engine) checkRollover(ctx context.Context) rollover.Decision {
	decision, err := e.roll.Check(ctx)
	if err != nil {
		e.log.Warn("Rollover check failed", logger.ErrorField(err))
	}
	return decision
}

func (e *Engine) observeTurn(tc *TurnContext, start time.Time) {
	took := time.Since(start)
	e.engineMetrics().ObserveTurnContext(took)
	e.log.Debug("Turn context assembled",
		logger.StringField("rollover", string(tc.Rollover.Reason)),
		logger.IntField("exchanges", len(tc.Exchanges)),
		logger.IntField("kb_selected", len(tc.KnowledgeBaseResult.Selected)),
		logger.IntField("summaries", len(tc.SummaryRecords)),
		logger.DurationField("took", took))
}

func (e *Engine) gather(ctx context.Context, req TurnRequest) (*TurnContext, error) {
	if req.CausalK <= 0 {
		req.CausalK = DefaultCausalK
	}
	if req.SummaryK <= 0 {
		req.SummaryK = DefaultSummaryK
	}
	window := req.Window
	if window == "" {
		window = req.Query
	}
	trigger := req.TriggerID
	if trigger == 0 {
		trigger = e.trigger(req.Query)
	}

	tc := &TurnContext{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tc.Constant, tc.ConstantEntries = e.ConstantContext(gctx, req.KBOptions)
		return nil
	})
	g.Go(func() error {
		t, err := e.roll.Transcript(gctx)
		if err != nil {
			e.log.Warn("Live transcript unreadable", logger.ErrorField(err))
		}
		tc.Transcript = t
		return nil
	})
	g.Go(func() error {
		t, err := e.roll.EarlierToday(gctx)
		if err != nil {
			e.log.Warn("Earlier-today buffer unreadable", logger.ErrorField(err))
		}
		tc.EarlierToday = t
		return nil
	})
	g.Go(func() error {
		tc.Causal, tc.Exchanges = e.causal(gctx, req.Query, req.CausalK, trigger)
		return nil
	})
	g.Go(func() error {
		tc.KnowledgeBase, tc.KnowledgeBaseResult = e.KnowledgeBaseContext(gctx, window, req.KBOptions)
		return nil
	})
	g.Go(func() error {
		tc.Summaries, tc.SummaryRecords = e.SummaryMemory(gctx, req.Query, req.SummaryK)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tc, nil
}

// SummaryContext assembles the reply context a rolled over transcript was
// answered with: constant entries, knowledge base text keyed on the
// transcript and the summaries most like it. It is registered as the rollover
// context builder so summaries are written with the same background.
func (e *Engine) SummaryContext(ctx context.Context, transcript string) string {
	var constant, kb, summaries string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		constant, _ = e.ConstantContext(gctx, knowledgebase.RetrieveOptions{})
		return nil
	})
	g.Go(func() error {
		kb, _ = e.KnowledgeBaseContext(gctx, transcript, knowledgebase.RetrieveOptions{})
		return nil
	})
	g.Go(func() error {
		summaries, _ = e.SummaryMemory(gctx, transcript, DefaultSummaryK)
		return nil
	})
	_ = g.Wait()

	parts := make([]string, 0, 3)
	for _, p := range []string{constant, kb, summaries} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}
