package engine

import (
	"context"
	"fmt"
)

// Stats is a point-in-time view of the engine for readiness reporting.
type Stats struct {
	RunningSummaries    int   `json:"running_summaries"`
	ConversationVectors int   `json:"conversation_vectors"`
	SummaryVectors      int   `json:"summary_vectors"`
	LastRecordID        int64 `json:"last_record_id,omitempty"`
}

// Stats reads the index sizes and the number of unfinished summary tasks.
func (e *Engine) Stats(ctx context.Context) Stats {
	st := Stats{
		RunningSummaries:    e.roll.Running(),
		ConversationVectors: e.vectors.Size(ctx, e.cfg.Namespace),
		SummaryVectors:      e.vectors.Size(ctx, e.roll.SummaryNamespace()),
	}
	e.mu.Lock()
	if e.last != nil {
		st.LastRecordID = e.last.ID
	}
	e.mu.Unlock()
	return st
}

// StateCheck is the engine's readiness check. It reports Stats and fails
// once maxRunning summaries are unfinished, which means the summarizer has
// fallen behind; maxRunning <= 0 never fails.
type StateCheck struct {
	engine     *Engine
	maxRunning int
}

// StateCheck returns the readiness check for e.
func (e *Engine) StateCheck(maxRunning int) *StateCheck {
	return &StateCheck{engine: e, maxRunning: maxRunning}
}

func (c *StateCheck) Name() string { return "engine" }

func (c *StateCheck) Check(ctx context.Context) error {
	_, err := c.Report(ctx)
	return err
}

func (c *StateCheck) Report(ctx context.Context) (map[string]any, error) {
	st := c.engine.Stats(ctx)
	details := map[string]any{
		"running_summaries":    st.RunningSummaries,
		"conversation_vectors": st.ConversationVectors,
		"summary_vectors":      st.SummaryVectors,
	}
	if st.LastRecordID != 0 {
		details["last_record_id"] = st.LastRecordID
	}
	if c.maxRunning > 0 && st.RunningSummaries >= c.maxRunning {
		return details, fmt.Errorf("%d summaries unfinished, limit %d", st.RunningSummaries, c.maxRunning)
	}
	return details, nil
}
