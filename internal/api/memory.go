package api

import (
	"net/http"
	"strings"

	"github.com/lewisedginton/memory_engine/internal/engine"
	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/internal/memory_graph"
	"github.com/lewisedginton/memory_engine/internal/record_store"
	"github.com/lewisedginton/memory_engine/internal/rollover"
)

type utteranceRequest struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type utteranceResponse struct {
	ID int64 `json:"id"`
}

// recordUtterance handles POST /v1/utterances.
func (a *API) recordUtterance(w http.ResponseWriter, r *http.Request) {
	var req utteranceRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	id, err := a.engine.RecordUtterance(r.Context(), req.Speaker, req.Text)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, utteranceResponse{ID: id})
}

// lookup reads the q and k parameters shared by the recall endpoints.
func lookup(r *http.Request) (string, int, error) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		return "", 0, memerrors.Validation("query parameter", "q is required")
	}
	k, err := intParam(r, "k", defaultK, maxK)
	return q, k, err
}

type recallResponse struct {
	Text    string                       `json:"text"`
	Records []*record_store.MemoryRecord `json:"records"`
}

func (a *API) recentMemory(w http.ResponseWriter, r *http.Request) {
	q, k, err := lookup(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	text, recs := a.engine.RecentMemory(r.Context(), q, k)
	a.writeJSON(w, http.StatusOK, recallResponse{Text: text, Records: recs})
}

type causalResponse struct {
	Text      string                  `json:"text"`
	Exchanges []memory_graph.Exchange `json:"exchanges"`
}

func (a *API) causalMemory(w http.ResponseWriter, r *http.Request) {
	q, k, err := lookup(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	text, exchanges := a.engine.RecentCausalMemory(r.Context(), q, k)
	a.writeJSON(w, http.StatusOK, causalResponse{Text: text, Exchanges: exchanges})
}

type summaryResponse struct {
	Text      string                    `json:"text"`
	Summaries []*rollover.SummaryRecord `json:"summaries"`
}

func (a *API) summaryMemory(w http.ResponseWriter, r *http.Request) {
	q, k, err := lookup(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	text, recs := a.engine.SummaryMemory(r.Context(), q, k)
	a.writeJSON(w, http.StatusOK, summaryResponse{Text: text, Summaries: recs})
}

type turnResponse struct {
	ID      int64               `json:"id"`
	Context *engine.TurnContext `json:"context"`
}

func (a *API) decodeTurn(r *http.Request) (engine.TurnRequest, error) {
	var req engine.TurnRequest
	if err := a.decode(r, &req); err != nil {
		return req, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return req, memerrors.Validation("turn", "query is required")
	}
	return req, nil
}

// turn handles POST /v1/turns: the query is recorded as the other speaker's
// utterance and the context for the reply is returned.
func (a *API) turn(w http.ResponseWriter, r *http.Request) {
	req, err := a.decodeTurn(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	id, tc, err := a.engine.Turn(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, turnResponse{ID: id, Context: tc})
}

// buildContext handles POST /v1/context. Nothing is recorded.
func (a *API) buildContext(w http.ResponseWriter, r *http.Request) {
	req, err := a.decodeTurn(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	tc, err := a.engine.BuildTurnContext(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, tc)
}

// checkRollover handles POST /v1/rollover/check.
func (a *API) checkRollover(w http.ResponseWriter, r *http.Request) {
	decision, err := a.engine.Rollover().Check(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, decision)
}
