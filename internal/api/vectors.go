package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/internal/vector_index"
)

type vectorRequest struct {
	Text string `json:"text"`
	// ID is kept as a string so malformed IDs are rejected by the store
	ID string `json:"id"`
}

type vectorResult struct {
	OK bool `json:"ok"`
}

type vectorSearchResponse struct {
	Hits []vector_index.Hit `json:"hits"`
	Size int                `json:"size"`
}

func namespace(r *http.Request) (string, error) {
	ns := chi.URLParam(r, "namespace")
	return ns, vector_index.ValidateNamespace(ns)
}

// vectorUpsert handles POST /v1/vectors/{namespace}. A failed upsert is not
// an HTTP error; the body reports ok=false.
func (a *API) vectorUpsert(w http.ResponseWriter, r *http.Request) {
	ns, err := namespace(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req vectorRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if _, err := vector_index.ParseID(req.ID); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok := a.vectors.Upsert(r.Context(), ns, req.Text, req.ID)
	a.writeJSON(w, http.StatusOK, vectorResult{OK: ok})
}

func (a *API) vectorSearch(w http.ResponseWriter, r *http.Request) {
	ns, err := namespace(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		a.writeError(w, r, memerrors.Validation("query parameter", "q is required"))
		return
	}
	k, err := intParam(r, "k", defaultK, maxK)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	hits := a.vectors.Nearest(r.Context(), ns, q, k)
	a.writeJSON(w, http.StatusOK, vectorSearchResponse{Hits: hits, Size: a.vectors.Size(r.Context(), ns)})
}

func (a *API) vectorDelete(w http.ResponseWriter, r *http.Request) {
	ns, err := namespace(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	id, err := vector_index.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if !a.vectors.Delete(r.Context(), ns, id) {
		a.writeJSON(w, http.StatusNotFound, errorResponse{Error: "vector not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
