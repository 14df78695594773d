package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
	"github.com/lewisedginton/memory_engine/internal/memerrors"
)

type kbContextRequest struct {
	Window        string `json:"window"`
	ExcludeHidden bool   `json:"exclude_hidden"`
}

func (a *API) kbContext(w http.ResponseWriter, r *http.Request) {
	var req kbContextRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	_, res := a.engine.KnowledgeBaseContext(r.Context(), req.Window,
		knowledgebase.RetrieveOptions{ExcludeHidden: req.ExcludeHidden})
	a.writeJSON(w, http.StatusOK, res)
}

type constantResponse struct {
	Text    string                `json:"text"`
	Entries []knowledgebase.Entry `json:"entries"`
}

func (a *API) kbConstant(w http.ResponseWriter, r *http.Request) {
	text, entries := a.engine.ConstantContext(r.Context(),
		knowledgebase.RetrieveOptions{ExcludeHidden: boolParam(r, "exclude_hidden")})
	a.writeJSON(w, http.StatusOK, constantResponse{Text: text, Entries: entries})
}

func (a *API) kbSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", knowledgebase.DefaultSearchLimit, 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	entries, err := a.kb.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, entries)
}

func (a *API) kbCreate(w http.ResponseWriter, r *http.Request) {
	var req knowledgebase.CreateRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	e, err := a.kb.Create(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, e)
}

// ref is an entry ID or its title.
func ref(r *http.Request) string {
	return chi.URLParam(r, "ref")
}

func (a *API) kbGet(w http.ResponseWriter, r *http.Request) {
	e, err := a.kb.Get(r.Context(), ref(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, e)
}

func (a *API) kbEdit(w http.ResponseWriter, r *http.Request) {
	var req knowledgebase.EditRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	e, err := a.kb.Edit(r.Context(), ref(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, e)
}

func (a *API) kbDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.kb.Delete(r.Context(), ref(r)); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) kbCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.kb.Categories(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, cats)
}

type categoryRequest struct {
	Name       string `json:"name"`
	OrderIndex *int   `json:"order_index"`
}

func (a *API) kbCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := a.decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		a.writeError(w, r, memerrors.Validation("create category", "name is required"))
		return
	}
	order := 0
	if req.OrderIndex != nil {
		order = *req.OrderIndex
	}
	c, err := a.kb.CreateCategory(r.Context(), req.Name, order)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, c)
}

func (a *API) kbCategoryEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := a.kb.CategoryEntries(r.Context(), chi.URLParam(r, "id"), boolParam(r, "hide_private"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, entries)
}
