// Package api exposes the memory engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lewisedginton/memory_engine/internal/engine"
	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/internal/vector_index"
	"github.com/lewisedginton/memory_engine/pkg/health"
	"github.com/lewisedginton/memory_engine/pkg/httpmiddleware"
	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/lewisedginton/memory_engine/pkg/metrics"
)

const (
	defaultK       = 3
	maxK           = 50
	defaultTimeout = 60 * time.Second
)

// Config holds the collaborators of the API.
type Config struct {
	Engine        *engine.Engine
	KnowledgeBase *knowledgebase.Service
	Vectors       *vector_index.Store
	Events        *Hub

	Logger  logger.Logger
	Metrics *metrics.Metrics
	Health  *health.HealthChecker

	LivenessPath  string
	ReadinessPath string

	// MCP serves the memory tools at MCPPath when set
	MCP     http.Handler
	MCPPath string

	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	Timeout            time.Duration
}

// API serves the engine operations as JSON.
type API struct {
	engine  *engine.Engine
	kb      *knowledgebase.Service
	vectors *vector_index.Store
	events  *Hub
	log     logger.Logger
}

// NewRouter builds the HTTP handler. The events websocket sits outside the
// timeout and compression middleware that wrap the JSON routes.
func NewRouter(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if cfg.KnowledgeBase == nil {
		return nil, errors.New("knowledge base service cannot be nil")
	}
	if cfg.Vectors == nil {
		return nil, errors.New("vector store cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	a := &API{
		engine:  cfg.Engine,
		kb:      cfg.KnowledgeBase,
		vectors: cfg.Vectors,
		events:  cfg.Events,
		log:     cfg.Logger,
	}

	mw := httpmiddleware.DefaultConfig()
	mw.Logger = cfg.Logger
	mw.EnableLogging = true
	mw.EnableTimeout = false
	mw.EnableCompression = false
	mw.Recovery = a.recovery
	if cfg.MaxBodyBytes > 0 {
		mw.MaxBodyBytes = cfg.MaxBodyBytes
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		cors := mw.CORS.WithOrigins(cfg.CORSAllowedOrigins)
		mw.CORS = &cors
	}

	r := chi.NewRouter()
	httpmiddleware.ApplyToRouter(r, mw)

	if cfg.Health != nil {
		live, ready := cfg.LivenessPath, cfg.ReadinessPath
		if live == "" {
			live = "/health/live"
		}
		if ready == "" {
			ready = "/health/ready"
		}
		cfg.Health.Mount(r, live, ready)
	}

	if a.events != nil {
		r.Get("/v1/events", a.events.ServeHTTP)
	}

	if cfg.MCP != nil {
		path := cfg.MCPPath
		if path == "" {
			path = "/mcp"
		}
		r.Handle(path, cfg.MCP)
	}

	r.Group(func(r chi.Router) {
		if cfg.Metrics != nil {
			r.Use(cfg.Metrics.HTTPMiddleware())
		}
		r.Use(middleware.Timeout(cfg.Timeout))
		r.Use(middleware.Compress(5))

		r.Route("/v1", func(r chi.Router) {
			r.Post("/utterances", a.recordUtterance)
			r.Get("/memories/recent", a.recentMemory)
			r.Get("/memories/causal", a.causalMemory)
			r.Get("/summaries", a.summaryMemory)
			r.Post("/turns", a.turn)
			r.Post("/context", a.buildContext)
			r.Post("/rollover/check", a.checkRollover)

			r.Route("/kb", func(r chi.Router) {
				r.Post("/context", a.kbContext)
				r.Get("/constant", a.kbConstant)
				r.Get("/search", a.kbSearch)
				r.Post("/entries", a.kbCreate)
				r.Get("/entries/{ref}", a.kbGet)
				r.Patch("/entries/{ref}", a.kbEdit)
				r.Delete("/entries/{ref}", a.kbDelete)
				r.Get("/categories", a.kbCategories)
				r.Post("/categories", a.kbCreateCategory)
				r.Get("/categories/{id}/entries", a.kbCategoryEntries)
			})

			r.Route("/vectors/{namespace}", func(r chi.Router) {
				r.Post("/", a.vectorUpsert)
				r.Get("/search", a.vectorSearch)
				r.Delete("/{id}", a.vectorDelete)
			})
		})
	})

	return r, nil
}

type errorResponse struct {
	Error         string `json:"error"`
	Kind          string `json:"kind,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error("Failed to encode response", logger.ErrorField(err))
	}
}

// statusOf maps engine errors onto HTTP status codes.
func statusOf(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, memerrors.ErrValidation), errors.Is(err, knowledgebase.ErrNoChanges):
		return http.StatusBadRequest
	case errors.Is(err, knowledgebase.ErrEntryNotFound), errors.Is(err, knowledgebase.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, knowledgebase.ErrDuplicateTitle):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	resp := errorResponse{
		Error:         err.Error(),
		CorrelationID: logger.GetCorrelationIDFromContext(r.Context()),
	}
	if status < http.StatusInternalServerError {
		resp.Kind = string(memerrors.KindOf(err))
	} else {
		a.log.Error("Request failed",
			logger.StringField("http_path", r.URL.Path),
			logger.CorrelationIDField(resp.CorrelationID),
			logger.ErrorField(err))
		resp.Error = http.StatusText(status)
	}
	a.writeJSON(w, status, resp)
}

func (a *API) decode(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return memerrors.Validation("decode request", "invalid JSON body: %v", err)
	}
	return nil
}

// intParam reads a non-negative integer query parameter, def when absent.
func intParam(r *http.Request, name string, def, limit int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, memerrors.Validation("query parameter", "%s must be a non-negative integer", name)
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
