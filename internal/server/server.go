// Package server wires the memory engine components together and runs the
// HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"google.golang.org/adk/memory"

	"github.com/lewisedginton/memory_engine/internal/api"
	appconfig "github.com/lewisedginton/memory_engine/internal/config"
	"github.com/lewisedginton/memory_engine/internal/embedding"
	"github.com/lewisedginton/memory_engine/internal/engine"
	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
	"github.com/lewisedginton/memory_engine/internal/mcptools"
	"github.com/lewisedginton/memory_engine/internal/memory_service"
	"github.com/lewisedginton/memory_engine/internal/record_store"
	"github.com/lewisedginton/memory_engine/internal/rollover"
	"github.com/lewisedginton/memory_engine/internal/storage_manager"
	"github.com/lewisedginton/memory_engine/internal/vector_index"
	"github.com/lewisedginton/memory_engine/pkg/health"
	"github.com/lewisedginton/memory_engine/pkg/health/checkers"
	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/lewisedginton/memory_engine/pkg/metrics"
	"github.com/lewisedginton/memory_engine/pkg/utils"
)

const (
	shutdownGrace  = 30 * time.Second
	summaryDrain   = 20 * time.Second
	httpDrain      = 5 * time.Second
	forceExitAfter = 35 * time.Second
)

// Server encapsulates the engine components and their lifecycle
type Server struct {
	cfg *appconfig.AppConfig
	log logger.Logger

	metrics        *metrics.Metrics
	health         *health.HealthChecker
	storageManager *storage_manager.StorageManager
	records        *record_store.Store
	vectors        *vector_index.Store
	rollover       *rollover.Manager
	engine         *engine.Engine
	kb             *knowledgebase.Service
	events         *api.Hub
	memory         *memory_service.Service
	mcp            http.Handler

	httpServer *http.Server
	closers    []func() error
	cancel     context.CancelFunc
}

// New creates a Server with every component initialized. Nothing listens
// until Run.
//
//nolint:revive // cognitive-complexity: Server initialization requires sequential component setup
func New(ctx context.Context, cfg *appconfig.AppConfig, log logger.Logger) (*Server, error) {
	s := &Server{
		cfg: cfg,
		log: log,
	}

	s.metrics = metrics.NewMetrics(cfg.Metrics.EnableHTTPMetrics, true, true, log)
	s.health = health.New(
		health.WithLogger(log),
		health.WithTimeout(cfg.Health.Timeout),
		health.WithFailureThreshold(cfg.Health.FailureThreshold),
	)

	var err error
	s.storageManager, err = s.createStorageManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}
	s.health.AddReadinessCheck(checkers.NewVerifyChecker(s.storageManager, "storage"))

	provider, err := s.createEmbeddingProvider(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	embedder := embedding.NewGuard(provider,
		embedding.WithTimeout(cfg.Embedding.Timeout),
		embedding.WithDimension(cfg.Embedding.Dimension),
		embedding.WithLogger(log),
		embedding.WithMetrics(s.metrics.Engine),
	)

	index, err := s.createVectorIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	s.vectors = vector_index.NewStore(vector_index.Config{
		Index:    index,
		Embedder: embedder,
		Logger:   log,
		Metrics:  s.metrics.Engine,
	})

	s.records, err = record_store.New(record_store.Config{
		FileProvider: s.storageManager.GetProvider("records"),
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record store: %w", err)
	}

	summ, err := s.createSummarizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer: %w", err)
	}
	loc, err := cfg.Rollover.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load rollover timezone: %w", err)
	}

	s.events = api.NewHub(log, cfg.HTTP.CORSAllowedOrigins)
	s.rollover, err = rollover.New(rollover.Config{
		Files:                s.storageManager.GetProvider("transcripts"),
		Vectors:              s.vectors,
		SummaryNamespace:     cfg.Rollover.SummaryNamespace,
		Summarizer:           summ,
		IdleThreshold:        cfg.Rollover.IdleThreshold,
		EarlierTodayMaxChars: cfg.Rollover.EarlierTodayMaxChars,
		SummaryTimeout:       cfg.Rollover.SummaryTimeout,
		Location:             loc,
		OnEvent:              s.events.Publish,
		Logger:               log,
		Metrics:              s.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rollover manager: %w", err)
	}

	kbStore, err := s.createKnowledgeBaseStore(ctx)
	if err != nil {
		_ = s.closeAll()
		return nil, fmt.Errorf("failed to create knowledge base store: %w", err)
	}
	s.kb = knowledgebase.NewService(kbStore, log)

	s.engine, err = engine.New(engine.Config{
		Records:  s.records,
		Vectors:  s.vectors,
		Rollover: s.rollover,
		KnowledgeBase: knowledgebase.NewRetriever(kbStore, knowledgebase.RetrieverConfig{
			MaxEntries:  cfg.KnowledgeBase.MaxEntries,
			BudgetFloor: cfg.KnowledgeBase.BudgetFloor,
			FloorTokens: cfg.KnowledgeBase.FloorTokens,
			GlobalCap:   cfg.KnowledgeBase.GlobalCap,
			GlobalCutTo: cfg.KnowledgeBase.GlobalCutTo,
		}, log, s.metrics.Engine),
		Namespace:     cfg.Agent.Namespace,
		AgentName:     cfg.Agent.AgentName,
		OtherName:     cfg.Agent.OtherName,
		UpsertTimeout: cfg.Agent.UpsertTimeout,
		Logger:        log,
		Metrics:       s.metrics,
	})
	if err != nil {
		_ = s.closeAll()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	s.health.AddReadinessCheck(s.engine.StateCheck(cfg.Health.MaxRunningSummaries))

	s.memory, err = memory_service.New(memory_service.Config{
		Engine:       s.engine,
		FileProvider: s.storageManager.GetProvider("adk"),
		AgentName:    cfg.Agent.AgentName,
		OtherName:    cfg.Agent.OtherName,
		Logger:       log,
	})
	if err != nil {
		_ = s.closeAll()
		return nil, fmt.Errorf("failed to create memory service: %w", err)
	}

	if cfg.MCP.Enabled {
		srv, err := mcptools.NewServer(s.engine, mcptools.Options{Name: cfg.ServiceName, Version: cfg.Version, Logger: log})
		if err != nil {
			_ = s.closeAll()
			return nil, fmt.Errorf("failed to create mcp server: %w", err)
		}
		s.mcp = mcptools.Handler(srv)
	}

	return s, nil
}

// Engine returns the memory engine.
func (s *Server) Engine() *engine.Engine { return s.engine }

// KnowledgeBase returns the knowledge base CRUD service.
func (s *Server) KnowledgeBase() *knowledgebase.Service { return s.kb }

// Vectors returns the vector store.
func (s *Server) Vectors() *vector_index.Store { return s.vectors }

// MemoryService returns the engine as an ADK memory service, for an ADK
// runner embedding the engine.
func (s *Server) MemoryService() memory.Service { return s.memory }

// Health returns the health checker.
func (s *Server) Health() *health.HealthChecker { return s.health }

// Handler builds the HTTP handler for the API.
func (s *Server) Handler() (http.Handler, error) {
	return api.NewRouter(api.Config{
		Engine:             s.engine,
		KnowledgeBase:      s.kb,
		Vectors:            s.vectors,
		Events:             s.events,
		Logger:             s.log,
		Metrics:            s.metrics,
		Health:             s.health,
		MCP:                s.mcp,
		MCPPath:            s.cfg.MCP.Path,
		LivenessPath:       s.cfg.Health.LivenessPath,
		ReadinessPath:      s.cfg.Health.ReadinessPath,
		CORSAllowedOrigins: s.cfg.HTTP.CORSAllowedOrigins,
		MaxBodyBytes:       s.cfg.HTTP.MaxBodyBytes,
		Timeout:            s.cfg.HTTP.WriteTimeout(),
	})
}

// Run serves the API and blocks until a shutdown signal or a fatal listener
// error.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	defer cancel()

	s.setupGracefulShutdown()

	handler, err := s.Handler()
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.HTTP.Port),
		Handler:           handler,
		ReadTimeout:       s.cfg.HTTP.ReadTimeout(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.HTTP.WriteTimeout() + 5*time.Second,
		IdleTimeout:       s.cfg.HTTP.IdleTimeout(),
	}

	if s.cfg.Metrics.ExposeMetrics {
		s.metrics.Listen(s.cfg.Metrics.Port)
	}

	serveErr := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", logger.IntField("port", s.cfg.HTTP.Port))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// summary failures and metrics listener errors are reported, not fatal
	background := utils.MergeErrorChans(s.metrics.Errors(), s.rollover.Errors())
	go func() {
		for err := range background {
			s.log.Warn("Background failure", logger.ErrorField(err))
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			s.log.Error("HTTP server failed", logger.ErrorField(err))
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil && runErr == nil { //nolint:contextcheck // New context needed for shutdown
		runErr = err
	}
	return runErr
}

// Shutdown stops the listeners, waits for running summaries and releases the
// stores. It is also the cleanup path for one-shot CLI commands.
func (s *Server) Shutdown(ctx context.Context) error {
	var result error

	if s.httpServer != nil {
		s.log.Info("Shutting down HTTP server")
		httpCtx, cancel := context.WithTimeout(ctx, httpDrain)
		if err := s.httpServer.Shutdown(httpCtx); err != nil {
			s.log.Error("HTTP server shutdown error", logger.ErrorField(err))
			result = multierror.Append(result, err)
		}
		cancel()
	}
	s.events.Close()

	summaryCtx, cancel := context.WithTimeout(ctx, summaryDrain)
	if err := s.engine.Shutdown(summaryCtx); err != nil {
		s.log.Warn("Engine shutdown incomplete", logger.ErrorField(err))
		result = multierror.Append(result, err)
	}
	cancel()

	if err := s.metrics.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.closeAll(); err != nil {
		result = multierror.Append(result, err)
	}
	s.log.Info("Server stopped")
	return result
}

func (s *Server) closeAll() error {
	var result error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("Failed to close resource", logger.ErrorField(err))
			result = multierror.Append(result, err)
		}
	}
	s.closers = nil
	return result
}

// setupGracefulShutdown sets up signal handling for graceful shutdown
func (s *Server) setupGracefulShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		s.log.Info("Received shutdown signal", logger.StringField("signal", sig.String()))

		// Start graceful shutdown
		if s.cancel != nil {
			s.cancel()
		}

		// Give processes time to shutdown gracefully, then force exit
		time.AfterFunc(forceExitAfter, func() {
			s.log.Warn("Force exiting due to timeout")
			os.Exit(1)
		})
	}()
}
