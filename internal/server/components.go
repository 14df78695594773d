package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	openaioption "github.com/openai/openai-go/option"
	"google.golang.org/genai"

	appconfig "github.com/lewisedginton/memory_engine/internal/config"
	"github.com/lewisedginton/memory_engine/internal/embedding"
	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
	"github.com/lewisedginton/memory_engine/internal/knowledgebase/persistence"
	"github.com/lewisedginton/memory_engine/internal/storage_manager"
	"github.com/lewisedginton/memory_engine/internal/summarizer"
	"github.com/lewisedginton/memory_engine/internal/vector_index"
	"github.com/lewisedginton/memory_engine/pkg/health/checkers"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// createStorageManager creates a storage manager based on configuration
func (s *Server) createStorageManager(ctx context.Context) (*storage_manager.StorageManager, error) {
	cfg := &s.cfg.Storage

	switch cfg.Backend {
	case "local":
		s.log.Info("Using local file-based storage", logger.StringField("directory", cfg.LocalDir))

		// Ensure directory exists (0750 needed for directory traversal)
		if err := os.MkdirAll(cfg.LocalDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}

		return storage_manager.New(storage_manager.Config{
			Backend: storage_manager.BackendLocal,
			LocalConfig: &storage_manager.LocalConfig{
				BaseDir: cfg.LocalDir,
			},
		})

	case "s3":
		s.log.Info("Using S3-based storage",
			logger.StringField("bucket", cfg.S3Bucket),
			logger.StringField("prefix", cfg.S3Prefix),
			logger.StringField("region", cfg.S3Region))

		configOptions := []func(*awsconfig.LoadOptions) error{}
		if cfg.S3Profile != "" {
			configOptions = append(configOptions, awsconfig.WithSharedConfigProfile(cfg.S3Profile))
		}
		if cfg.S3Region != "" {
			configOptions = append(configOptions, awsconfig.WithRegion(cfg.S3Region))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		return storage_manager.New(storage_manager.Config{
			Backend: storage_manager.BackendS3,
			S3Config: &storage_manager.S3Config{
				Bucket: cfg.S3Bucket,
				Prefix: cfg.S3Prefix,
				Client: s3.NewFromConfig(awsCfg),
			},
		})

	case "git":
		s.log.Info("Using git-backed storage", logger.StringField("path", cfg.GitPath))

		return storage_manager.New(storage_manager.Config{
			Backend: storage_manager.BackendGit,
			GitConfig: &storage_manager.GitProviderOptions{
				Path:          cfg.GitPath,
				AuthorName:    cfg.GitAuthorName,
				AuthorEmail:   cfg.GitAuthorEmail,
				InitIfMissing: cfg.GitInit,
			},
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 'local', 's3' or 'git')", cfg.Backend)
	}
}

// createEmbeddingProvider creates the raw provider and, for remote ones, the
// readiness check that watches it.
func (s *Server) createEmbeddingProvider(ctx context.Context) (embedding.Provider, error) {
	cfg := &s.cfg.Embedding

	switch strings.ToLower(cfg.Provider) {
	case appconfig.EmbeddingHTTP:
		s.log.Info("Using HTTP embedding service", logger.StringField("endpoint", cfg.Endpoint))
		opts := []embedding.HTTPOption{embedding.WithHTTPClient(&http.Client{Timeout: cfg.Timeout})}
		if cfg.AuthToken != "" {
			opts = append(opts, embedding.WithHeader("Authorization", "Bearer "+cfg.AuthToken))
		}
		provider := embedding.NewHTTPProvider(cfg.Endpoint, opts...)
		s.health.AddReadinessCheck(checkers.NewEmbeddingChecker(provider, cfg.Dimension, "embedding"))
		return provider, nil

	case appconfig.EmbeddingOpenAI:
		s.log.Info("Using OpenAI embeddings", logger.StringField("model", s.cfg.OpenAI.EmbeddingModel))
		return embedding.NewOpenAIProvider(s.cfg.OpenAI.APIKey, s.cfg.OpenAI.EmbeddingModel, s.cfg.OpenAI.APIBaseURL, cfg.Dimension)

	case appconfig.EmbeddingGemini:
		s.log.Info("Using Gemini embeddings", logger.StringField("model", s.cfg.Gemini.EmbeddingModel))

		clientConfig := &genai.ClientConfig{
			APIKey: s.cfg.Gemini.APIKey,
		}

		// If Vertex AI credentials are provided, use Vertex AI backend
		if s.cfg.Gemini.UseVertex() {
			clientConfig.Backend = genai.BackendVertexAI
			clientConfig.Project = s.cfg.Gemini.Project
			clientConfig.Location = s.cfg.Gemini.Region
			s.log.Info("Using Vertex AI backend",
				logger.StringField("project", s.cfg.Gemini.Project),
				logger.StringField("region", s.cfg.Gemini.Region))
		}

		return embedding.NewGeminiProvider(ctx, s.cfg.Gemini.EmbeddingModel, cfg.Dimension, clientConfig)

	case appconfig.EmbeddingDeterministic:
		s.log.Warn("Using deterministic embeddings, similarity search is not semantic")
		return embedding.NewDeterministicProvider(cfg.Dimension), nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// createVectorIndex creates the index behind the vector store
func (s *Server) createVectorIndex() (vector_index.Index, error) {
	cfg := &s.cfg.VectorIndex

	switch cfg.Backend {
	case "flat":
		return vector_index.NewFlatIndex(s.storageManager.GetProvider("index"), s.cfg.Embedding.Dimension), nil

	case "chromem":
		s.log.Info("Using chromem vector index",
			logger.StringField("path", cfg.ChromemPath),
			logger.BoolField("compress", cfg.ChromemCompress))
		return vector_index.NewChromemIndex(cfg.ChromemPath, cfg.ChromemCompress, s.cfg.Embedding.Dimension)

	default:
		return nil, fmt.Errorf("unsupported vector index backend: %s", cfg.Backend)
	}
}

// createSummarizer returns nil when summaries are disabled
func (s *Server) createSummarizer() (summarizer.Summarizer, error) {
	cfg := &s.cfg.Rollover
	opts := summarizer.Options{
		AgentName: s.cfg.Agent.AgentName,
		MaxTokens: int64(cfg.SummaryMaxTokens),
	}

	switch strings.ToLower(cfg.Summarizer) {
	case appconfig.SummarizerAnthropic:
		opts.Model = s.cfg.Anthropic.Model
		s.log.Info("Initializing Claude summarizer", logger.StringField("model", opts.Model))
		return summarizer.NewAnthropic(s.cfg.Anthropic.APIKey, opts,
			anthropicoption.WithBaseURL(s.cfg.Anthropic.APIBaseURL),
			anthropicoption.WithMaxRetries(s.cfg.Anthropic.MaxRetries),
			anthropicoption.WithRequestTimeout(s.cfg.Anthropic.Timeout))

	case appconfig.SummarizerOpenAI:
		opts.Model = s.cfg.OpenAI.SummaryModel
		s.log.Info("Initializing OpenAI summarizer", logger.StringField("model", opts.Model))
		return summarizer.NewOpenAI(s.cfg.OpenAI.APIKey, opts,
			openaioption.WithBaseURL(s.cfg.OpenAI.APIBaseURL),
			openaioption.WithMaxRetries(s.cfg.OpenAI.MaxRetries),
			openaioption.WithRequestTimeout(s.cfg.OpenAI.Timeout))

	case appconfig.SummarizerExtractive:
		return summarizer.Extractive{MaxTokens: cfg.SummaryMaxTokens}, nil

	case appconfig.SummarizerNone:
		s.log.Info("Conversation summaries disabled")
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported summarizer: %s", cfg.Summarizer)
	}
}

// createKnowledgeBaseStore opens the configured knowledge base store and
// registers its readiness check and cleanup.
func (s *Server) createKnowledgeBaseStore(ctx context.Context) (knowledgebase.Store, error) {
	cfg := &s.cfg.KnowledgeBase

	switch cfg.Store {
	case appconfig.KBStoreFile:
		return knowledgebase.NewFileStore(ctx, knowledgebase.FileStoreConfig{
			FileProvider: s.storageManager.GetProvider("knowledgebase"),
			Logger:       s.log,
		})

	case appconfig.KBStoreSQLite:
		s.log.Info("Using SQLite knowledge base", logger.StringField("path", cfg.SQLitePath))
		store, err := knowledgebase.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		s.health.AddReadinessCheck(checkers.NewPingChecker(store, "knowledgebase"))
		s.closers = append(s.closers, store.Close)
		return store, nil

	case appconfig.KBStorePostgres:
		s.log.Info("Using Postgres knowledge base",
			logger.StringField("host", s.cfg.Database.Host),
			logger.StringField("database", s.cfg.Database.Database))

		connectCtx, cancel := context.WithTimeout(ctx, s.cfg.Database.ConnectTimeout)
		defer cancel()
		pool, err := persistence.Connect(connectCtx, s.cfg.Database.GetConnectionString())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, func() error {
			pool.Close()
			return nil
		})

		if cfg.RunMigrations {
			mm := persistence.NewMigrationManager(pool, s.log)
			if err := mm.RunMigrations(); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			if err := mm.Close(); err != nil {
				s.log.Warn("Failed to close migration connection", logger.ErrorField(err))
			}
		}

		repo := persistence.NewRepository(pool, s.log)
		s.health.AddReadinessCheck(checkers.NewPingChecker(repo, "knowledgebase"))
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported knowledge base store: %s", cfg.Store)
	}
}
