package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Embedding providers
const (
	EmbeddingHTTP          = "http"
	EmbeddingOpenAI        = "openai"
	EmbeddingGemini        = "gemini"
	EmbeddingDeterministic = "deterministic"
)

// EmbeddingConfig selects and configures the embedding provider
type EmbeddingConfig struct {
	Provider string `env:"EMBEDDING_PROVIDER" yaml:"provider" default:"http"`
	// Endpoint is the embedding service URL for the http provider
	Endpoint  string        `env:"EMBEDDING_ENDPOINT" yaml:"endpoint" default:"http://localhost:8000/embed"`
	AuthToken string        `env:"EMBEDDING_AUTH_TOKEN" yaml:"-"`
	Timeout   time.Duration `env:"EMBEDDING_TIMEOUT" yaml:"timeout" default:"10s"`
	Dimension int           `env:"EMBEDDING_DIMENSION" yaml:"dimension" default:"768"`
}

// Validate checks the provider name and bounds
func (e EmbeddingConfig) Validate() error {
	var result error
	switch e.Provider {
	case EmbeddingHTTP:
		if e.Endpoint == "" {
			result = multierror.Append(result, fmt.Errorf("embedding endpoint is required for the http provider"))
		}
	case EmbeddingOpenAI, EmbeddingGemini, EmbeddingDeterministic:
	default:
		result = multierror.Append(result, fmt.Errorf("embedding provider must be one of [http, openai, gemini, deterministic], got %q", e.Provider))
	}
	if e.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("embedding timeout must be greater than 0"))
	}
	if e.Dimension <= 0 {
		result = multierror.Append(result, fmt.Errorf("embedding dimension must be greater than 0"))
	}
	return result
}

// VectorIndexConfig selects the vector index backend
type VectorIndexConfig struct {
	// Backend is "flat" (files through the storage backend) or "chromem"
	Backend string `env:"VECTOR_INDEX_BACKEND" yaml:"backend" default:"flat"`
	// ChromemPath is where chromem persists; empty keeps it in memory
	ChromemPath     string `env:"VECTOR_INDEX_CHROMEM_PATH" yaml:"chromem_path" default:"./data/chromem"`
	ChromemCompress bool   `env:"VECTOR_INDEX_CHROMEM_COMPRESS" yaml:"chromem_compress"`
}

// Validate checks the backend name
func (v VectorIndexConfig) Validate() error {
	if v.Backend != "flat" && v.Backend != "chromem" {
		return fmt.Errorf("vector index backend must be either 'flat' or 'chromem', got %q", v.Backend)
	}
	return nil
}

// Summarizers
const (
	SummarizerAnthropic  = "anthropic"
	SummarizerOpenAI     = "openai"
	SummarizerExtractive = "extractive"
	SummarizerNone       = "none"
)

// RolloverConfig holds the conversation rollover thresholds
type RolloverConfig struct {
	IdleThreshold        time.Duration `env:"ROLLOVER_IDLE_THRESHOLD" yaml:"idle_threshold" default:"30m"`
	EarlierTodayMaxChars int           `env:"ROLLOVER_EARLIER_TODAY_MAX_CHARS" yaml:"earlier_today_max_chars" default:"2000"`
	SummaryNamespace     string        `env:"ROLLOVER_SUMMARY_NAMESPACE" yaml:"summary_namespace" default:"summaries"`
	SummaryTimeout       time.Duration `env:"ROLLOVER_SUMMARY_TIMEOUT" yaml:"summary_timeout" default:"2m"`
	Summarizer           string        `env:"ROLLOVER_SUMMARIZER" yaml:"summarizer" default:"extractive"`
	SummaryMaxTokens     int           `env:"ROLLOVER_SUMMARY_MAX_TOKENS" yaml:"summary_max_tokens" default:"400"`
	// Timezone decides where the day boundary falls, e.g. "Europe/London"
	Timezone string `env:"ROLLOVER_TIMEZONE" yaml:"timezone" default:"Local"`
}

// Location resolves Timezone
func (r RolloverConfig) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

// Validate checks the rollover thresholds
func (r RolloverConfig) Validate() error {
	var result error
	if r.IdleThreshold <= 0 {
		result = multierror.Append(result, fmt.Errorf("rollover idle_threshold must be greater than 0"))
	}
	if r.EarlierTodayMaxChars <= 0 {
		result = multierror.Append(result, fmt.Errorf("rollover earlier_today_max_chars must be greater than 0"))
	}
	switch r.Summarizer {
	case SummarizerAnthropic, SummarizerOpenAI, SummarizerExtractive, SummarizerNone:
	default:
		result = multierror.Append(result, fmt.Errorf("rollover summarizer must be one of [anthropic, openai, extractive, none], got %q", r.Summarizer))
	}
	if _, err := r.Location(); err != nil {
		result = multierror.Append(result, fmt.Errorf("rollover timezone: %w", err))
	}
	return result
}

// Knowledge base stores
const (
	KBStoreFile     = "file"
	KBStoreSQLite   = "sqlite"
	KBStorePostgres = "postgres"
)

// KnowledgeBaseConfig holds knowledge base storage and retrieval limits
type KnowledgeBaseConfig struct {
	Store         string `env:"KB_STORE" yaml:"store" default:"file"`
	SQLitePath    string `env:"KB_SQLITE_PATH" yaml:"sqlite_path" default:"./data/knowledgebase.db"`
	RunMigrations bool   `env:"KB_RUN_MIGRATIONS" yaml:"run_migrations" default:"true"`

	MaxEntries  int `env:"KB_MAX_ENTRIES" yaml:"max_entries" default:"6"`
	BudgetFloor int `env:"KB_BUDGET_FLOOR" yaml:"budget_floor" default:"10"`
	FloorTokens int `env:"KB_FLOOR_TOKENS" yaml:"floor_tokens" default:"50"`
	GlobalCap   int `env:"KB_GLOBAL_CAP" yaml:"global_cap" default:"1400"`
	GlobalCutTo int `env:"KB_GLOBAL_CUT_TO" yaml:"global_cut_to" default:"1000"`
}

// Validate checks the store name and limits
func (k KnowledgeBaseConfig) Validate() error {
	var result error
	switch k.Store {
	case KBStoreFile, KBStorePostgres:
	case KBStoreSQLite:
		if k.SQLitePath == "" {
			result = multierror.Append(result, fmt.Errorf("kb sqlite_path is required for the sqlite store"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("kb store must be one of [file, sqlite, postgres], got %q", k.Store))
	}
	if k.MaxEntries <= 0 {
		result = multierror.Append(result, fmt.Errorf("kb max_entries must be greater than 0"))
	}
	if k.GlobalCutTo > k.GlobalCap {
		result = multierror.Append(result, fmt.Errorf("kb global_cut_to (%d) cannot exceed global_cap (%d)", k.GlobalCutTo, k.GlobalCap))
	}
	return result
}

// AgentConfig names the two speakers of the conversation
type AgentConfig struct {
	AgentName string `env:"AGENT_NAME" yaml:"agent_name" default:"Assistant"`
	OtherName string `env:"OTHER_NAME" yaml:"other_name" default:"User"`
	// Namespace is the conversation namespace and record thread
	Namespace     string        `env:"CONVERSATION_NAMESPACE" yaml:"namespace" default:"conversation"`
	UpsertTimeout time.Duration `env:"UPSERT_TIMEOUT" yaml:"upsert_timeout" default:"15s"`
}
