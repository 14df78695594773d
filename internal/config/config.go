// Package config holds the memory engine service configuration.
package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"

	pkgconfig "github.com/lewisedginton/memory_engine/pkg/config"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	// Service configuration
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"memory-engine"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	pkgconfig.CommonConfig `yaml:",inline"`

	HTTP     pkgconfig.HTTPServerConfig `yaml:"http"`
	Metrics  pkgconfig.MetricsConfig    `yaml:"metrics"`
	Database pkgconfig.DatabaseConfig   `yaml:"database"`
	Health   HealthConfig               `yaml:"health"`

	Storage       StorageConfig       `yaml:"storage"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	VectorIndex   VectorIndexConfig   `yaml:"vector_index"`
	Rollover      RolloverConfig      `yaml:"rollover"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	Agent         AgentConfig         `yaml:"agent"`
	MCP           MCPConfig           `yaml:"mcp"`

	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini"`
}

// Load reads path (optional) and the environment into an AppConfig.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := pkgconfig.GetConfig(cfg, path, false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *AppConfig) Validate() error {
	var result error

	for _, v := range []pkgconfig.Validator{
		c.CommonConfig, c.HTTP, c.Metrics,
		c.Storage, c.Embedding, c.VectorIndex, c.Rollover, c.KnowledgeBase, c.MCP,
	} {
		if err := v.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if c.KnowledgeBase.Store == KBStorePostgres {
		if err := c.Database.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.Agent.OtherName == "" {
		result = multierror.Append(result, fmt.Errorf("agent other_name is required"))
	}
	if c.Agent.OtherName == c.Agent.AgentName {
		result = multierror.Append(result, fmt.Errorf("agent_name and other_name must differ, both are %q", c.Agent.OtherName))
	}

	// Provider credentials
	if c.Embedding.Provider == EmbeddingOpenAI && c.OpenAI.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("OPENAI_API_KEY is required for the openai embedding provider"))
	}
	if c.Embedding.Provider == EmbeddingGemini && c.Gemini.APIKey == "" && !c.Gemini.UseVertex() {
		result = multierror.Append(result, fmt.Errorf("GEMINI_API_KEY or a Vertex AI project and region is required for the gemini embedding provider"))
	}
	if c.Rollover.Summarizer == SummarizerAnthropic && c.Anthropic.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic summarizer"))
	}
	if c.Rollover.Summarizer == SummarizerOpenAI && c.OpenAI.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("OPENAI_API_KEY is required for the openai summarizer"))
	}

	return result
}

// GetLogLevel returns the parsed logger level
func (c *AppConfig) GetLogLevel() logger.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return logger.DebugLevel
	case "warn", "warning":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

// NewLogger builds the service logger from the logging settings
func (c *AppConfig) NewLogger() logger.Logger {
	return c.NewLoggerTo(nil)
}

// NewLoggerTo is NewLogger writing to w; nil means stdout.
func (c *AppConfig) NewLoggerTo(w io.Writer) logger.Logger {
	return logger.NewLogger(logger.Config{
		Level:   c.GetLogLevel(),
		Format:  c.LogFormat,
		Service: c.ServiceName,
		Output:  w,
	})
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("environment", c.Environment),
		logger.IntField("http_port", c.HTTP.Port),
		logger.StringField("log_level", c.LogLevel),
		logger.StringField("log_format", c.LogFormat),
		logger.BoolField("metrics_exposed", c.Metrics.ExposeMetrics),
		logger.StringField("storage_backend", c.Storage.Backend),
		logger.StringField("embedding_provider", c.Embedding.Provider),
		logger.IntField("embedding_dimension", c.Embedding.Dimension),
		logger.StringField("vector_index_backend", c.VectorIndex.Backend),
		logger.DurationField("idle_threshold", c.Rollover.IdleThreshold),
		logger.StringField("summarizer", c.Rollover.Summarizer),
		logger.StringField("timezone", c.Rollover.Timezone),
		logger.StringField("kb_store", c.KnowledgeBase.Store),
		logger.StringField("agent_name", c.Agent.AgentName),
		logger.StringField("other_name", c.Agent.OtherName),
		logger.BoolField("anthropic_configured", c.Anthropic.APIKey != ""),
		logger.BoolField("openai_configured", c.OpenAI.APIKey != ""),
		logger.BoolField("gemini_configured", c.Gemini.APIKey != ""),
	)
}
