package config

import "time"

// OpenAIConfig holds OpenAI-specific configuration, shared by the embedding
// provider and the summarizer
type OpenAIConfig struct {
	APIKey         string        `env:"OPENAI_API_KEY" yaml:"-"`
	APIBaseURL     string        `env:"OPENAI_API_URL" yaml:"api_base_url" default:"https://api.openai.com/v1"`
	SummaryModel   string        `env:"OPENAI_MODEL" yaml:"model" default:"gpt-4o-mini"`
	EmbeddingModel string        `env:"OPENAI_EMBEDDING_MODEL" yaml:"embedding_model" default:"text-embedding-3-small"`
	MaxRetries     int           `env:"OPENAI_MAX_RETRIES" yaml:"max_retries" default:"3"`
	Timeout        time.Duration `env:"OPENAI_TIMEOUT" yaml:"timeout" default:"30s"`
}
