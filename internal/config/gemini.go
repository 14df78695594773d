package config

// GeminiConfig holds Google Gemini-specific configuration
type GeminiConfig struct {
	APIKey         string `env:"GEMINI_API_KEY" yaml:"-"`
	EmbeddingModel string `env:"GEMINI_EMBEDDING_MODEL" yaml:"embedding_model" default:"gemini-embedding-001"`
	Project        string `env:"GOOGLE_CLOUD_PROJECT" yaml:"project"` // Optional: for Vertex AI
	Region         string `env:"GOOGLE_CLOUD_REGION" yaml:"region"`   // Optional: for Vertex AI
}

// UseVertex reports whether Gemini calls go through Vertex AI
func (g GeminiConfig) UseVertex() bool {
	return g.Project != "" && g.Region != ""
}
