package config

import "time"

// HealthConfig holds health check configuration
type HealthConfig struct {
	LivenessPath     string        `env:"HEALTH_LIVENESS_PATH" yaml:"liveness_path" default:"/health/live"`
	ReadinessPath    string        `env:"HEALTH_READINESS_PATH" yaml:"readiness_path" default:"/health/ready"`
	Timeout          time.Duration `env:"HEALTH_TIMEOUT" yaml:"timeout" default:"10s"`
	FailureThreshold int           `env:"HEALTH_FAILURE_THRESHOLD" yaml:"failure_threshold" default:"3"`
	// MaxRunningSummaries fails readiness once this many summaries are
	// unfinished; 0 disables the limit
	MaxRunningSummaries int `env:"HEALTH_MAX_RUNNING_SUMMARIES" yaml:"max_running_summaries" default:"8"`
}
