package config

import (
	"fmt"
	"time"
)

// StorageConfig holds storage/persistence configuration
type StorageConfig struct {
	Backend   string `env:"STORAGE_BACKEND" yaml:"backend" default:"local"`      // "local", "s3", or "git"
	LocalDir  string `env:"STORAGE_LOCAL_DIR" yaml:"local_dir" default:"./data"` // Base directory for local storage
	S3Bucket  string `env:"STORAGE_S3_BUCKET" yaml:"s3_bucket"`                  // S3 bucket name
	S3Prefix  string `env:"STORAGE_S3_PREFIX" yaml:"s3_prefix"`                  // S3 object key prefix (optional)
	S3Region  string `env:"STORAGE_S3_REGION" yaml:"s3_region"`                  // AWS region
	S3Profile string `env:"STORAGE_S3_PROFILE" yaml:"s3_profile"`                // AWS profile name (optional)

	// Git backend configuration
	GitPath        string `env:"STORAGE_GIT_PATH" yaml:"git_path"`                 // Path to git repository
	GitAuthorName  string `env:"STORAGE_GIT_AUTHOR_NAME" yaml:"git_author_name"`   // Commit author name
	GitAuthorEmail string `env:"STORAGE_GIT_AUTHOR_EMAIL" yaml:"git_author_email"` // Commit author email
	GitInit        bool   `env:"STORAGE_GIT_INIT" yaml:"git_init" default:"true"`  // Create the repository if missing

	// CheckTimeout bounds the readiness round trip
	CheckTimeout time.Duration `env:"STORAGE_CHECK_TIMEOUT" yaml:"check_timeout" default:"5s"`
}

// Validate checks that the selected backend has what it needs
func (s StorageConfig) Validate() error {
	switch s.Backend {
	case "local":
		if s.LocalDir == "" {
			return fmt.Errorf("storage local_dir is required for the local backend")
		}
	case "s3":
		if s.S3Bucket == "" {
			return fmt.Errorf("storage s3_bucket is required for the s3 backend")
		}
	case "git":
		if s.GitPath == "" {
			return fmt.Errorf("storage git_path is required for the git backend")
		}
	default:
		return fmt.Errorf("storage backend must be one of [local, s3, git], got %q", s.Backend)
	}
	return nil
}
