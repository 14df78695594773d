package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BackendType represents the type of storage backend.
type BackendType string

const (
	BackendLocal BackendType = "local"
	BackendS3    BackendType = "s3"
	BackendGit   BackendType = "git"
)

// Config holds the configuration for the StorageManager.
type Config struct {
	Backend     BackendType
	LocalConfig *LocalConfig
	S3Config    *S3Config
	GitConfig   *GitProviderOptions
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	BaseDir string
}

// S3Config holds configuration for S3 storage.
type S3Config struct {
	Bucket string
	Prefix string
	Client *s3.Client
}

// StorageManager hands out namespace-scoped providers over one backend.
//
// Namespaces used by the engine:
//   - "index" for vector index files
//   - "records" for memory record JSON files
//   - "transcripts" for live transcripts, archives and summaries
//   - "knowledgebase" for the file-backed knowledge base
type StorageManager struct {
	backend  BackendType
	provider FileProvider
}

// New creates a new StorageManager with the given configuration.
func New(config Config) (*StorageManager, error) {
	var provider FileProvider

	switch config.Backend {
	case BackendLocal:
		if config.LocalConfig == nil || config.LocalConfig.BaseDir == "" {
			return nil, fmt.Errorf("base directory is required for local backend")
		}
		provider = NewLocalFileProvider(config.LocalConfig.BaseDir)

	case BackendS3:
		if config.S3Config == nil || config.S3Config.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for s3 backend")
		}
		if config.S3Config.Client == nil {
			return nil, fmt.Errorf("s3 client is required for s3 backend")
		}
		provider = NewS3FileProvider(config.S3Config.Bucket, config.S3Config.Prefix, NewAWSS3Client(config.S3Config.Client))

	case BackendGit:
		if config.GitConfig == nil {
			return nil, fmt.Errorf("git config is required for git backend")
		}
		gp, err := NewGitFileProvider(*config.GitConfig)
		if err != nil {
			return nil, err
		}
		provider = gp

	default:
		return nil, fmt.Errorf("unsupported backend type: %q", config.Backend)
	}

	return &StorageManager{backend: config.Backend, provider: provider}, nil
}

// NewWithProvider wraps a custom FileProvider, mostly for tests.
func NewWithProvider(provider FileProvider) *StorageManager {
	return &StorageManager{provider: provider}
}

// GetProvider returns a prefix-scoped FileProvider for the given namespace.
func (m *StorageManager) GetProvider(namespace string) FileProvider {
	if namespace == "" {
		return m.provider
	}
	return NewPrefixedFileProvider(m.provider, namespace)
}

// Backend returns the configured backend type.
func (m *StorageManager) Backend() BackendType {
	return m.backend
}

const roundTripPath = ".roundtrip"

// Verify performs a write/read/delete round trip; used by readiness checks.
func (m *StorageManager) Verify(ctx context.Context) error {
	want := []byte("ok")
	if err := m.provider.Write(ctx, roundTripPath, want); err != nil {
		return fmt.Errorf("storage write check: %w", err)
	}
	got, err := m.provider.Read(ctx, roundTripPath)
	if err != nil {
		return fmt.Errorf("storage read check: %w", err)
	}
	if string(got) != string(want) {
		return fmt.Errorf("storage check read back %q", got)
	}
	return m.provider.Delete(ctx, roundTripPath)
}
