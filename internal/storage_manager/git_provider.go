package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitFileProvider implements FileProvider backed by a git working tree.
// Every write and delete is committed, which gives the memory store a full
// history of index rewrites and record edits.
type GitFileProvider struct {
	repoPath    string
	repo        *git.Repository
	authorName  string
	authorEmail string
	mu          sync.Mutex
}

// GitProviderOptions holds options for creating a GitFileProvider.
type GitProviderOptions struct {
	Path          string
	AuthorName    string
	AuthorEmail   string
	InitIfMissing bool
}

// NewGitFileProvider opens (or initialises) the repository at opts.Path.
func NewGitFileProvider(opts GitProviderOptions) (*GitFileProvider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("repository path is required")
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "memory-engine"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "memory-engine@localhost"
	}

	repo, err := git.PlainOpen(opts.Path)
	switch {
	case err == nil:
	case errors.Is(err, git.ErrRepositoryNotExists) && opts.InitIfMissing:
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create repository directory: %w", err)
		}
		repo, err = git.PlainInit(opts.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repository: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	return &GitFileProvider{
		repoPath:    opts.Path,
		repo:        repo,
		authorName:  opts.AuthorName,
		authorEmail: opts.AuthorEmail,
	}, nil
}

func (p *GitFileProvider) full(path string) string {
	return filepath.Join(p.repoPath, filepath.FromSlash(path))
}

// Read reads a file from the working tree.
func (p *GitFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return readLocal(p.full(path))
}

// Write replaces the file in the working tree and commits it.
func (p *GitFileProvider) Write(ctx context.Context, path string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := writeLocalAtomic(p.full(path), data); err != nil {
		return err
	}

	wt, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := wt.Add(path); err != nil {
		return fmt.Errorf("failed to stage %s: %w", path, err)
	}
	return p.commit(wt, "write "+path)
}

// Exists checks if a file exists in the working tree.
func (p *GitFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	return existsLocal(p.full(path))
}

// Delete removes a file and commits the deletion.
func (p *GitFileProvider) Delete(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ok, err := existsLocal(p.full(path))
	if err != nil || !ok {
		return err
	}

	wt, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := wt.Remove(path); err != nil {
		// untracked files are removed from disk only
		if rmErr := os.Remove(p.full(path)); rmErr != nil && !os.IsNotExist(rmErr) {
			return fmt.Errorf("failed to remove %s: %w", path, rmErr)
		}
		return nil
	}
	return p.commit(wt, "delete "+path)
}

// List returns files under prefix, skipping the .git directory.
func (p *GitFileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	return listLocal(p.repoPath, prefix, map[string]bool{".git": true})
}

func (p *GitFileProvider) commit(wt *git.Worktree, what string) error {
	_, err := wt.Commit("[memory] "+what, &git.CommitOptions{
		Author: &object.Signature{
			Name:  p.authorName,
			Email: p.authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil && !errors.Is(err, git.ErrEmptyCommit) {
		return fmt.Errorf("failed to commit %s: %w", what, err)
	}
	return nil
}
