package knowledgebase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lewisedginton/memory_engine/internal/storage_manager"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

const (
	entriesPrefix    = "entries/"
	categoriesPrefix = "categories/"
)

// FileStoreConfig holds configuration for the file-backed store.
type FileStoreConfig struct {
	FileProvider storage_manager.FileProvider
	Logger       logger.Logger
}

// FileStore keeps one JSON file per entry and per category, cached in memory.
type FileStore struct {
	files storage_manager.FileProvider
	log   logger.Logger

	mu         sync.RWMutex
	entries    map[string]Entry
	categories map[string]Category
}

// NewFileStore loads every entry and category through the provider.
func NewFileStore(ctx context.Context, cfg FileStoreConfig) (*FileStore, error) {
	if cfg.FileProvider == nil {
		return nil, fmt.Errorf("file provider is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	s := &FileStore{
		files:      cfg.FileProvider,
		log:        cfg.Logger,
		entries:    make(map[string]Entry),
		categories: make(map[string]Category),
	}
	if err := s.load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}
	return s, nil
}

// loadJSON reads every .json file under prefix, skipping unreadable ones.
func loadJSON[T any](ctx context.Context, s *FileStore, prefix string, put func(T)) error {
	files, err := s.files.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	for _, file := range files {
		if !strings.HasSuffix(file, ".json") {
			continue
		}
		data, err := s.files.Read(ctx, file)
		if err != nil {
			s.log.Warn("Failed to read knowledge base file",
				logger.StringField("file", file),
				logger.ErrorField(err))
			continue
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			s.log.Warn("Failed to unmarshal knowledge base file",
				logger.StringField("file", file),
				logger.ErrorField(err))
			continue
		}
		put(v)
	}
	return nil
}

func (s *FileStore) load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := loadJSON(ctx, s, entriesPrefix, func(e Entry) { s.entries[e.ID] = e }); err != nil {
		return err
	}
	if err := loadJSON(ctx, s, categoriesPrefix, func(c Category) { s.categories[c.ID] = c }); err != nil {
		return err
	}

	s.log.Info("Loaded knowledge base",
		logger.IntField("entries", len(s.entries)),
		logger.IntField("categories", len(s.categories)))
	return nil
}

func entryFileName(id string) string    { return entriesPrefix + id + ".json" }
func categoryFileName(id string) string { return categoriesPrefix + id + ".json" }

// ListEntries returns all entries ordered by ID.
func (s *FileStore) ListEntries(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) GetEntry(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

func (s *FileStore) FindEntryByName(ctx context.Context, name string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if strings.EqualFold(e.DisplayName, name) {
			return &e, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (s *FileStore) SearchEntries(ctx context.Context, query string, limit int) ([]Entry, error) {
	all, err := s.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	return searchEntries(all, query, limit), nil
}

// PutEntry writes the file first and updates the cache only on success.
func (s *FileStore) PutEntry(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := s.files.Write(ctx, entryFileName(e.ID), data); err != nil {
		return fmt.Errorf("failed to write entry file: %w", err)
	}
	s.entries[e.ID] = e
	return nil
}

func (s *FileStore) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrEntryNotFound
	}
	if err := s.files.Delete(ctx, entryFileName(id)); err != nil {
		return fmt.Errorf("failed to delete entry file: %w", err)
	}
	delete(s.entries, id)
	return nil
}

func (s *FileStore) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) GetCategory(ctx context.Context, id string) (*Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	return &c, nil
}

func (s *FileStore) PutCategory(ctx context.Context, c Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal category: %w", err)
	}
	if err := s.files.Write(ctx, categoryFileName(c.ID), data); err != nil {
		return fmt.Errorf("failed to write category file: %w", err)
	}
	s.categories[c.ID] = c
	return nil
}
