package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lewisedginton/memory_engine/internal/memerrors"
	"github.com/lewisedginton/memory_engine/pkg/logger"
	"github.com/lewisedginton/memory_engine/pkg/prefixed_uuid"
)

// DefaultSearchLimit bounds Search when the caller passes no limit.
const DefaultSearchLimit = 20

// Service is the CRUD surface over a Store.
type Service struct {
	store Store
	log   logger.Logger
	now   func() time.Time
}

// NewService creates a Service.
func NewService(store Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Service{store: store, log: log, now: time.Now}
}

// CreateRequest describes a new entry.
type CreateRequest struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Tags            []string `json:"tags"`
	CategoryID      string   `json:"category_id,omitempty"`
	ForceActivation bool     `json:"force_activation,omitempty"`
	Hidden          bool     `json:"hidden,omitempty"`
}

// EditRequest lists the changes to apply. Empty fields are left alone; a nil
// NewTags keeps the current keys.
type EditRequest struct {
	NewTitle      string   `json:"new_title,omitempty"`
	NewContent    string   `json:"new_content,omitempty"`
	AppendContent string   `json:"append_content,omitempty"`
	NewTags       []string `json:"new_tags,omitempty"`
}

func (r EditRequest) empty() bool {
	return r.NewTitle == "" && r.NewContent == "" && r.AppendContent == "" && r.NewTags == nil
}

func (s *Service) titleTaken(ctx context.Context, title, exceptID string) (bool, error) {
	e, err := s.store.FindEntryByName(ctx, title)
	if errors.Is(err, ErrEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.ID != exceptID, nil
}

// Create adds an entry with the standard defaults. Titles are unique ignoring case.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Entry, error) {
	const op = "knowledgebase.Create"
	if strings.TrimSpace(req.Title) == "" {
		return nil, memerrors.Validation(op, "title is required")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, memerrors.Validation(op, "content is required")
	}

	taken, err := s.titleTaken(ctx, req.Title, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if taken {
		return nil, fmt.Errorf("%s: %q: %w", op, req.Title, ErrDuplicateTitle)
	}

	e := Entry{
		ID:              prefixed_uuid.New(EntryIDPrefix).String(),
		DisplayName:     req.Title,
		TextContent:     req.Content,
		Keys:            lowerKeys(req.Tags),
		CategoryID:      req.CategoryID,
		Enabled:         true,
		ForceActivation: req.ForceActivation,
		Hidden:          req.Hidden,
		SearchRange:     DefaultSearchRange,
		TokenBudget:     DefaultTokenBudget,
		BudgetPriority:  DefaultBudgetPriority,
		LastUpdatedAt:   s.now().UnixMilli(),
	}
	if err := e.Validate(); err != nil {
		return nil, memerrors.E(memerrors.KindValidation, op, err)
	}
	if err := s.store.PutEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("Knowledge base entry created",
		logger.StringField("entry_id", e.ID),
		logger.StringField("title", e.DisplayName))
	return &e, nil
}

// resolve finds an entry by ID when query looks like one, otherwise by name.
func (s *Service) resolve(ctx context.Context, query string) (*Entry, error) {
	if prefixed_uuid.Is(query, EntryIDPrefix) {
		return s.store.GetEntry(ctx, query)
	}
	return s.store.FindEntryByName(ctx, query)
}

// Get returns the entry with the given ID or title.
func (s *Service) Get(ctx context.Context, query string) (*Entry, error) {
	return s.resolve(ctx, query)
}

// Edit applies req to the entry named by query (ID or title).
func (s *Service) Edit(ctx context.Context, query string, req EditRequest) (*Entry, error) {
	const op = "knowledgebase.Edit"
	if req.empty() {
		return nil, fmt.Errorf("%s: %w", op, ErrNoChanges)
	}

	e, err := s.resolve(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %q: %w", op, query, err)
	}

	if req.NewTitle != "" && req.NewTitle != e.DisplayName {
		taken, err := s.titleTaken(ctx, req.NewTitle, e.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if taken {
			return nil, fmt.Errorf("%s: %q: %w", op, req.NewTitle, ErrDuplicateTitle)
		}
		e.DisplayName = req.NewTitle
	}
	if req.NewContent != "" {
		e.TextContent = req.NewContent
	}
	if req.AppendContent != "" {
		e.TextContent += "\n\n" + req.AppendContent
	}
	if req.NewTags != nil {
		e.Keys = lowerKeys(req.NewTags)
	}
	e.LastUpdatedAt = s.now().UnixMilli()

	if err := e.Validate(); err != nil {
		return nil, memerrors.E(memerrors.KindValidation, op, err)
	}
	if err := s.store.PutEntry(ctx, *e); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("Knowledge base entry edited", logger.StringField("entry_id", e.ID))
	return e, nil
}

// Delete removes the entry named by query (ID or title).
func (s *Service) Delete(ctx context.Context, query string) error {
	e, err := s.resolve(ctx, query)
	if err != nil {
		return fmt.Errorf("knowledgebase.Delete: %q: %w", query, err)
	}
	if err := s.store.DeleteEntry(ctx, e.ID); err != nil {
		return fmt.Errorf("knowledgebase.Delete: %w", err)
	}
	s.log.Info("Knowledge base entry deleted", logger.StringField("entry_id", e.ID))
	return nil
}

// Search returns up to limit entries matching query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	if strings.TrimSpace(query) == "" {
		return nil, memerrors.Validation("knowledgebase.Search", "query is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return s.store.SearchEntries(ctx, query, limit)
}

// CreateCategory adds an enabled category.
func (s *Service) CreateCategory(ctx context.Context, name string, order int) (*Category, error) {
	if strings.TrimSpace(name) == "" {
		return nil, memerrors.Validation("knowledgebase.CreateCategory", "name is required")
	}
	c := Category{
		ID:         prefixed_uuid.New(CategoryIDPrefix).String(),
		Name:       name,
		Enabled:    true,
		OrderIndex: order,
	}
	if err := s.store.PutCategory(ctx, c); err != nil {
		return nil, fmt.Errorf("knowledgebase.CreateCategory: %w", err)
	}
	return &c, nil
}

// Categories lists the enabled categories by order index.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	all, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	out := []Category{}
	for _, c := range all {
		if c.Enabled {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

// CategoryEntries lists the entries of an enabled category sorted by name.
// With hidePrivate, entries keyed PrivateKey are left out.
func (s *Service) CategoryEntries(ctx context.Context, categoryID string, hidePrivate bool) ([]LabeledEntry, error) {
	c, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if !c.Enabled {
		return nil, fmt.Errorf("category %s is disabled: %w", categoryID, ErrCategoryNotFound)
	}

	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	var inCat []Entry
	for _, e := range entries {
		if e.CategoryID == categoryID {
			inCat = append(inCat, e)
		}
	}
	sortByName(inCat)

	out := []LabeledEntry{}
	for _, e := range inCat {
		label := "Public"
		if e.IsPrivate() {
			if hidePrivate {
				continue
			}
			label = "Private"
		}
		out = append(out, LabeledEntry{Name: e.DisplayName, Text: e.TextContent, Label: label})
	}
	return out, nil
}
