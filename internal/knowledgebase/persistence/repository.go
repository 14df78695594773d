// Package persistence stores the knowledge base in Postgres.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
	"github.com/lewisedginton/memory_engine/internal/knowledgebase/persistence/sqlc"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

// Repository implements knowledgebase.Store on a pgx pool.
type Repository struct {
	db      *pgxpool.Pool
	queries *sqlc.Queries
	logger  logger.Logger
}

var _ knowledgebase.Store = (*Repository)(nil)

// NewRepository creates a new knowledge base repository
func NewRepository(db *pgxpool.Pool, logger logger.Logger) *Repository {
	return &Repository{
		db:      db,
		queries: sqlc.New(db),
		logger:  logger,
	}
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// WithTx creates a new repository instance with a transaction
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{
		db:      r.db,
		queries: r.queries.WithTx(tx),
		logger:  r.logger,
	}
}

// Ping checks the pool; used by readiness checks.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func convertEntry(row sqlc.KbEntry) knowledgebase.Entry {
	keys := row.Keys
	if keys == nil {
		keys = []string{}
	}
	return knowledgebase.Entry{
		ID:              row.ID,
		DisplayName:     row.DisplayName,
		TextContent:     row.TextContent,
		Keys:            keys,
		CategoryID:      row.CategoryID.String,
		Enabled:         row.Enabled,
		ForceActivation: row.ForceActivation,
		KeyRelative:     row.KeyRelative,
		Hidden:          row.Hidden,
		SearchRange:     int(row.SearchRange),
		TokenBudget:     int(row.TokenBudget),
		BudgetPriority:  int(row.BudgetPriority),
		LastUpdatedAt:   row.LastUpdatedAt,
	}
}

func convertEntries(rows []sqlc.KbEntry) []knowledgebase.Entry {
	out := make([]knowledgebase.Entry, len(rows))
	for i, row := range rows {
		out[i] = convertEntry(row)
	}
	return out
}

func convertCategory(row sqlc.KbCategory) knowledgebase.Category {
	return knowledgebase.Category{
		ID:         row.ID,
		Name:       row.Name,
		Enabled:    row.Enabled,
		OrderIndex: int(row.OrderIndex),
	}
}

func (r *Repository) ListEntries(ctx context.Context) ([]knowledgebase.Entry, error) {
	rows, err := r.queries.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return convertEntries(rows), nil
}

func (r *Repository) GetEntry(ctx context.Context, id string) (*knowledgebase.Entry, error) {
	row, err := r.queries.GetEntry(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, knowledgebase.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	e := convertEntry(row)
	return &e, nil
}

func (r *Repository) FindEntryByName(ctx context.Context, name string) (*knowledgebase.Entry, error) {
	row, err := r.queries.FindEntryByName(ctx, name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, knowledgebase.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entry %q: %w", name, err)
	}
	e := convertEntry(row)
	return &e, nil
}

func (r *Repository) SearchEntries(ctx context.Context, query string, limit int) ([]knowledgebase.Entry, error) {
	rows, err := r.queries.SearchEntries(ctx, sqlc.SearchEntriesParams{
		Pattern: "%" + query + "%",
		Limit:   int32(limit), //nolint:gosec // bounded by the API
	})
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	return convertEntries(rows), nil
}

func (r *Repository) PutEntry(ctx context.Context, e knowledgebase.Entry) error {
	err := r.queries.UpsertEntry(ctx, sqlc.UpsertEntryParams{
		ID:              e.ID,
		DisplayName:     e.DisplayName,
		TextContent:     e.TextContent,
		Keys:            e.Keys,
		CategoryID:      pgtype.Text{String: e.CategoryID, Valid: e.CategoryID != ""},
		Enabled:         e.Enabled,
		ForceActivation: e.ForceActivation,
		KeyRelative:     e.KeyRelative,
		Hidden:          e.Hidden,
		SearchRange:     int32(e.SearchRange),    //nolint:gosec
		TokenBudget:     int32(e.TokenBudget),    //nolint:gosec
		BudgetPriority:  int32(e.BudgetPriority), //nolint:gosec
		LastUpdatedAt:   e.LastUpdatedAt,
	})
	if err != nil {
		r.logger.Error("failed to save knowledge base entry", logger.ErrorField(err), logger.StringField("entry_id", e.ID))
		return fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return nil
}

func (r *Repository) DeleteEntry(ctx context.Context, id string) error {
	n, err := r.queries.DeleteEntry(ctx, id)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	if n == 0 {
		return knowledgebase.ErrEntryNotFound
	}
	return nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]knowledgebase.Category, error) {
	rows, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]knowledgebase.Category, len(rows))
	for i, row := range rows {
		out[i] = convertCategory(row)
	}
	return out, nil
}

func (r *Repository) GetCategory(ctx context.Context, id string) (*knowledgebase.Category, error) {
	row, err := r.queries.GetCategory(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, knowledgebase.ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	c := convertCategory(row)
	return &c, nil
}

func (r *Repository) PutCategory(ctx context.Context, c knowledgebase.Category) error {
	err := r.queries.UpsertCategory(ctx, sqlc.UpsertCategoryParams{
		ID:         c.ID,
		Name:       c.Name,
		Enabled:    c.Enabled,
		OrderIndex: int32(c.OrderIndex), //nolint:gosec
	})
	if err != nil {
		return fmt.Errorf("save category %s: %w", c.ID, err)
	}
	return nil
}
