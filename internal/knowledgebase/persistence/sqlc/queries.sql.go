package sqlc

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const deleteEntry = `-- name: DeleteEntry :execrows
DELETE FROM kb_entries WHERE id = $1
`

func (q *Queries) DeleteEntry(ctx context.Context, id string) (int64, error) {
	result, err := q.db.Exec(ctx, deleteEntry, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const findEntryByName = `-- name: FindEntryByName :one
SELECT id, display_name, text_content, keys, category_id, enabled, force_activation, key_relative, hidden, search_range, token_budget, budget_priority, last_updated_at
FROM kb_entries WHERE LOWER(display_name) = LOWER($1)
`

func (q *Queries) FindEntryByName(ctx context.Context, lower string) (KbEntry, error) {
	row := q.db.QueryRow(ctx, findEntryByName, lower)
	var i KbEntry
	err := row.Scan(
		&i.ID,
		&i.DisplayName,
		&i.TextContent,
		&i.Keys,
		&i.CategoryID,
		&i.Enabled,
		&i.ForceActivation,
		&i.KeyRelative,
		&i.Hidden,
		&i.SearchRange,
		&i.TokenBudget,
		&i.BudgetPriority,
		&i.LastUpdatedAt,
	)
	return i, err
}

const getCategory = `-- name: GetCategory :one
SELECT id, name, enabled, order_index FROM kb_categories WHERE id = $1
`

func (q *Queries) GetCategory(ctx context.Context, id string) (KbCategory, error) {
	row := q.db.QueryRow(ctx, getCategory, id)
	var i KbCategory
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Enabled,
		&i.OrderIndex,
	)
	return i, err
}

const getEntry = `-- name: GetEntry :one
SELECT id, display_name, text_content, keys, category_id, enabled, force_activation, key_relative, hidden, search_range, token_budget, budget_priority, last_updated_at
FROM kb_entries WHERE id = $1
`

func (q *Queries) GetEntry(ctx context.Context, id string) (KbEntry, error) {
	row := q.db.QueryRow(ctx, getEntry, id)
	var i KbEntry
	err := row.Scan(
		&i.ID,
		&i.DisplayName,
		&i.TextContent,
		&i.Keys,
		&i.CategoryID,
		&i.Enabled,
		&i.ForceActivation,
		&i.KeyRelative,
		&i.Hidden,
		&i.SearchRange,
		&i.TokenBudget,
		&i.BudgetPriority,
		&i.LastUpdatedAt,
	)
	return i, err
}

const listCategories = `-- name: ListCategories :many
SELECT id, name, enabled, order_index FROM kb_categories ORDER BY id
`

func (q *Queries) ListCategories(ctx context.Context) ([]KbCategory, error) {
	rows, err := q.db.Query(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []KbCategory{}
	for rows.Next() {
		var i KbCategory
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Enabled,
			&i.OrderIndex,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listEntries = `-- name: ListEntries :many
SELECT id, display_name, text_content, keys, category_id, enabled, force_activation, key_relative, hidden, search_range, token_budget, budget_priority, last_updated_at
FROM kb_entries ORDER BY id
`

func (q *Queries) ListEntries(ctx context.Context) ([]KbEntry, error) {
	rows, err := q.db.Query(ctx, listEntries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

const searchEntries = `-- name: SearchEntries :many
SELECT id, display_name, text_content, keys, category_id, enabled, force_activation, key_relative, hidden, search_range, token_budget, budget_priority, last_updated_at
FROM kb_entries
WHERE display_name ILIKE $1 OR text_content ILIKE $1 OR array_to_string(keys, ' ') ILIKE $1
ORDER BY CASE WHEN display_name ILIKE $1 THEN 0 ELSE 1 END, LOWER(display_name)
LIMIT $2
`

type SearchEntriesParams struct {
	Pattern string `json:"pattern"`
	Limit   int32  `json:"limit"`
}

func (q *Queries) SearchEntries(ctx context.Context, arg SearchEntriesParams) ([]KbEntry, error) {
	rows, err := q.db.Query(ctx, searchEntries, arg.Pattern, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

const upsertCategory = `-- name: UpsertCategory :exec
INSERT INTO kb_categories (id, name, enabled, order_index)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    enabled = EXCLUDED.enabled,
    order_index = EXCLUDED.order_index
`

type UpsertCategoryParams struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	OrderIndex int32  `json:"order_index"`
}

func (q *Queries) UpsertCategory(ctx context.Context, arg UpsertCategoryParams) error {
	_, err := q.db.Exec(ctx, upsertCategory,
		arg.ID,
		arg.Name,
		arg.Enabled,
		arg.OrderIndex,
	)
	return err
}

const upsertEntry = `-- name: UpsertEntry :exec
INSERT INTO kb_entries (id, display_name, text_content, keys, category_id, enabled, force_activation, key_relative, hidden, search_range, token_budget, budget_priority, last_updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    text_content = EXCLUDED.text_content,
    keys = EXCLUDED.keys,
    category_id = EXCLUDED.category_id,
    enabled = EXCLUDED.enabled,
    force_activation = EXCLUDED.force_activation,
    key_relative = EXCLUDED.key_relative,
    hidden = EXCLUDED.hidden,
    search_range = EXCLUDED.search_range,
    token_budget = EXCLUDED.token_budget,
    budget_priority = EXCLUDED.budget_priority,
    last_updated_at = EXCLUDED.last_updated_at
`

type UpsertEntryParams struct {
	ID              string      `json:"id"`
	DisplayName     string      `json:"display_name"`
	TextContent     string      `json:"text_content"`
	Keys            []string    `json:"keys"`
	CategoryID      pgtype.Text `json:"category_id"`
	Enabled         bool        `json:"enabled"`
	ForceActivation bool        `json:"force_activation"`
	KeyRelative     bool        `json:"key_relative"`
	Hidden          bool        `json:"hidden"`
	SearchRange     int32       `json:"search_range"`
	TokenBudget     int32       `json:"token_budget"`
	BudgetPriority  int32       `json:"budget_priority"`
	LastUpdatedAt   int64       `json:"last_updated_at"`
}

func (q *Queries) UpsertEntry(ctx context.Context, arg UpsertEntryParams) error {
	_, err := q.db.Exec(ctx, upsertEntry,
		arg.ID,
		arg.DisplayName,
		arg.TextContent,
		arg.Keys,
		arg.CategoryID,
		arg.Enabled,
		arg.ForceActivation,
		arg.KeyRelative,
		arg.Hidden,
		arg.SearchRange,
		arg.TokenBudget,
		arg.BudgetPriority,
		arg.LastUpdatedAt,
	)
	return err
}

type entryRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEntries(rows entryRows) ([]KbEntry, error) {
	items := []KbEntry{}
	for rows.Next() {
		var i KbEntry
		if err := rows.Scan(
			&i.ID,
			&i.DisplayName,
			&i.TextContent,
			&i.Keys,
			&i.CategoryID,
			&i.Enabled,
			&i.ForceActivation,
			&i.KeyRelative,
			&i.Hidden,
			&i.SearchRange,
			&i.TokenBudget,
			&i.BudgetPriority,
			&i.LastUpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
