package sqlc

import (
	"context"
)

type Querier interface {
	DeleteEntry(ctx context.Context, id string) (int64, error)
	FindEntryByName(ctx context.Context, lower string) (KbEntry, error)
	GetCategory(ctx context.Context, id string) (KbCategory, error)
	GetEntry(ctx context.Context, id string) (KbEntry, error)
	ListCategories(ctx context.Context) ([]KbCategory, error)
	ListEntries(ctx context.Context) ([]KbEntry, error)
	SearchEntries(ctx context.Context, arg SearchEntriesParams) ([]KbEntry, error)
	UpsertCategory(ctx context.Context, arg UpsertCategoryParams) error
	UpsertEntry(ctx context.Context, arg UpsertEntryParams) error
}

var _ Querier = (*Queries)(nil)
