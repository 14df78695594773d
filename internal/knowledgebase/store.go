package knowledgebase

import (
	"context"
	"sort"
	"strings"
)

// Store persists entries and categories. Lookups of missing items return
// ErrEntryNotFound or ErrCategoryNotFound.
type Store interface {
	ListEntries(ctx context.Context) ([]Entry, error)
	GetEntry(ctx context.Context, id string) (*Entry, error)
	// FindEntryByName matches display names case-insensitively
	FindEntryByName(ctx context.Context, name string) (*Entry, error)
	// SearchEntries matches query against name, text and keys, name matches first
	SearchEntries(ctx context.Context, query string, limit int) ([]Entry, error)
	PutEntry(ctx context.Context, e Entry) error
	DeleteEntry(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id string) (*Category, error)
	PutCategory(ctx context.Context, c Category) error
}

// searchEntries is the in-memory search used by stores without a query engine.
func searchEntries(entries []Entry, query string, limit int) []Entry {
	q := strings.ToLower(query)
	var byName, byOther []Entry
	for _, e := range entries {
		switch {
		case strings.Contains(strings.ToLower(e.DisplayName), q):
			byName = append(byName, e)
		case strings.Contains(strings.ToLower(e.TextContent), q),
			strings.Contains(strings.ToLower(strings.Join(e.Keys, " ")), q):
			byOther = append(byOther, e)
		}
	}
	sortByName(byName)
	sortByName(byOther)

	out := append(byName, byOther...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []Entry{}
	}
	return out
}

func sortByName(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].DisplayName) < strings.ToLower(entries[j].DisplayName)
	})
}
