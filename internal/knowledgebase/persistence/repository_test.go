package persistence

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/memory_engine/internal/knowledgebase"
	"github.com/lewisedginton/memory_engine/internal/knowledgebase/persistence/sqlc"
	"github.com/lewisedginton/memory_engine/pkg/logger"
)

func TestConvertEntry(t *testing.T) {
	got := convertEntry(sqlc.KbEntry{
		ID:             "kbe-1",
		DisplayName:    "Dragon",
		TextContent:    "Fire.",
		CategoryID:     pgtype.Text{String: "kbc-1", Valid: true},
		Enabled:        true,
		SearchRange:    1000,
		TokenBudget:    250,
		BudgetPriority: 400,
		LastUpdatedAt:  42,
	})
	assert.Equal(t, knowledgebase.Entry{
		ID:             "kbe-1",
		DisplayName:    "Dragon",
		TextContent:    "Fire.",
		Keys:           []string{},
		CategoryID:     "kbc-1",
		Enabled:        true,
		SearchRange:    1000,
		TokenBudget:    250,
		BudgetPriority: 400,
		LastUpdatedAt:  42,
	}, got)

	assert.Equal(t, "", convertEntry(sqlc.KbEntry{}).CategoryID)
}

func TestMigrationFiles(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "0001_knowledge_base.up.sql")
	assert.Contains(t, names, "0001_knowledge_base.down.sql")
}

// Runs against a real database when DATABASE_URL is set.
func TestRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	log := logger.NewNopLogger()

	pool, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, NewMigrationManager(pool, log).RunMigrations())
	_, err = pool.Exec(ctx, "TRUNCATE kb_entries, kb_categories")
	require.NoError(t, err)

	repo := NewRepository(pool, log)
	svc := knowledgebase.NewService(repo, log)

	cat, err := svc.CreateCategory(ctx, "Lore", 1)
	require.NoError(t, err)
	e, err := svc.Create(ctx, knowledgebase.CreateRequest{
		Title: "Dragon", Content: "Breathes fire.", Tags: []string{"Dragon"}, CategoryID: cat.ID,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, knowledgebase.CreateRequest{Title: "DRAGON", Content: "x"})
	assert.ErrorIs(t, err, knowledgebase.ErrDuplicateTitle)

	got, err := repo.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, *e, *got)

	found, err := svc.Search(ctx, "fire", 5)
	require.NoError(t, err)
	require.Len(t, found, 1)

	listed, err := svc.CategoryEntries(ctx, cat.ID, false)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, svc.Delete(ctx, e.ID))
	_, err = repo.GetEntry(ctx, e.ID)
	assert.ErrorIs(t, err, knowledgebase.ErrEntryNotFound)
}
