package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type entryRow struct {
	ID              string   `gorm:"primaryKey"`
	DisplayName     string   `gorm:"not null;index"`
	TextContent     string   `gorm:"not null"`
	Keys            []string `gorm:"serializer:json"`
	CategoryID      string   `gorm:"index"`
	Enabled         bool     `gorm:"not null"`
	ForceActivation bool     `gorm:"not null"`
	KeyRelative     bool     `gorm:"not null"`
	Hidden          bool     `gorm:"not null"`
	SearchRange     int
	TokenBudget     int
	BudgetPriority  int
	LastUpdatedAt   int64
}

func (entryRow) TableName() string { return "kb_entries" }

func toEntryRow(e Entry) entryRow {
	return entryRow(e)
}

func (r entryRow) entry() Entry {
	e := Entry(r)
	if e.Keys == nil {
		e.Keys = []string{}
	}
	return e
}

type categoryRow struct {
	ID         string `gorm:"primaryKey"`
	Name       string `gorm:"not null"`
	Enabled    bool   `gorm:"not null"`
	OrderIndex int
}

func (categoryRow) TableName() string { return "kb_categories" }

// SQLiteStore keeps the knowledge base in an embedded SQLite database.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}
	if err := db.AutoMigrate(&entryRow{}, &categoryRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate knowledge base schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func rowsToEntries(rows []entryRow) []Entry {
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = r.entry()
	}
	return out
}

func (s *SQLiteStore) ListEntries(ctx context.Context) ([]Entry, error) {
	var rows []entryRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return rowsToEntries(rows), nil
}

func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*Entry, error) {
	var row entryRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	e := row.entry()
	return &e, nil
}

func (s *SQLiteStore) FindEntryByName(ctx context.Context, name string) (*Entry, error) {
	var row entryRow
	err := s.db.WithContext(ctx).Where("LOWER(display_name) = ?", strings.ToLower(name)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find entry %q: %w", name, err)
	}
	e := row.entry()
	return &e, nil
}

func (s *SQLiteStore) SearchEntries(ctx context.Context, query string, limit int) ([]Entry, error) {
	like := "%" + strings.ToLower(query) + "%"
	var rows []entryRow
	err := s.db.WithContext(ctx).
		Where("LOWER(display_name) LIKE ? OR LOWER(text_content) LIKE ? OR LOWER(keys) LIKE ?", like, like, like).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN LOWER(display_name) LIKE ? THEN 0 ELSE 1 END, LOWER(display_name)",
			Vars:               []interface{}{like},
			WithoutParentheses: true,
		}}).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	return rowsToEntries(rows), nil
}

func (s *SQLiteStore) PutEntry(ctx context.Context, e Entry) error {
	row := toEntryRow(e)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save entry %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&entryRow{})
	if res.Error != nil {
		return fmt.Errorf("delete entry %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *SQLiteStore) ListCategories(ctx context.Context) ([]Category, error) {
	var rows []categoryRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]Category, len(rows))
	for i, r := range rows {
		out[i] = Category(r)
	}
	return out, nil
}

func (s *SQLiteStore) GetCategory(ctx context.Context, id string) (*Category, error) {
	var row categoryRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	c := Category(row)
	return &c, nil
}

func (s *SQLiteStore) PutCategory(ctx context.Context, c Category) error {
	row := categoryRow(c)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("save category %s: %w", c.ID, err)
	}
	return nil
}
