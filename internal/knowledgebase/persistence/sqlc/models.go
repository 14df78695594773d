package sqlc

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type KbCategory struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	OrderIndex int32  `json:"order_index"`
}

type KbEntry struct {
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
