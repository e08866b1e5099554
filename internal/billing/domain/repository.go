package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	// UpsertUsage increments the (tenant, day, model) aggregate,
	// inserting the row on first use.
	UpsertUsage(ctx context.Context, db *gorm.DB, usage *TokenUsage) error
	InsertTransaction(ctx context.Context, db *gorm.DB, tx *BillingTransaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, page pagination.Pagination) ([]*BillingTransaction, error)
	UsageRows(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, from, to time.Time) ([]TokenUsage, error)
}
