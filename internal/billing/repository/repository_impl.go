package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/billing/domain"
	"github.com/lorekeep/lorekeep/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertUsage(ctx context.Context, db *gorm.DB, usage *domain.TokenUsage) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"},
			{Name: "day"},
			{Name: "model"},
		},
		DoUpdates: clause.Assignments(map[string]any{
			"prompt_tokens":     gorm.Expr("token_usages.prompt_tokens + ?", usage.PromptTokens),
			"completion_tokens": gorm.Expr("token_usages.completion_tokens + ?", usage.CompletionTokens),
			"total_tokens":      gorm.Expr("token_usages.total_tokens + ?", usage.TotalTokens),
			"cost":              gorm.Expr("token_usages.cost + ?", usage.Cost),
			"request_count":     gorm.Expr("token_usages.request_count + ?", usage.RequestCount),
			"updated_at":        time.Now().UTC(),
		}),
	}).Create(usage).Error
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, tx *domain.BillingTransaction) error {
	return db.WithContext(ctx).Create(tx).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, page pagination.Pagination) ([]*domain.BillingTransaction, error) {
	var transactions []*domain.BillingTransaction
	stmt := db.WithContext(ctx).
		Model(&domain.BillingTransaction{}).
		Where("tenant_id = ?", tenantID)
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err == nil && cursor.ID != "" {
			if id, parseErr := snowflake.ParseString(cursor.ID); parseErr == nil {
				stmt = stmt.Where("id < ?", id)
			}
		}
	}
	limit := page.PageSize
	if limit <= 0 {
		limit = 10
	}
	err := stmt.
		Order("id desc").
		Limit(limit + 1).
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *repo) UsageRows(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, from, to time.Time) ([]domain.TokenUsage, error) {
	var rows []domain.TokenUsage
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND day >= ? AND day < ?", tenantID, from, to).
		Order("day, model").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
