package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/tenant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Create(tenant).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, balance, total_spent, metadata, created_at, updated_at
		 FROM tenants WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) AddBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balanceDelta, spentDelta float64) error {
	return db.WithContext(ctx).
		Model(&domain.Tenant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"balance":     gorm.Expr("balance + ?", balanceDelta),
			"total_spent": gorm.Expr("total_spent + ?", spentDelta),
		}).Error
}
