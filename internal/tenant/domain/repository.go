package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	// AddBalance applies balance and total-spent deltas as a single SQL
	// increment so concurrent charges never lose updates.
	AddBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balanceDelta, spentDelta float64) error
}
