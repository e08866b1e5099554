package migration

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/lorekeep/lorekeep/internal/tenant/domain"
	"gorm.io/gorm"
)

const (
	defaultTenantName = "Main"
	// Fresh installs get a small trial credit so the query endpoint
	// works before the first top-up.
	trialCredit = 5.0
)

// EnsureDefaultTenant seeds the bootstrap tenant. A zero id generates a
// fresh one.
func EnsureDefaultTenant(db *gorm.DB, id int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing tenantdomain.Tenant
		stmt := tx.Limit(1)
		if id != 0 {
			stmt = stmt.Where("id = ?", id)
		}
		if err := stmt.Find(&existing).Error; err != nil {
			return err
		}
		if existing.ID != 0 {
			return nil
		}

		tenantID := snowflake.ID(id)
		if tenantID == 0 {
			tenantID = node.Generate()
		}
		now := time.Now().UTC()
		return tx.Create(&tenantdomain.Tenant{
			ID:        tenantID,
			Name:      defaultTenantName,
			Balance:   trialCredit,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error
	})
}
