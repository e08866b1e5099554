package migration

import (
	apikeydomain "github.com/lorekeep/lorekeep/internal/apikey/domain"
	billingdomain "github.com/lorekeep/lorekeep/internal/billing/domain"
	documentdomain "github.com/lorekeep/lorekeep/internal/document/domain"
	tenantdomain "github.com/lorekeep/lorekeep/internal/tenant/domain"
	"gorm.io/gorm"
)

// AutoMigrate derives the schema from the models. Used for non-postgres
// databases, which only appear in local development and tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&tenantdomain.Tenant{},
		&tenantdomain.User{},
		&tenantdomain.UserTag{},
		&documentdomain.Tag{},
		&documentdomain.Document{},
		&documentdomain.DocumentTag{},
		&documentdomain.DocumentVersion{},
		&documentdomain.DocumentChunk{},
		&apikeydomain.APIKey{},
		&billingdomain.TokenUsage{},
		&billingdomain.BillingTransaction{},
	)
}
