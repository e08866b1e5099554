package migration

import (
	"github.com/lorekeep/lorekeep/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres databases only appear in local
			// development; gorm derives the schema there.
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		return EnsureDefaultTenant(conn, cfg.DefaultTenantID)
	}),
)
