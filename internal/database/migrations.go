package database

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"gorm.io/gorm"
)

// RunMigrations runs any pending database migrations using gormigrate
func RunMigrations(db *gorm.DB, logPrefix string) error {
	logging.Logf("[%s] Running database migrations...", logPrefix)

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202601150001_settings_sealed_flag",
			Migrate: func(tx *gorm.DB) error {
				if tx.Migrator().HasColumn(&Setting{}, "Sealed") {
					return nil
				}
				return tx.Migrator().AddColumn(&Setting{}, "Sealed")
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropColumn(&Setting{}, "Sealed")
			},
		},
	})

	// Set initial schema if this is a fresh database
	m.InitSchema(func(tx *gorm.DB) error {
		for _, model := range GetAllModels() {
			if err := tx.AutoMigrate(model); err != nil {
				return fmt.Errorf("failed to migrate %T: %w", model, err)
			}
		}
		return nil
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.Logf("[%s] Migrations completed successfully", logPrefix)
	return nil
}
