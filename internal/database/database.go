package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rmitchellscott/pdfdesk/internal/config"
	"github.com/rmitchellscott/pdfdesk/internal/logging"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured database and runs pending migrations.
func Open(cfg config.DatabaseConfig, ginMode string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Type {
	case "postgres":
		db, err = initPostgres(cfg, ginMode)
	case "sqlite", "":
		db, err = initSQLite(cfg, ginMode)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := RunMigrations(db, "STARTUP"); err != nil {
		return nil, err
	}

	logging.Logf("[STARTUP] Database initialized successfully (type: %s)", cfg.Type)
	return db, nil
}

// OpenSQLiteFile opens and migrates a sqlite database at path. Used by the
// CLI and tests.
func OpenSQLiteFile(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := tuneSQLite(db); err != nil {
		return nil, err
	}
	if err := RunMigrations(db, "SETTINGS"); err != nil {
		return nil, err
	}
	return db, nil
}

// initPostgres initializes PostgreSQL connection
func initPostgres(cfg config.DatabaseConfig, ginMode string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.DBName, cfg.Port, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger(ginMode),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// initSQLite initializes SQLite connection
func initSQLite(cfg config.DatabaseConfig, ginMode string) (*gorm.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "pdfdesk.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormLogger(ginMode),
	})
	if err != nil {
		return nil, err
	}
	if err := tuneSQLite(db); err != nil {
		return nil, err
	}
	return db, nil
}

func tuneSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	sqlDB.SetMaxIdleConns(1)
	return nil
}

// gormLogger returns appropriate GORM logger based on gin mode
func gormLogger(ginMode string) logger.Interface {
	logLevel := logger.Warn
	if ginMode == "debug" {
		logLevel = logger.Info
	}
	return logger.Default.LogMode(logLevel)
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
