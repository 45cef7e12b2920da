package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/timmy/recipe-ingest/internal/config"
	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/logger"
)

// sqlitePragmas are applied through the DSN so that every pooled connection
// gets them, not just the first.
const sqlitePragmas = "_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"

// InitDB opens the configured database, sizes the pool and, when enabled,
// migrates the schema.
// Parameters:
//   - ctx: carries the logger.
//   - cfg: database configuration including driver and connection settings.
// Returns:
//   - *gorm.DB: initialized database handle.
//   - error: non-nil if connection or migration fails.
func InitDB(ctx context.Context, cfg *config.DatabaseConfig) (*gorm.DB, error) {
	ctx = logger.SetComponent(ctx, "db")

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.With(logger.Fields{"driver": cfg.Driver, "auto_migrate": cfg.AutoMigrate}).
		Info(ctx, "Database connected")
	if cfg.AutoMigrate {
		if err := Migrate(db.WithContext(ctx)); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	return db, nil
}

func dialectorFor(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		// PreferSimpleProtocol keeps transaction poolers (pgbouncer, Supabase 6543) working.
		return postgres.New(postgres.Config{DSN: cfg.DSN(), PreferSimpleProtocol: true}), nil
	case "sqlite":
		if cfg.Path != "" && cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		return sqlite.Open(sqliteDSN(cfg.DSN())), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// sqliteDSN turns a plain path into a file: URI carrying sqlitePragmas.
// In-memory and already URI-shaped DSNs are returned as is.
func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?" + sqlitePragmas
}

// Migrate creates or updates every table the pipeline uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.IngestionJob{},
		&domain.IngestionReview{},
		&domain.Recipe{},
		&domain.RecipeIngredient{},
		&domain.RecipeFingerprint{},
		&domain.BaseIngredient{},
		&domain.Unit{},
		&domain.Category{},
	); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
