package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"partner-sync-go/internal/config"
	"partner-sync-go/pkg/logger"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies pending schema migrations for the dialect of driver.
func Migrate(ctx context.Context, gormDB *gorm.DB, driver string, log logger.Logger) error {
	provider, err := newProvider(gormDB, driver)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("db: running migrations: %w", err)
	}

	for _, result := range results {
		log.Info("db: applied migration",
			"source", result.Source.Path,
			"duration_ms", result.Duration.Milliseconds(),
		)
	}
	return nil
}

// MigrationStatus reports every known migration and whether it is applied.
func MigrationStatus(ctx context.Context, gormDB *gorm.DB, driver string) ([]*goose.MigrationStatus, error) {
	provider, err := newProvider(gormDB, driver)
	if err != nil {
		return nil, err
	}
	return provider.Status(ctx)
}

func newProvider(gormDB *gorm.DB, driver string) (*goose.Provider, error) {
	dialect, dir := goose.DialectPostgres, "migrations/postgres"
	if driver == config.DriverSQLite {
		dialect, dir = goose.DialectSQLite3, "migrations/sqlite"
	}

	subFS, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("db: migration sub-filesystem: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}

	provider, err := goose.NewProvider(dialect, sqlDB, subFS)
	if err != nil {
		return nil, fmt.Errorf("db: migration provider: %w", err)
	}
	return provider, nil
}
