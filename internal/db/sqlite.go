package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"partner-sync-go/internal/config"
	"partner-sync-go/pkg/logger"
)

// NewSQLite opens the embedded store used for single-node deployments and
// tests. SQLite allows one writer, so the pool holds one connection.
func NewSQLite(cfg config.DBConfig, log logger.Logger) (*gorm.DB, error) {
	dsn := sqliteDSN(cfg.GetDSN())
	log.Info("db: opening sqlite", "path", cfg.GetDSN())

	gormDB, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	log.Info("db: connected", "driver", config.DriverSQLite)
	return gormDB, nil
}

func sqliteDSN(path string) string {
	params := "_foreign_keys=on&_busy_timeout=5000&_loc=UTC"
	if path == ":memory:" {
		return "file::memory:?" + params
	}
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}
