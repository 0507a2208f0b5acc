package database

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite" // SQLite driver for GORM

	"github.com/emadnahed/shtlink/internal/config"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS short_code_to_url (
    short_code VARCHAR(32) NOT NULL PRIMARY KEY,
    url VARCHAR(2000) NOT NULL UNIQUE,
    created_at DATETIME NOT NULL
)`

// SQLite is a GORM handle on a SQLite database file.
type SQLite struct {
	*gorm.DB
}

// OpenSQLite opens the database file at cfg.Path, creating it and the
// short_code_to_url table when missing. Writers are serialized through a
// single connection.
func OpenSQLite(ctx context.Context, cfg *config.SQLiteConfig) (*SQLite, error) {
	db, err := gorm.Open("sqlite3", SQLiteDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.LogMode(false)
	db.DB().SetMaxOpenConns(1)

	if err := db.DB().PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := db.Exec(sqliteSchema).Error; err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}

	return &SQLite{DB: db}, nil
}

// SQLiteDSN builds the go-sqlite3 connection string for cfg.
func SQLiteDSN(cfg *config.SQLiteConfig) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	if cfg.BusyTimeout > 0 {
		params.Set("_busy_timeout", fmt.Sprint(cfg.BusyTimeout.Milliseconds()))
	}
	return "file:" + cfg.Path + "?" + params.Encode()
}

// HealthCheck pings the database file.
func (s *SQLite) HealthCheck(ctx context.Context) error {
	return s.DB.DB().PingContext(ctx)
}

// Shutdown closes the database. It satisfies do.Shutdownable.
func (s *SQLite) Shutdown() error {
	return s.Close()
}
