// Package db persists settings, scan history and scheduled jobs in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // pure Go, default
	DriverCgo     = "sqlite3" // mattn/go-sqlite3, requires cgo
)

// DB wraps a SQLite connection.
type DB struct {
	*sql.DB
	driver string
}

// Open opens the database at path with the default driver and migrates it.
func Open(path string) (*DB, error) {
	return OpenWithDriver(DriverModernc, path)
}

// OpenWithDriver opens the database at path with the named driver and
// migrates it. An empty driver selects the default.
func OpenWithDriver(driver, path string) (*DB, error) {
	switch driver {
	case "":
		driver = DriverModernc
	case DriverModernc, DriverCgo:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps
	// per-connection pragmas in effect.
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	db := &DB{DB: sqlDB, driver: driver}
	if err := db.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Driver returns the driver name the database was opened with.
func (db *DB) Driver() string {
	return db.driver
}
