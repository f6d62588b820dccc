// Package sqlitedb opens the application database and applies file
// migrations before handing the handle to the repositories.
package sqlitedb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
)

type Config struct {
	DatabasePath   string
	MigrationsPath string
}

// Open opens (creating if needed) the sqlite database at cfg.DatabasePath
// and runs any pending migrations from cfg.MigrationsPath.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.DatabasePath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows a single writer; a second connection would just queue
	// on the busy timeout.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db, cfg.MigrationsPath); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runMigrations(db *sql.DB, migrationsPath string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
