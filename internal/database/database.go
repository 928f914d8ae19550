package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/netebla/Milky-Tarot/internal/database/migrations"
)

// New opens the SQLite database file and verifies the connection. WAL keeps
// the bot and the payment bot usable against the same file; busy_timeout
// covers the short write overlap between the two processes.
func New(path string) (*sql.DB, error) {
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return db, nil
}

// Migrate applies pending embedded migrations. Safe to run on every start:
// goose tracks applied versions in the database itself.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Status prints applied and pending migrations, used by cmd/migrate.
func Status(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	return goose.Status(db, ".")
}

// Down rolls back the latest migration, or down to target when target > 0.
func Down(ctx context.Context, db *sql.DB, target int64) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	if target > 0 {
		return goose.DownToContext(ctx, db, ".", target)
	}
	return goose.DownContext(ctx, db, ".")
}
