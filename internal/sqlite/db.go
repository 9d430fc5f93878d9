package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rpggio/galley/migrations"
)

// connParams are applied to every pooled connection. Writers take the
// database lock at BEGIN so a transaction never upgrades from a read lock
// mid-way, which is what makes a no-op UPDATE usable as a row lock.
const connParams = "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New opens the database at path, which may be a plain file path, a file:
// URI or ":memory:".
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", withParams(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{db}, nil
}

func withParams(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + connParams
}

// RunMigrations applies the embedded schema files that have not been
// applied yet, each in its own transaction.
func (db *DB) RunMigrations(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	files, err := migrations.For("sqlite")
	if err != nil {
		return err
	}
	for _, m := range files {
		err := db.WithinTx(ctx, func(ctx context.Context) error {
			var applied int
			if err := db.conn(ctx).QueryRowContext(ctx,
				`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version).Scan(&applied); err != nil {
				return err
			}
			if applied > 0 {
				return nil
			}
			if _, err := db.conn(ctx).ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := db.conn(ctx).ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, m.Version, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
	}
	return nil
}
