package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect selects the SQL flavour of the backing database.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DB wraps sql.DB for SQLite (mattn/go-sqlite3) or Postgres (pgx).
type DB struct {
	Client  *sql.DB
	Dialect Dialect
}

// NewDB opens the database, applies the schema and verifies connectivity.
// For SQLite dsn is a file path.
func NewDB(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	var (
		client *sql.DB
		err    error
	)
	switch dialect {
	case SQLite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		client, err = sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
		if err == nil {
			// One writer keeps SQLite free of "database is locked" errors.
			client.SetMaxOpenConns(1)
		}
	case Postgres:
		client, err = sql.Open("pgx", dsn)
		if err == nil {
			client.SetMaxOpenConns(10)
			client.SetMaxIdleConns(5)
			client.SetConnMaxLifetime(time.Hour)
		}
	default:
		return nil, fmt.Errorf("unsupported store dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{Client: client, Dialect: dialect}
	if err := client.PingContext(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := db.migrate(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (d *DB) migrate(ctx context.Context) error {
	seq := "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.Dialect == Postgres {
		seq = "seq BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			` + seq + `,
			id               TEXT NOT NULL UNIQUE,
			name             TEXT NOT NULL,
			role             TEXT NOT NULL DEFAULT '',
			image_descriptor TEXT NOT NULL,
			image            TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attendance (
			` + seq + `,
			id            TEXT NOT NULL UNIQUE,
			user_id       TEXT NOT NULL,
			user_name     TEXT NOT NULL,
			check_in_time TEXT NOT NULL,
			date          TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_user_date ON attendance(user_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(date)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Rebind rewrites ? placeholders into the dialect's positional form.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
