// Package telemetry persists slow-query and transfer records in a local
// SQLite database so they survive across sessions.
package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/chunklite/chunklite/db/migrations"

	// Import SQLite driver for database/sql
	_ "modernc.org/sqlite"
)

// Store is the local telemetry database.
type Store struct {
	db *sql.DB
}

// SlowQuery is one recorded slow query.
type SlowQuery struct {
	ID         int64
	URL        string
	Query      string
	Params     string
	DurationMS int64
	CreatedAt  time.Time
}

// Transfer is one recorded completed download.
type Transfer struct {
	ID         int64
	URL        string
	Bytes      int64
	DurationMS int64
	CreatedAt  time.Time
}

// Open creates or opens the telemetry database at dbPath and applies
// migrations.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
		}
	}

	var dsn string
	if dbPath == ":memory:" {
		dsn = "file::memory:?cache=shared"
	} else {
		absPath, err := filepath.Abs(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve telemetry path: %w", err)
		}
		dsn = fmt.Sprintf("file:%s", filepath.ToSlash(absPath))
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping telemetry database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordSlowQuery inserts one slow-query record.
func (s *Store) RecordSlowQuery(ctx context.Context, url, query, params string, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slow_queries(url, query, params, duration_ms) VALUES(?, ?, ?, ?)`,
		url, query, params, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record slow query: %w", err)
	}
	return nil
}

// RecordTransfer inserts one completed-transfer record.
func (s *Store) RecordTransfer(ctx context.Context, url string, bytes int64, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transfers(url, bytes, duration_ms) VALUES(?, ?, ?)`,
		url, bytes, duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}
	return nil
}

// RecentSlowQueries returns the most recent slow queries, newest first.
func (s *Store) RecentSlowQueries(ctx context.Context, limit int) ([]SlowQuery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, query, params, duration_ms, created_at
		 FROM slow_queries ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query slow queries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []SlowQuery
	for rows.Next() {
		var q SlowQuery
		if err := rows.Scan(&q.ID, &q.URL, &q.Query, &q.Params, &q.DurationMS, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan slow query: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to initialise migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.Files, ".")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	defer func() {
		_ = sourceDriver.Close()
	}()

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
