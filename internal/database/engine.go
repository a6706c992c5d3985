package database

import (
	"context"
	"database/sql"
	"fmt"

	// Import SQLite driver for database/sql
	_ "modernc.org/sqlite"
)

// Rows is a fully materialized query result: ordered rows plus column names.
// Results are immutable once built; cached hits hand out the same value.
type Rows struct {
	Columns []string
	Values  [][]any
}

// engine executes SQL against one SQLite handle. The handle is not safe for
// concurrent invocation; the connection's worker serializes access.
type engine struct {
	db *sql.DB
}

func openEngine(dsn string) (*engine, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One underlying handle; queueing happens above this layer.
	db.SetMaxOpenConns(1)
	return &engine{db: db}, nil
}

func (e *engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Execute runs a query and materializes the full result set.
func (e *engine) Execute(ctx context.Context, query string, args []any) (*Rows, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := &Rows{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			// The driver may reuse byte buffers between rows.
			if b, ok := v.([]byte); ok {
				values[i] = append([]byte(nil), b...)
			}
		}
		result.Values = append(result.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *engine) Close() error {
	return e.db.Close()
}
