package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// SQLStore is a database/sql backed store. It works with any compatible
// driver (PostgreSQL, MySQL, SQLite). CreateTable creates a schema like:
//
//	CREATE TABLE live_components (
//	    id VARCHAR(255) PRIMARY KEY,
//	    kind VARCHAR(255) NOT NULL,
//	    version BIGINT NOT NULL,
//	    data BLOB NOT NULL,
//	    updated_at TIMESTAMP NOT NULL
//	);
type SQLStore struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	closed    atomic.Bool
}

// SQLDialect selects placeholder and upsert syntax.
type SQLDialect int

const (
	// DialectPostgreSQL uses $n placeholders and ON CONFLICT.
	DialectPostgreSQL SQLDialect = iota
	// DialectMySQL uses ? placeholders and ON DUPLICATE KEY.
	DialectMySQL
	// DialectSQLite uses ? placeholders and INSERT OR REPLACE.
	DialectSQLite
)

// ParseDialect maps a driver-ish name to a dialect.
func ParseDialect(name string) (SQLDialect, error) {
	switch name {
	case "postgres", "postgresql", "pgx":
		return DialectPostgreSQL, nil
	case "mysql":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return 0, fmt.Errorf("store: unknown SQL dialect %q", name)
	}
}

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*SQLStore)

// WithSQLTableName sets the table name. Default: "live_components".
func WithSQLTableName(name string) SQLStoreOption {
	return func(s *SQLStore) {
		s.tableName = name
	}
}

// WithSQLDialect sets the dialect. Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLStoreOption {
	return func(s *SQLStore) {
		s.dialect = dialect
	}
}

// NewSQLStore creates a store on an open database handle.
// The handle is not closed by Close; it may be shared.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	s := &SQLStore{
		db:        db,
		tableName: "live_components",
		dialect:   DialectPostgreSQL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Save upserts a record.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	data, err := rec.Marshal()
	if err != nil {
		return err
	}

	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, kind, version, data, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				kind = EXCLUDED.kind,
				version = EXCLUDED.version,
				data = EXCLUDED.data,
				updated_at = EXCLUDED.updated_at
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, kind, version, data, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				kind = VALUES(kind),
				version = VALUES(version),
				data = VALUES(data),
				updated_at = VALUES(updated_at)
		`, s.tableName)
	case DialectSQLite:
		query = fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (id, kind, version, data, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, s.tableName)
	}

	_, err = s.db.ExecContext(ctx, query, rec.ID, rec.Kind, int64(rec.Version), data, rec.UpdatedAt)
	return err
}

// Load returns the record for id, or (nil, nil).
func (s *SQLStore) Load(ctx context.Context, id string) (*Record, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = %s`, s.tableName, s.placeholder(1))
	var data []byte
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return UnmarshalRecord(data)
}

// Delete removes a record.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.tableName, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

// Close marks the store closed. The database handle stays open.
func (s *SQLStore) Close() error {
	s.closed.Store(true)
	return nil
}

// CreateTable creates the table if it does not exist.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(255) PRIMARY KEY,
				kind VARCHAR(255) NOT NULL,
				version BIGINT NOT NULL,
				data BYTEA NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			)
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(255) PRIMARY KEY,
				kind VARCHAR(255) NOT NULL,
				version BIGINT NOT NULL,
				data BLOB NOT NULL,
				updated_at DATETIME NOT NULL
			)
		`, s.tableName)
	case DialectSQLite:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				version INTEGER NOT NULL,
				data BLOB NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)
		`, s.tableName)
	}
	_, err := s.db.ExecContext(ctx, query)
	return err
}
