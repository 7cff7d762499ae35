package persist

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	// Register the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/krisalay/query-cache/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLite keeps records in a single table of a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dsn and prepares the table.
// Use ":memory:" for a throwaway database.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create query_cache table")
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context, key string) (types.Record, bool, error) {
	var (
		value   []byte
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM query_cache WHERE key = ?`, key,
	).Scan(&value, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Record{}, false, nil
	}
	if err != nil {
		return types.Record{}, false, errors.Wrapf(err, "failed to load %q", key)
	}
	return types.Record{Value: value, UpdatedAt: time.Unix(0, updated)}, true, nil
}

func (s *SQLite) Put(ctx context.Context, key string, rec types.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_cache (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, rec.Value, rec.UpdatedAt.UnixNano(),
	)
	return errors.Wrapf(err, "failed to put %q", key)
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM query_cache WHERE key = ?`, key)
	return errors.Wrapf(err, "failed to delete %q", key)
}

func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM query_cache`)
	return errors.Wrap(err, "failed to clear query_cache")
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
