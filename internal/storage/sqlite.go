package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type sqliteBackend struct {
	db       *sql.DB
	maxBytes int64
}

// NewSQLite opens (or creates) a single-file database holding one row per record.
func NewSQLite(path string, maxBytes int64) (Backend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage: sqlite path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite %s: %w", path, err)
	}
	// One writer keeps the capacity check and the write in a single critical section.
	db.SetMaxOpenConns(1)
	const schema = `CREATE TABLE IF NOT EXISTS records (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: sqlite schema: %w", err)
	}
	return &sqliteBackend{db: db, maxBytes: maxBytes}, nil
}

func (s *sqliteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: sqlite get: %w", err)
	}
	return value, nil
}

func (s *sqliteBackend) Set(ctx context.Context, key string, value []byte) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.maxBytes > 0 {
		var used int64
		row := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(LENGTH(value)), 0) FROM records WHERE key <> ?`, key)
		if err := row.Scan(&used); err != nil {
			return fmt.Errorf("storage: sqlite usage: %w", err)
		}
		if total := used + int64(len(value)); total > s.maxBytes {
			return fmt.Errorf("%w: %d of %d bytes", ErrCapacityExceeded, total, s.maxBytes)
		}
	}
	const upsert = `INSERT INTO records (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.ExecContext(ctx, upsert, key, value); err != nil {
		return fmt.Errorf("storage: sqlite set: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: sqlite commit: %w", err)
	}
	return nil
}

func (s *sqliteBackend) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage: sqlite delete: %w", err)
	}
	return nil
}

func (s *sqliteBackend) Close(context.Context) error {
	return s.db.Close()
}
