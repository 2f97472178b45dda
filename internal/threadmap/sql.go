package threadmap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/devicelink/internal/storage"
)

const createThreadMapTable = `
CREATE TABLE IF NOT EXISTS thread_map (
	identity_key TEXT PRIMARY KEY,
	thread_id BIGINT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLStore implements Store on database/sql. Thread IDs are stored as
// BIGINT; snowflakes fit in 63 bits.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// OpenSQLStore opens dsn with the driver for dialect and ensures the schema.
func OpenSQLStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	db, dialect, err := storage.Open(ctx, dialect, dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("threadmap: %w", err)
	}
	store := NewSQLStore(db, dialect)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an already opened database.
func NewSQLStore(db *sql.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Migrate creates the thread_map table if needed.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createThreadMapTable); err != nil {
		return fmt.Errorf("threadmap: create table: %w", err)
	}
	return nil
}

// Get returns the thread mapped to key.
func (s *SQLStore) Get(ctx context.Context, key string) (uint64, bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return 0, false, nil
	}
	var threadID int64
	err = s.db.QueryRowContext(ctx,
		s.rebind("SELECT thread_id FROM thread_map WHERE identity_key = ?"), key,
	).Scan(&threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("threadmap: get: %w", err)
	}
	return uint64(threadID), true, nil
}

// Set upserts the mapping.
func (s *SQLStore) Set(ctx context.Context, key string, threadID uint64) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if threadID == 0 {
		return errors.New("threadmap: thread id is required")
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO thread_map (identity_key, thread_id, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (identity_key) DO UPDATE SET thread_id = excluded.thread_id, updated_at = excluded.updated_at`),
		key, int64(threadID), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("threadmap: set: %w", err)
	}
	return nil
}

// Remove deletes the mapping for key.
func (s *SQLStore) Remove(ctx context.Context, key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM thread_map WHERE identity_key = ?"), key); err != nil {
		return fmt.Errorf("threadmap: remove: %w", err)
	}
	return nil
}

// RemoveIf deletes the mapping only while it still points at threadID.
func (s *SQLStore) RemoveIf(ctx context.Context, key string, threadID uint64) (bool, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM thread_map WHERE identity_key = ? AND thread_id = ?"),
		key, int64(threadID),
	)
	if err != nil {
		return false, fmt.Errorf("threadmap: remove: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("threadmap: remove: %w", err)
	}
	return n > 0, nil
}

// KeyForThread returns the first key (in key order) mapped to threadID.
func (s *SQLStore) KeyForThread(ctx context.Context, threadID uint64) (string, bool, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT identity_key FROM thread_map WHERE thread_id = ? ORDER BY identity_key LIMIT 1"),
		int64(threadID),
	).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("threadmap: reverse lookup: %w", err)
	}
	return key, true, nil
}

// Snapshot returns every mapping.
func (s *SQLStore) Snapshot(ctx context.Context) (map[string]uint64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT identity_key, thread_id FROM thread_map")
	if err != nil {
		return nil, fmt.Errorf("threadmap: snapshot: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var key string
		var threadID int64
		if err := rows.Scan(&key, &threadID); err != nil {
			return nil, fmt.Errorf("threadmap: scan: %w", err)
		}
		out[key] = uint64(threadID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("threadmap: rows: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) rebind(query string) string {
	return storage.Rebind(s.dialect, query)
}
