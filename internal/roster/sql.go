package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/devicelink/internal/identity"
	"github.com/haasonsaas/devicelink/internal/storage"
)

const createRosterTable = `
CREATE TABLE IF NOT EXISTS roster (
	guild_id TEXT NOT NULL,
	name TEXT NOT NULL,
	user_id TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (guild_id, name)
)`

const createRosterIdentityIndex = `CREATE INDEX IF NOT EXISTS idx_roster_identity ON roster (guild_id, user_id)`

const rosterColumns = "name, guild_id, user_id, display_name, created_at, updated_at"

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// OpenSQLStore opens dsn and ensures the schema.
func OpenSQLStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	db, dialect, err := storage.Open(ctx, dialect, dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
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

// Migrate creates the roster table and index.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createRosterTable, createRosterIdentityIndex} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("roster: migrate: %w", err)
		}
	}
	return nil
}

// Put upserts a record.
func (s *SQLStore) Put(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, storage.Rebind(s.dialect, `
		INSERT INTO roster (`+rosterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (guild_id, name) DO UPDATE SET
			user_id = excluded.user_id,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at`),
		rec.Name, rec.GuildID, rec.UserID, rec.DisplayName, now, now,
	)
	if err != nil {
		return fmt.Errorf("roster: put: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return nil
}

// ByName finds a record by guild and name.
func (s *SQLStore) ByName(ctx context.Context, guildID, name string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		storage.Rebind(s.dialect, "SELECT "+rosterColumns+" FROM roster WHERE guild_id = ? AND name = ?"),
		strings.TrimSpace(guildID), NormalizeName(name),
	)
	return scanRecord(row)
}

// ByIdentity finds the most recently updated record for a guild/user pair.
func (s *SQLStore) ByIdentity(ctx context.Context, key identity.Key) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		storage.Rebind(s.dialect, "SELECT "+rosterColumns+" FROM roster WHERE guild_id = ? AND user_id = ? ORDER BY updated_at DESC LIMIT 1"),
		key.GuildID, key.UserID,
	)
	return scanRecord(row)
}

// List returns every record in a guild.
func (s *SQLStore) List(ctx context.Context, guildID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		storage.Rebind(s.dialect, "SELECT "+rosterColumns+" FROM roster WHERE guild_id = ? ORDER BY name"),
		strings.TrimSpace(guildID),
	)
	if err != nil {
		return nil, fmt.Errorf("roster: list: %w", err)
	}
	defer rows.Close()

	out := make([]*Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roster: rows: %w", err)
	}
	return out, nil
}

// Delete removes a record.
func (s *SQLStore) Delete(ctx context.Context, guildID, name string) error {
	_, err := s.db.ExecContext(ctx,
		storage.Rebind(s.dialect, "DELETE FROM roster WHERE guild_id = ? AND name = ?"),
		strings.TrimSpace(guildID), NormalizeName(name),
	)
	if err != nil {
		return fmt.Errorf("roster: delete: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.Name, &rec.GuildID, &rec.UserID, &rec.DisplayName, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roster: scan: %w", err)
	}
	return &rec, nil
}
