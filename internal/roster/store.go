// Package roster keeps durable name <-> identity records.
//
// A roster entry ties a short driver name (as reported by a device) to the
// Discord identity of that driver inside one guild. The router reads display
// names from it when naming threads, and the HTTP relay uses it to route
// device messages for a named driver.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/haasonsaas/devicelink/internal/identity"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("roster: record not found")

	// ErrNameRequired is returned by Put for blank names.
	ErrNameRequired = errors.New("roster: name is required")
)

// Record is one roster entry.
type Record struct {
	// Name is the normalized (case-folded, trimmed) driver name.
	Name string

	GuildID string
	UserID  string

	// DisplayName is a human-readable label used for thread names.
	DisplayName string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the routing identity of the record.
func (r Record) Key() identity.Key {
	return identity.New(r.GuildID, r.UserID)
}

// Store defines the interface for roster persistence.
type Store interface {
	// Put creates or replaces the record for (guild, name).
	Put(ctx context.Context, rec *Record) error

	// ByName finds a record by guild and driver name.
	ByName(ctx context.Context, guildID, name string) (*Record, error)

	// ByIdentity finds the record for a guild/user pair.
	ByIdentity(ctx context.Context, key identity.Key) (*Record, error)

	// List returns every record in a guild ordered by name.
	List(ctx context.Context, guildID string) ([]*Record, error)

	// Delete removes the record for (guild, name).
	Delete(ctx context.Context, guildID, name string) error
}

// NormalizeName trims a driver name and applies Unicode case folding, so
// names differing only in case match.
func NormalizeName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

func prepare(rec *Record) error {
	if rec == nil {
		return errors.New("roster: record is nil")
	}
	rec.Name = NormalizeName(rec.Name)
	if rec.Name == "" {
		return ErrNameRequired
	}
	key := identity.New(rec.GuildID, rec.UserID)
	if err := key.Validate(); err != nil {
		return fmt.Errorf("roster: %w", err)
	}
	rec.GuildID, rec.UserID = key.GuildID, key.UserID
	rec.DisplayName = strings.TrimSpace(rec.DisplayName)
	return nil
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu sync.RWMutex

	// records maps guild + "/" + name -> record
	records map[string]*Record

	// identityIndex maps identity key -> records key
	identityIndex map[string]string
}

// NewMemoryStore creates a new in-memory roster.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:       make(map[string]*Record),
		identityIndex: make(map[string]string),
	}
}

func recordKey(guildID, name string) string {
	return strings.TrimSpace(guildID) + "/" + NormalizeName(name)
}

// Put creates or replaces a record.
func (s *MemoryStore) Put(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	key := recordKey(rec.GuildID, rec.Name)
	clone := *rec
	clone.UpdatedAt = now
	if existing, ok := s.records[key]; ok {
		clone.CreatedAt = existing.CreatedAt
		s.unindexLocked(existing, key)
	} else {
		clone.CreatedAt = now
	}
	s.records[key] = &clone
	s.identityIndex[clone.Key().String()] = key

	rec.CreatedAt, rec.UpdatedAt = clone.CreatedAt, clone.UpdatedAt
	return nil
}

// ByName finds a record by guild and name.
func (s *MemoryStore) ByName(ctx context.Context, guildID, name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey(guildID, name)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

// ByIdentity finds the record for a guild/user pair.
func (s *MemoryStore) ByIdentity(ctx context.Context, key identity.Key) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recKey, ok := s.identityIndex[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := s.records[recKey]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

// List returns every record in a guild.
func (s *MemoryStore) List(ctx context.Context, guildID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guildID = strings.TrimSpace(guildID)
	out := make([]*Record, 0)
	for _, rec := range s.records {
		if rec.GuildID != guildID {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a record. Deleting an absent record is not an error.
func (s *MemoryStore) Delete(ctx context.Context, guildID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(guildID, name)
	rec, ok := s.records[key]
	if !ok {
		return nil
	}
	s.unindexLocked(rec, key)
	delete(s.records, key)
	return nil
}

// unindexLocked drops the identity index entry for rec if it still points at recKey.
func (s *MemoryStore) unindexLocked(rec *Record, recKey string) {
	idKey := rec.Key().String()
	if s.identityIndex[idKey] == recKey {
		delete(s.identityIndex, idKey)
	}
}
