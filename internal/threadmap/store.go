// Package threadmap persists the mapping from identity keys to Discord thread IDs.
//
// The mapping is single-valued and last-write-wins. It carries no business
// logic: creation, validation and cleanup decisions belong to the router.
package threadmap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrEmptyKey is returned by Set and Remove for blank keys.
var ErrEmptyKey = errors.New("threadmap: key is required")

// Store maps identity keys to thread IDs. Implementations must be safe for
// concurrent use, and a successful Set or Remove must be durable before it
// returns.
type Store interface {
	// Get returns the thread mapped to key, if any.
	Get(ctx context.Context, key string) (uint64, bool, error)

	// Set maps key to threadID, replacing any previous mapping.
	Set(ctx context.Context, key string, threadID uint64) error

	// Remove deletes the mapping for key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// RemoveIf deletes the mapping for key only while it still points at
	// threadID, and reports whether it did.
	RemoveIf(ctx context.Context, key string, threadID uint64) (bool, error)

	// KeyForThread performs the reverse lookup.
	KeyForThread(ctx context.Context, threadID uint64) (string, bool, error)

	// Snapshot returns a copy of every mapping.
	Snapshot(ctx context.Context) (map[string]uint64, error)

	// Close releases underlying resources.
	Close() error
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}

// Options selects and configures a backend.
type Options struct {
	// Driver is "file" (default), "sqlite" or "postgres".
	Driver string

	// Path is the JSON file for the file driver.
	Path string

	// DSN is the data source for the sql drivers.
	DSN string
}

// Open builds the store described by opts.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "file":
		return NewFileStore(opts.Path, logger)
	default:
		return OpenSQLStore(ctx, opts.Driver, opts.DSN)
	}
}
