// Package storage opens the SQL databases backing the durable stores.
//
// Two dialects are supported: "sqlite" (pure-Go modernc driver, the default
// for single-node deployments) and "postgres" (lib/pq, also used for
// CockroachDB). Queries are written with ? placeholders and passed through
// Rebind.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// ErrUnsupportedDialect is returned for dialects other than sqlite and postgres.
var ErrUnsupportedDialect = errors.New("storage: unsupported dialect")

// PoolConfig configures connection pooling.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPoolConfig returns default connection pool settings.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NormalizeDialect lower-cases dialect and validates it.
func NormalizeDialect(dialect string) (string, error) {
	dialect = strings.ToLower(strings.TrimSpace(dialect))
	switch dialect {
	case DialectSQLite, DialectPostgres:
		return dialect, nil
	case "cockroach", "cockroachdb", "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, dialect)
	}
}

// Open opens and pings a database.
func Open(ctx context.Context, dialect, dsn string, config *PoolConfig) (*sql.DB, string, error) {
	dialect, err := NormalizeDialect(dialect)
	if err != nil {
		return nil, "", err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, "", fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPoolConfig()
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}

	if dialect == DialectSQLite {
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping database: %w", err)
	}
	return db, dialect, nil
}

// Rebind converts ? placeholders to the positional form dialect expects.
func Rebind(dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
