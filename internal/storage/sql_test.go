package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestRebind(t *testing.T) {
	query := "SELECT a FROM t WHERE b = ? AND c = ?"
	if got := Rebind(DialectSQLite, query); got != query {
		t.Fatalf("sqlite Rebind() = %q", got)
	}
	want := "SELECT a FROM t WHERE b = $1 AND c = $2"
	if got := Rebind(DialectPostgres, query); got != want {
		t.Fatalf("postgres Rebind() = %q, want %q", got, want)
	}
}

func TestNormalizeDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "SQLite", want: DialectSQLite},
		{in: " postgres ", want: DialectPostgres},
		{in: "cockroachdb", want: DialectPostgres},
		{in: "mysql", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeDialect(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedDialect) {
				t.Errorf("NormalizeDialect(%q) error = %v, want ErrUnsupportedDialect", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("NormalizeDialect(%q) = (%q, %v), want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devicelink.db")
	db, dialect, err := Open(context.Background(), "sqlite", path, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()
	if dialect != DialectSQLite {
		t.Fatalf("dialect = %q", dialect)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, _, err := Open(context.Background(), "sqlite", "  ", nil); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
