package identity

import (
	"errors"
	"testing"
)

func TestNewTrims(t *testing.T) {
	key := New("  42 ", "\t7\n")
	if key.GuildID != "42" || key.UserID != "7" {
		t.Fatalf("New() = %+v, want trimmed halves", key)
	}
	if key.String() != "42:7" {
		t.Fatalf("String() = %q, want %q", key.String(), "42:7")
	}
}

func TestParseRoundTrip(t *testing.T) {
	original := New("999", "123456789012345678")
	parsed, err := Parse(original.String())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed != original {
		t.Fatalf("Parse() = %+v, want %+v", parsed, original)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "no delimiter", raw: "42", want: ErrMalformedKey},
		{name: "empty guild", raw: ":7", want: ErrEmptyIdentity},
		{name: "empty user", raw: "42:", want: ErrEmptyIdentity},
		{name: "extra delimiter", raw: "42:7:1", want: ErrMalformedKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Parse(%q) error = %v, want %v", tt.raw, err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := (Key{}).Validate(); !errors.Is(err, ErrEmptyIdentity) {
		t.Fatalf("zero key Validate() = %v, want ErrEmptyIdentity", err)
	}
	if !(Key{}).IsZero() {
		t.Fatal("zero key should report IsZero")
	}
	if err := New("1", "2").Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
