// Package identity defines the routing identity shared by the thread router,
// the roster and the link handshake.
//
// An identity is a (guild, user) pair. Discord assigns both as decimal
// snowflakes, so the serialized form "guild:user" is unambiguous.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates the guild and user halves of a serialized key.
const Delimiter = ":"

var (
	// ErrEmptyIdentity is returned when either half of a key is blank.
	ErrEmptyIdentity = errors.New("identity: guild id and user id are required")

	// ErrMalformedKey is returned by Parse for strings that are not "guild:user".
	ErrMalformedKey = errors.New("identity: malformed key")
)

// Key identifies one routing slot.
type Key struct {
	GuildID string
	UserID  string
}

// New builds a key from raw identifiers, trimming surrounding whitespace.
func New(guildID, userID string) Key {
	return Key{
		GuildID: strings.TrimSpace(guildID),
		UserID:  strings.TrimSpace(userID),
	}
}

// Validate reports whether both halves are present and delimiter-free.
func (k Key) Validate() error {
	if k.GuildID == "" || k.UserID == "" {
		return ErrEmptyIdentity
	}
	if strings.Contains(k.GuildID, Delimiter) || strings.Contains(k.UserID, Delimiter) {
		return fmt.Errorf("%w: identifiers must not contain %q", ErrMalformedKey, Delimiter)
	}
	return nil
}

// String returns the serialized form used as the thread map key.
func (k Key) String() string {
	return k.GuildID + Delimiter + k.UserID
}

// IsZero reports whether the key is entirely empty.
func (k Key) IsZero() bool {
	return k.GuildID == "" && k.UserID == ""
}

// Parse reverses Key.String.
func Parse(raw string) (Key, error) {
	guild, user, ok := strings.Cut(strings.TrimSpace(raw), Delimiter)
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedKey, raw)
	}
	key := New(guild, user)
	if err := key.Validate(); err != nil {
		return Key{}, err
	}
	return key, nil
}
