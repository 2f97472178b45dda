package linking

import "errors"

// Error tags returned to devices. They are part of the HTTP contract.
const (
	TagInvalidCode    = "InvalidCode"
	TagUnknownCode    = "UnknownCode"
	TagExpiredCode    = "ExpiredCode"
	TagMissingGuildID = "MissingGuildId"
	TagNotLinkedYet   = "NotLinkedYet"
)

var (
	// ErrInvalidCode is returned for a blank code.
	ErrInvalidCode = errors.New("linking: code is required")

	// ErrUnknownCode is returned when no record exists for the code.
	ErrUnknownCode = errors.New("linking: unknown code")

	// ErrExpiredCode is returned when the record is past its expiry.
	ErrExpiredCode = errors.New("linking: code expired")

	// ErrMissingGuildID is returned by Confirm without a guild.
	ErrMissingGuildID = errors.New("linking: guild id is required")

	// ErrNotLinkedYet is returned by Claim before confirmation.
	ErrNotLinkedYet = errors.New("linking: code not confirmed yet")
)

// Tag returns the machine-readable tag for err, or "" if err is not a
// handshake error.
func Tag(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCode):
		return TagInvalidCode
	case errors.Is(err, ErrUnknownCode):
		return TagUnknownCode
	case errors.Is(err, ErrExpiredCode):
		return TagExpiredCode
	case errors.Is(err, ErrMissingGuildID):
		return TagMissingGuildID
	case errors.Is(err, ErrNotLinkedYet):
		return TagNotLinkedYet
	default:
		return ""
	}
}
