package router

import (
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/devicelink/internal/identity"
)

const (
	// maxDisplayNameRunes bounds the display-name part of a thread name.
	maxDisplayNameRunes = 80

	// maxThreadNameRunes is Discord's channel name limit.
	maxThreadNameRunes = 100
)

// ThreadName derives the thread name for key: the display name when known,
// otherwise the raw identity key.
func ThreadName(key identity.Key, displayName string) string {
	name := strings.Join(strings.Fields(displayName), " ")
	if name != "" {
		name = truncateRunes(name, maxDisplayNameRunes)
	} else {
		name = key.String()
	}
	return truncateRunes(name, maxThreadNameRunes)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
