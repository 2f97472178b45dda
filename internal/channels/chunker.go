package channels

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxMessageLength is Discord's per-message character limit.
const MaxMessageLength = 2000

const (
	codeFence      = "```"
	minSplitLength = 16
)

// SplitMessage splits text into chunks of at most maxLen characters.
//
// Breaks prefer a paragraph boundary, then a newline, then a space, and fall
// back to a hard cut. A code fence left open at the end of a chunk is closed
// there and reopened at the start of the next one.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = MaxMessageLength
	}
	if maxLen < minSplitLength {
		maxLen = minSplitLength
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	reopen := ""
	for text != "" {
		remaining := reopen + text
		if utf8.RuneCountInString(remaining) <= maxLen {
			return append(chunks, remaining)
		}

		// leave room to close a fence
		window := remaining[:runeOffset(remaining, maxLen-len(codeFence)-1)]
		cut := breakIndex(window, len(reopen))
		if cut <= len(reopen) {
			cut = len(window)
		}

		chunk := strings.TrimRightFunc(remaining[:cut], unicode.IsSpace)
		text = strings.TrimLeftFunc(remaining[cut:], unicode.IsSpace)
		if strings.Count(chunk, codeFence)%2 == 1 {
			chunk += "\n" + codeFence
			reopen = codeFence + "\n"
		} else {
			reopen = ""
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// breakIndex returns the preferred split position in window, or -1. Splits
// in the first third of the window are ignored to avoid tiny chunks.
func breakIndex(window string, min int) int {
	floor := len(window) / 3
	if floor < min {
		floor = min
	}
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i > floor {
			return i
		}
	}
	return -1
}

// runeOffset returns the byte offset of the n-th rune of s.
func runeOffset(s string, n int) int {
	for i := range s {
		if n == 0 {
			return i
		}
		n--
	}
	return len(s)
}
