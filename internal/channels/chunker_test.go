package channels

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessageShortAndEmpty(t *testing.T) {
	if got := SplitMessage("   ", 100); got != nil {
		t.Errorf("SplitMessage(blank) = %q, want nil", got)
	}
	if got := SplitMessage("hello", 0); len(got) != 1 || got[0] != "hello" {
		t.Errorf("SplitMessage(short) = %q", got)
	}
}

func TestSplitMessageBreaksOnWhitespace(t *testing.T) {
	text := strings.Repeat("word ", 100)
	chunks := SplitMessage(text, 64)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 64 {
			t.Fatalf("chunk too long (%d): %q", utf8.RuneCountInString(c), c)
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") || strings.Contains(c, "wor d") {
			t.Fatalf("chunk split inside a word or kept padding: %q", c)
		}
	}
	if joined := strings.Join(chunks, " "); joined != strings.TrimSpace(text) {
		t.Fatal("chunks do not reassemble to the original text")
	}
}

func TestSplitMessagePrefersParagraphs(t *testing.T) {
	first := strings.Repeat("a", 40)
	second := strings.Repeat("b", 40)
	chunks := SplitMessage(first+"\n\n"+second, 60)
	if len(chunks) != 2 || chunks[0] != first || chunks[1] != second {
		t.Fatalf("SplitMessage() = %q", chunks)
	}
}

func TestSplitMessageKeepsCodeFencesBalanced(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("intro\n```\n")
	for i := 0; i < 40; i++ {
		sb.WriteString("line of code\n")
	}
	sb.WriteString("```\noutro")

	chunks := SplitMessage(sb.String(), 120)
	if len(chunks) < 3 {
		t.Fatalf("expected the code block to span chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if strings.Count(c, codeFence)%2 != 0 {
			t.Fatalf("chunk %d has an unbalanced fence: %q", i, c)
		}
		if utf8.RuneCountInString(c) > 120 {
			t.Fatalf("chunk %d too long", i)
		}
	}
}

func TestSplitMessageHardCutIsRuneSafe(t *testing.T) {
	text := strings.Repeat("ü", 100)
	chunks := SplitMessage(text, 30)
	total := 0
	for _, c := range chunks {
		if !utf8.ValidString(c) {
			t.Fatalf("invalid utf8 chunk %q", c)
		}
		n := utf8.RuneCountInString(c)
		if n > 30 {
			t.Fatalf("chunk has %d runes", n)
		}
		total += n
	}
	if total != 100 {
		t.Fatalf("lost runes: %d", total)
	}
}
