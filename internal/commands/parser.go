package commands

import (
	"regexp"
	"strings"
)

// DefaultPrefix is the command prefix used when none is configured.
const DefaultPrefix = "!"

var mentionRe = regexp.MustCompile(`^<@!?(\d+)>$`)

// Parser detects commands at the start of message text.
type Parser struct {
	prefix    string
	controlRe *regexp.Regexp
}

// NewParser creates a parser for prefix.
func NewParser(prefix string) *Parser {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Parser{
		prefix:    prefix,
		controlRe: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `([a-zA-Z][a-zA-Z0-9_-]*)(?:\s+(.*))?$`),
	}
}

// Prefix returns the configured prefix.
func (p *Parser) Prefix() string {
	return p.prefix
}

// ParseCommand parses a command invocation from text.
// Returns nil if the text is not a command.
func (p *Parser) ParseCommand(text string) *ParsedCommand {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, p.prefix) {
		return nil
	}

	match := p.controlRe.FindStringSubmatch(text)
	if match == nil {
		return nil
	}

	args := ""
	if len(match) > 2 {
		args = strings.TrimSpace(match[2])
	}
	return &ParsedCommand{
		Name:   strings.ToLower(match[1]),
		Args:   args,
		Prefix: p.prefix,
	}
}

// SplitCommandArgs splits text into its first word and the rest.
func SplitCommandArgs(text string) (name, args string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}

	parts := strings.SplitN(text, " ", 2)
	name = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args
}

// ParseMention returns the user ID in a <@id> or <@!id> mention.
func ParseMention(token string) (string, bool) {
	match := mentionRe.FindStringSubmatch(strings.TrimSpace(token))
	if match == nil {
		return "", false
	}
	return match[1], true
}
