package observability

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string

	// Format is json or text. Defaults to json.
	Format string

	// Output defaults to os.Stdout.
	Output io.Writer

	AddSource bool

	// RedactPatterns are extra regexes whose matches are masked in string attributes.
	RedactPatterns []string
}

// DefaultRedactPatterns mask secrets that routinely pass through this service.
var DefaultRedactPatterns = []string{
	// device credentials
	`dlk_[A-Za-z0-9_-]{16,}`,
	// JWTs
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
	// bot tokens and bearer headers
	`(?i)(bot|bearer)\s+[A-Za-z0-9_.\-]{20,}`,
}

const redacted = "[REDACTED]"

// NewLogger builds a slog logger from config.
//
// String and error attributes are passed through the redaction patterns
// before they reach the handler.
func NewLogger(config LogConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	redacts := make([]*regexp.Regexp, 0, len(DefaultRedactPatterns)+len(config.RedactPatterns))
	for _, pattern := range append(append([]string{}, DefaultRedactPatterns...), config.RedactPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			redacts = append(redacts, re)
		}
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(config.Level),
		AddSource: config.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			switch a.Value.Kind() {
			case slog.KindString:
				return slog.String(a.Key, redactString(redacts, a.Value.String()))
			case slog.KindAny:
				if err, ok := a.Value.Any().(error); ok && err != nil {
					return slog.String(a.Key, redactString(redacts, err.Error()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redactString(patterns []*regexp.Regexp, s string) string {
	for _, re := range patterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}
