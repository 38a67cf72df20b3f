package logging

import (
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-dss/internal/infrastructure/config"
)

// ServiceName is attached to every log entry.
const ServiceName = "dss-sync"

// redacted replaces the value of secret attributes.
const redacted = "[redacted]"

// Logger is a slog.Logger carrying the service and version attributes.
//
// It satisfies the narrow Logger interfaces declared by dss, mqtt, relay
// and api. Attributes named like credentials are redacted, and token query
// parameters are stripped from URL-valued attributes. Safe for concurrent
// use.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates a Logger writing to cfg.Output (stdout unless "stderr").
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, version, w)
}

// NewWithWriter creates a Logger writing to w. The format is JSON unless
// cfg.Format is "text"; the level defaults to info.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: scrub}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	base := slog.New(h).With("service", ServiceName, "version", version)
	return &Logger{Logger: base, level: level}
}

// ParseLevel maps debug, info, warn or warning, and error to a level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// SetLevel changes the minimum level of this logger and every logger
// derived from it.
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// With returns a child logger with additional attributes. It shares the
// parent's level.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Component is shorthand for With("component", name).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default creates a JSON logger at info level on stdout, for use before
// the configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// secretKeys are attribute names, or name suffixes, whose values are
// never written.
var secretKeys = []string{"password", "secret", "token", "authorization"}

func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range secretKeys {
		if key == s || strings.HasSuffix(key, "_"+s) {
			return true
		}
	}
	return false
}

// scrub is the ReplaceAttr hook shared by both handlers.
func scrub(_ []string, a slog.Attr) slog.Attr {
	if isSecretKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() == slog.KindString && strings.Contains(a.Value.String(), "token=") {
		return slog.String(a.Key, stripTokens(a.Value.String()))
	}
	return a
}

// stripTokens redacts token query parameters of a URL. Values that do not
// parse as a URL are returned unchanged.
func stripTokens(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	changed := false
	for key := range q {
		if isSecretKey(key) {
			q.Set(key, redacted)
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}
