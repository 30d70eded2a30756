// Package log configures the process-wide slog handler and hands out
// module-scoped loggers.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default text handler at the given level. Unknown level
// names fall back to info.
func Setup(logLevel string) {
	var level slog.Level

	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// WithModule returns a logger tagged with the component name. Every package
// in the promotion core scopes its logging this way.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
