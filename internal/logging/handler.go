package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// ParseLevel maps a config string to a slog level. Unknown values fall back to info.
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

// NewLogger builds the process logger: a tint handler on w wrapped with
// correlation injection. Color is enabled only when w is a terminal.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	inner := tint.NewHandler(w, &tint.Options{
		NoColor:    noColor,
		TimeFormat: time.Kitchen,
		Level:      level,
	})
	return slog.New(NewCorrelationHandler(inner))
}

// NewJSONLogger builds a JSON logger with correlation injection, for
// non-interactive deployments.
func NewJSONLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewCorrelationHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
}
