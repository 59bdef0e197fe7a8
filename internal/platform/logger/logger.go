package logger

import (
	"log/slog"
	"os"
)

// New builds the process-wide structured logger. level is one of debug,
// info, warn, error; anything unrecognized falls back to info.
func New(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})
	return slog.New(handler)
}
