// Package logs builds the process-wide slog logger.
package logs

import (
	"log/slog"
	"os"
	"strings"
)

func GetLoggerFromLevel(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// GetLoggerFromString maps a LOG_LEVEL value to a logger.
// Unknown values fall back to INFO.
func GetLoggerFromString(level string) *slog.Logger {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return GetLoggerFromLevel(slog.LevelDebug)
	case "WARN":
		return GetLoggerFromLevel(slog.LevelWarn)
	case "ERROR":
		return GetLoggerFromLevel(slog.LevelError)
	default:
		return GetLoggerFromLevel(slog.LevelInfo)
	}
}
