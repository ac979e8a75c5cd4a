package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup configures the default slog logger with a JSON handler and the level
// parsed from the LOG_LEVEL-style string ("DEBUG", "INFO", "WARN", "ERROR").
func Setup(level string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})

	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
