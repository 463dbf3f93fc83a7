// Package corelog configures the process-wide structured logger. It is
// the sigscan fleet's standard logging setup, installed by the serve
// command when the daemon starts.
package corelog

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures and installs the default slog logger for component,
// returning it for callers that want an explicit reference. Output is
// JSON when SIGSCAN_JSON_LOG is 1/true/json, text otherwise; level comes
// from SIGSCAN_LOG_LEVEL (debug/info/warn/error, default info).
func Init(component string) *slog.Logger {
	json := jsonEnabled()
	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With("component", component)
	slog.SetDefault(logger)
	return logger
}

func jsonEnabled() bool {
	switch strings.ToLower(os.Getenv("SIGSCAN_JSON_LOG")) {
	case "1", "true", "json":
		return true
	default:
		return false
	}
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("SIGSCAN_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
