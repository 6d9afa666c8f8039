// Package logging provides the process-level operational logger, kept
// separate from per-request script console output (which is captured as
// core.LogEntry values instead, see internal/webapi/console.go).
package logging

import (
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	level    = new(slog.LevelVar)
)

func init() {
	level.Set(slog.LevelInfo)
	opLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// Op returns the operational logger for process/infrastructure events
// (startup, shutdown, worker spawn/discard) — distinct from script output.
func Op() *slog.Logger {
	return opLogger.Load()
}

// SetLevelFromString sets the operational log level; unrecognised values
// are ignored and the previous level is kept.
func SetLevelFromString(s string) {
	switch s {
	case "debug", "DEBUG":
		level.Set(slog.LevelDebug)
	case "info", "INFO":
		level.Set(slog.LevelInfo)
	case "warn", "WARN", "warning", "WARNING":
		level.Set(slog.LevelWarn)
	case "error", "ERROR":
		level.Set(slog.LevelError)
	}
}
