package dashserve

import "log/slog"

// logger is the package-wide logger. Use SetDefaultLogger or WithLogger to replace it.
var logger = slog.Default()

// Wrappers for log levels, so callers do not have to import slog to pick one.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// DefaultLogger returns the logger used by the dashserve package.
func DefaultLogger() *slog.Logger {
	return logger
}

// SetDefaultLogger overrides the logger used by the dashserve package.
func SetDefaultLogger(l *slog.Logger) {
	if l == nil {
		logger = slog.Default()
		return
	}
	logger = l
}
