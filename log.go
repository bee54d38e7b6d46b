package triava

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// Operational logging for background-worker and listener/loader/writer
// failure paths. Grounded on oriys-nova's internal/logging/slog.go: a
// package-level atomic logger plus a slog.LevelVar, so the level can be
// adjusted at runtime without races. No third-party logging library
// appears anywhere in the retrieved example pack, so log/slog — the
// modern standard-library structured logger the pack itself reaches for —
// is used as-is rather than introducing an ecosystem dependency the
// corpus never shows.
var (
	logger   atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	logger.Store(slog.New(h))
}

func opLog() *slog.Logger {
	return logger.Load()
}

// SetLogger replaces the logger used for background-worker diagnostics.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// SetLogLevel adjusts the minimum level logged by the default logger.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
