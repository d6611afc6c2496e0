package smap

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with smap-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPath adds a file path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogRegionMapped logs the creation of a region.
func (l *Logger) LogRegionMapped(path string, ofs, size int64) {
	l.Debug("region mapped",
		"path", path,
		"ofs", ofs,
		"size", size,
	)
}

// LogRegionReleased logs the release of a region.
func (l *Logger) LogRegionReleased(path string, ofs, size int64, err error) {
	if err != nil {
		l.Error("region unmap failed",
			"path", path,
			"ofs", ofs,
			"size", size,
			"error", err,
		)
	} else {
		l.Debug("region released",
			"path", path,
			"ofs", ofs,
			"size", size,
		)
	}
}

// LogMmapRetry logs a failed OS mapping call that will be retried after
// eviction.
func (l *Logger) LogMmapRetry(path string, ofs, size int64, attempt int, err error) {
	l.Warn("mmap failed, evicting and retrying",
		"path", path,
		"ofs", ofs,
		"size", size,
		"attempt", attempt,
		"error", err,
	)
}

// LogCursorLeaked logs a cursor that was collected by the runtime without
// having been released.
func (l *Logger) LogCursorLeaked(path string) {
	l.Warn("cursor leaked without release",
		"path", path,
	)
}

// LogClose logs the outcome of closing a manager.
func (l *Logger) LogClose(openCursors, openRegions int, errs int) {
	if errs > 0 {
		l.Error("manager closed with unmap failures",
			"open_cursors", openCursors,
			"open_regions", openRegions,
			"errors", errs,
		)
	} else if openCursors > 0 {
		l.Warn("manager closed with active cursors",
			"open_cursors", openCursors,
			"open_regions", openRegions,
		)
	} else {
		l.Debug("manager closed",
			"open_regions", openRegions,
		)
	}
}
