// Package log provides the structured logging interface used across neurocpm.
//
// The interface is slog-shaped (message plus alternating key/value fields) so
// call sites stay independent of the backend. The default backend is zerolog;
// tests use TestLogger to capture and inspect records.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("cpm").With(
//	    log.RunIDKey, runID,
//	)
//	logger.Info("leave-one-out started",
//	    log.OperationKey, log.OperationPredict,
//	    log.SubjectsKey, 120,
//	    log.EdgesKey, 35778,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. For Error, a leading error value is
// treated specially: it is attached as the record's error together with its
// stack trace when one is available.
type Logger interface {
	// Debug logs detailed diagnostic information, e.g. per-fold edge counts.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	Info(msg string, fields ...any)

	// Warn logs conditions that do not stop the computation, such as a
	// degenerate fold falling back to the training mean.
	Warn(msg string, fields ...any)

	// Error logs a failure. If the first field is an error it is recorded
	// as the record's error.
	//
	// Example:
	//   logger.Error("fold failed", err, log.FoldKey, 3)
	Error(msg string, fields ...any)

	// With returns a Logger that adds the given fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates and configures loggers.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
