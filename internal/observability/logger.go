// Package observability provides structured logging helpers shared by the
// preference engine components.
package observability

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

const (
	// LogFieldUserID is the field name for user ID.
	LogFieldUserID = "user_id"
	// LogFieldOperation is the field name for the engine operation.
	LogFieldOperation = "operation"
	// LogFieldSyncID is the field name for a sync attempt ID.
	LogFieldSyncID = "sync_id"
	// LogFieldAttempt is the field name for a retry attempt count.
	LogFieldAttempt = "attempt"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
	// LogFieldErrorCode is the field name for error code.
	LogFieldErrorCode = "error_code"
	// LogFieldSection is the field name for a preference section.
	LogFieldSection = "section"
)

// NewLogger builds the engine logger: JSON in prod, text in dev.
func NewLogger(dev bool) *slog.Logger {
	var handler slog.Handler
	if dev {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(handler)
}

// NewSyncID generates an ID correlating the log lines of one sync attempt.
func NewSyncID() string {
	return uuid.NewString()
}

// DurationMs converts a duration to the millisecond value used in logs.
func DurationMs(since time.Time) int64 {
	return time.Since(since).Milliseconds()
}
