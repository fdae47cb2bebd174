// Package errors defines the typed failure taxonomy for the preference
// engine. Every failure that crosses a component boundary carries an
// ErrorCode so callers can distinguish retryable transport failures from
// fatal ones without string matching.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific failure category.
type ErrorCode string

const (
	// ErrCodeValidationFailed indicates input that violates one or more
	// field constraints. Never retried; the caller must fix the input.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodePersistenceFailed indicates a local store I/O failure.
	ErrCodePersistenceFailed ErrorCode = "PERSISTENCE_FAILED"
	// ErrCodeSyncNoConnectivity indicates the device is offline. Retryable.
	ErrCodeSyncNoConnectivity ErrorCode = "SYNC_NO_CONNECTIVITY"
	// ErrCodeSyncRejected indicates the remote store refused the document
	// (auth failure, stale write, malformed payload). Not retryable.
	ErrCodeSyncRejected ErrorCode = "SYNC_REJECTED"
	// ErrCodeSyncFailed indicates a transient remote failure. Retryable.
	ErrCodeSyncFailed ErrorCode = "SYNC_FAILED"
	// ErrCodeConflictManual indicates a conflict that needs a user decision.
	ErrCodeConflictManual ErrorCode = "CONFLICT_MANUAL"
	// ErrCodeCorruptedState indicates the local document could not be
	// decoded. Not retryable; surfaced so the UI can offer a restore.
	ErrCodeCorruptedState ErrorCode = "CORRUPTED_STATE"
)

// FieldViolation describes one violated constraint on one field.
type FieldViolation struct {
	Field  string
	Reason string
}

func (v FieldViolation) String() string {
	return v.Field + ": " + v.Reason
}

// EngineError is the structured error used across the engine.
type EngineError struct {
	Code      ErrorCode
	Message   string
	Operation string
	Retryable bool
	// Violations is populated only for VALIDATION_FAILED and lists every
	// violated field, not just the first.
	Violations []FieldViolation
	Cause      error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Code)
	if e.Operation != "" {
		fmt.Fprintf(&b, " %s:", e.Operation)
	}
	fmt.Fprintf(&b, " %s", e.Message)
	if len(e.Violations) > 0 {
		parts := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			parts = append(parts, v.String())
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, "; "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Validation creates a validation error listing every violated field.
func Validation(violations []FieldViolation) *EngineError {
	return &EngineError{
		Code:       ErrCodeValidationFailed,
		Message:    "validation failed",
		Violations: violations,
	}
}

// Persistence creates a local store I/O error.
func Persistence(operation string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrCodePersistenceFailed,
		Message:   "local persistence failed",
		Operation: operation,
		Retryable: true,
		Cause:     cause,
	}
}

// Sync creates a remote sync error with the given classification.
func Sync(operation string, code ErrorCode, cause error) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   syncMessage(code),
		Operation: operation,
		Retryable: code == ErrCodeSyncNoConnectivity || code == ErrCodeSyncFailed,
		Cause:     cause,
	}
}

// Conflict creates a manual-resolution conflict error.
func Conflict(reason string) *EngineError {
	return &EngineError{
		Code:    ErrCodeConflictManual,
		Message: reason,
	}
}

// Corrupted creates a local corruption error.
func Corrupted(operation string, cause error) *EngineError {
	return &EngineError{
		Code:      ErrCodeCorruptedState,
		Message:   "local document is corrupted",
		Operation: operation,
		Cause:     cause,
	}
}

func syncMessage(code ErrorCode) string {
	switch code {
	case ErrCodeSyncNoConnectivity:
		return "no network connectivity"
	case ErrCodeSyncRejected:
		return "remote store rejected the document"
	default:
		return "remote sync failed"
	}
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns an empty code when err carries no EngineError.
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsRetryable reports whether err should feed the retry/backoff path.
// Unclassified errors are treated as retryable so transient driver errors
// do not permanently fail a sync operation.
func IsRetryable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return true
}
