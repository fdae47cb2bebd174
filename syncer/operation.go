package syncer

import "time"

// State is the per-user sync state machine position.
type State string

const (
	// StateIdle means nothing is queued or in flight.
	StateIdle State = "IDLE"
	// StatePushing means a push attempt is in flight.
	StatePushing State = "PUSHING"
	// StateWaitingForNetwork means a retryable failure is parked until
	// connectivity returns and the backoff window elapses.
	StateWaitingForNetwork State = "WAITING_FOR_NETWORK"
	// StatePulling means a remote pull is being resolved.
	StatePulling State = "PULLING"
)

// OperationKind distinguishes queued sync intents.
type OperationKind string

const (
	OperationPush OperationKind = "PUSH"
	OperationPull OperationKind = "PULL"
)

// Operation is a queued intent to reconcile a user's document with the
// remote store. It lives from enqueue until success or fatal classification.
type Operation struct {
	Kind           OperationKind
	UserID         string
	Attempt        int
	NextEligibleAt time.Time
	LastErr        error
	EnqueuedAt     time.Time
}

// EventKind labels entries on the coordinator's observable error/result
// stream.
type EventKind string

const (
	// EventPushSucceeded means the remote store accepted the document.
	EventPushSucceeded EventKind = "PUSH_SUCCEEDED"
	// EventPushRetrying means a retryable failure scheduled another attempt.
	EventPushRetrying EventKind = "PUSH_RETRYING"
	// EventPushFailed means the push gave up; the document is Failed.
	EventPushFailed EventKind = "PUSH_FAILED"
	// EventPullApplied means a remote pull was resolved and applied.
	EventPullApplied EventKind = "PULL_APPLIED"
	// EventConflict means a pull needs manual resolution.
	EventConflict EventKind = "CONFLICT"
)

// Event is one entry on the coordinator's observable stream. The UI shows
// these as non-blocking feedback; the original writer is never failed.
type Event struct {
	Kind    EventKind
	UserID  string
	Attempt int
	Err     error
	At      time.Time
}
