// Package syncer keeps local preference documents converged with the remote
// store. It owns the push/pull state machine, retry with exponential
// backoff, and conflict resolution; local writes never wait for it.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
	"github.com/sestako/eunio-app-sub009/internal/observability"
	"github.com/sestako/eunio-app-sub009/remote"
	"github.com/sestako/eunio-app-sub009/store"
)

var errDeviceOffline = errors.New("device reports no connectivity")

// Documents is the slice of the preference store the coordinator needs.
// *store.Store satisfies it.
type Documents interface {
	GetPreferenceDocument(ctx context.Context, userID string) (*store.PreferenceDocument, error)
	ApplyResolved(ctx context.Context, winner *store.PreferenceDocument, status store.SyncStatus) (*store.PreferenceDocument, error)
	MarkSyncStatus(ctx context.Context, userID string, status store.SyncStatus) error
}

// Options tunes the coordinator.
type Options struct {
	Backoff Backoff
	// MaxAttempts is the push attempt budget before a document is marked
	// Failed.
	MaxAttempts int
	// PushRate and PushBurst throttle outbound pushes.
	PushRate  rate.Limit
	PushBurst int
}

// DefaultOptions returns the production sync policy.
func DefaultOptions() Options {
	return Options{
		Backoff:     DefaultBackoff(),
		MaxAttempts: 5,
		PushRate:    rate.Every(2 * time.Second),
		PushBurst:   3,
	}
}

// userSync is the per-user slice of coordinator state: the single-slot
// pending queue and the state machine position, guarded by its own mutex.
type userSync struct {
	userID string

	mu      sync.Mutex
	state   State
	pending *Operation

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func (u *userSync) setState(s State) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
}

func (u *userSync) getState() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// setPending replaces the queued operation. Only the latest write matters;
// a superseded push is dropped, never executed.
func (u *userSync) setPending(op *Operation) {
	u.mu.Lock()
	u.pending = op
	u.mu.Unlock()
	select {
	case u.wake <- struct{}{}:
	default:
	}
}

func (u *userSync) takePending() *Operation {
	u.mu.Lock()
	defer u.mu.Unlock()
	op := u.pending
	u.pending = nil
	return op
}

func (u *userSync) hasPending() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.pending != nil
}

// Coordinator orchestrates pushes and pulls for every signed-in user. One
// goroutine per user drains that user's single-slot queue; cancellation of
// one user never disturbs another.
type Coordinator struct {
	docs    Documents
	remote  remote.Store
	signal  ConnectivitySignal
	logger  *slog.Logger
	opts    Options
	limiter *rate.Limiter

	mu     sync.Mutex
	users  map[string]*userSync
	closed bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	events chan Event
}

// New creates a coordinator. Close must be called to release its goroutines.
func New(docs Documents, remoteStore remote.Store, signal ConnectivitySignal, logger *slog.Logger, opts Options) *Coordinator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.PushRate == 0 {
		opts.PushRate = rate.Inf
	}
	if opts.PushBurst <= 0 {
		opts.PushBurst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		docs:       docs,
		remote:     remoteStore,
		signal:     signal,
		logger:     logger,
		opts:       opts,
		limiter:    rate.NewLimiter(opts.PushRate, opts.PushBurst),
		users:      make(map[string]*userSync),
		rootCtx:    ctx,
		rootCancel: cancel,
		events:     make(chan Event, 64),
	}
}

// Events exposes the observable result/error stream. Entries are dropped,
// oldest first, if nobody drains it; sync never blocks on observers.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// State reports the user's state machine position.
func (c *Coordinator) State(userID string) State {
	c.mu.Lock()
	u, ok := c.users[userID]
	c.mu.Unlock()
	if !ok {
		return StateIdle
	}
	return u.getState()
}

// SchedulePush implements store.PushScheduler. It replaces any queued push
// for the user and wakes the worker; if the worker is idle the push starts
// immediately.
func (c *Coordinator) SchedulePush(userID string) {
	u := c.user(userID)
	if u == nil {
		return
	}
	u.setPending(&Operation{
		Kind:       OperationPush,
		UserID:     userID,
		EnqueuedAt: time.Now(),
	})
}

// CancelUser stops the user's sync loop, e.g. on sign-out. An in-flight
// push is aborted and the document stays Pending; no partially applied
// state survives.
func (c *Coordinator) CancelUser(userID string) {
	c.mu.Lock()
	u, ok := c.users[userID]
	if ok {
		delete(c.users, userID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	u.cancel()
	<-u.done
}

// Close cancels every user loop and closes the event stream.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.users = make(map[string]*userSync)
	c.mu.Unlock()

	c.rootCancel()
	c.wg.Wait()
	close(c.events)
}

func (c *Coordinator) user(userID string) *userSync {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if u, ok := c.users[userID]; ok {
		return u
	}

	ctx, cancel := context.WithCancel(c.rootCtx)
	u := &userSync{
		userID: userID,
		state:  StateIdle,
		wake:   make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.users[userID] = u
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, u)
	}()
	return u
}

func (c *Coordinator) run(ctx context.Context, u *userSync) {
	defer close(u.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.wake:
		}
		for {
			op := u.takePending()
			if op == nil {
				break
			}
			c.processPush(ctx, u, op)
			if ctx.Err() != nil {
				return
			}
		}
		u.setState(StateIdle)
	}
}

// processPush drives one operation through the state machine until success,
// fatal classification, cancellation, or supersession by a newer write.
func (c *Coordinator) processPush(ctx context.Context, u *userSync, op *Operation) {
	syncID := observability.NewSyncID()
	log := c.logger.With(
		slog.String(observability.LogFieldUserID, op.UserID),
		slog.String(observability.LogFieldSyncID, syncID))

	for {
		// A newer write supersedes this operation entirely.
		if u.hasPending() {
			return
		}

		u.setState(StatePushing)
		err := c.attemptPush(ctx, op)
		if err == nil {
			if err := c.docs.MarkSyncStatus(ctx, op.UserID, store.SyncStatusSynced); err != nil {
				log.Error("push succeeded but status update failed", slog.String("error", err.Error()))
			}
			u.setState(StateIdle)
			c.emit(Event{Kind: EventPushSucceeded, UserID: op.UserID, Attempt: op.Attempt, At: time.Now()})
			log.Info("push succeeded", slog.Int(observability.LogFieldAttempt, op.Attempt))
			return
		}

		if ctx.Err() != nil {
			c.revertToPending(op.UserID)
			return
		}

		op.LastErr = err
		if !apperrors.IsRetryable(err) {
			c.failOperation(ctx, u, op, log)
			return
		}

		op.Attempt++
		if op.Attempt >= c.opts.MaxAttempts {
			c.failOperation(ctx, u, op, log)
			return
		}

		delay := c.opts.Backoff.Delay(op.Attempt)
		op.NextEligibleAt = time.Now().Add(delay)
		u.setState(StateWaitingForNetwork)
		c.emit(Event{Kind: EventPushRetrying, UserID: op.UserID, Attempt: op.Attempt, Err: err, At: time.Now()})
		log.Warn("push failed, waiting to retry",
			slog.Int(observability.LogFieldAttempt, op.Attempt),
			slog.Duration("delay", delay),
			slog.String(observability.LogFieldErrorCode, string(apperrors.CodeOf(err))),
			slog.String("error", err.Error()))

		if !c.waitForRetry(ctx, u, op) {
			if ctx.Err() != nil {
				c.revertToPending(op.UserID)
			}
			return
		}
	}
}

func (c *Coordinator) failOperation(ctx context.Context, u *userSync, op *Operation, log *slog.Logger) {
	if err := c.docs.MarkSyncStatus(ctx, op.UserID, store.SyncStatusFailed); err != nil {
		log.Error("failed to mark document failed", slog.String("error", err.Error()))
	}
	u.setState(StateIdle)
	c.emit(Event{Kind: EventPushFailed, UserID: op.UserID, Attempt: op.Attempt, Err: op.LastErr, At: time.Now()})
	log.Error("push gave up",
		slog.Int(observability.LogFieldAttempt, op.Attempt),
		slog.String(observability.LogFieldErrorCode, string(apperrors.CodeOf(op.LastErr))),
		slog.String("error", op.LastErr.Error()))
}

// attemptPush performs exactly one push attempt.
func (c *Coordinator) attemptPush(ctx context.Context, op *Operation) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.Sync("push_document", apperrors.ErrCodeSyncFailed, err)
	}
	if !c.signal.Online() {
		return apperrors.Sync("push_document", apperrors.ErrCodeSyncNoConnectivity, errDeviceOffline)
	}

	doc, err := c.docs.GetPreferenceDocument(ctx, op.UserID)
	if err != nil {
		return err
	}
	if doc.SyncStatus == store.SyncStatusSynced {
		return nil
	}
	return c.remote.PushDocument(ctx, doc)
}

// waitForRetry parks the operation until connectivity is present and the
// backoff window has elapsed. It is event-driven: a connectivity change or
// the backoff timer re-evaluates the condition; there is no blind sleep
// loop. Returns false when canceled or superseded.
func (c *Coordinator) waitForRetry(ctx context.Context, u *userSync, op *Operation) bool {
	sub, cancel := c.signal.Subscribe()
	defer cancel()

	for {
		if u.hasPending() {
			return false
		}
		wait := time.Until(op.NextEligibleAt)
		if c.signal.Online() && wait <= 0 {
			return true
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return false
		case <-sub:
		case <-timerC:
		case <-u.wake:
			// Re-checks hasPending at the top of the loop.
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// revertToPending restores the document to Pending after a canceled
// in-flight push, using a fresh context because the loop's one is gone.
func (c *Coordinator) revertToPending(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.docs.MarkSyncStatus(ctx, userID, store.SyncStatusPending); err != nil {
		c.logger.Error("failed to revert document to pending",
			slog.String(observability.LogFieldUserID, userID),
			slog.String("error", err.Error()))
	}
}

// RecoverFromSyncFailure waits for connectivity, then performs one push
// attempt. It never no-ops while offline: the wait is event-driven and
// bounded only by ctx.
func (c *Coordinator) RecoverFromSyncFailure(ctx context.Context, userID string) error {
	sub, cancel := c.signal.Subscribe()
	defer cancel()

	for !c.signal.Online() {
		select {
		case <-ctx.Done():
			return apperrors.Sync("recover_from_sync_failure", apperrors.ErrCodeSyncNoConnectivity, ctx.Err())
		case <-sub:
		}
	}
	return c.pushOnce(ctx, userID)
}

func (c *Coordinator) pushOnce(ctx context.Context, userID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.Sync("push_document", apperrors.ErrCodeSyncFailed, err)
	}

	doc, err := c.docs.GetPreferenceDocument(ctx, userID)
	if err != nil {
		return err
	}
	if doc.SyncStatus == store.SyncStatusSynced {
		return nil
	}

	if err := c.remote.PushDocument(ctx, doc); err != nil {
		if !apperrors.IsRetryable(err) {
			if markErr := c.docs.MarkSyncStatus(ctx, userID, store.SyncStatusFailed); markErr != nil {
				c.logger.Error("failed to mark document failed",
					slog.String(observability.LogFieldUserID, userID),
					slog.String("error", markErr.Error()))
			}
		}
		return err
	}

	c.emit(Event{Kind: EventPushSucceeded, UserID: userID, At: time.Now()})
	return c.docs.MarkSyncStatus(ctx, userID, store.SyncStatusSynced)
}

// Pull fetches the remote document, resolves it against the local one and
// applies the winner. Triggered on login, by the periodic timer, or by an
// explicit refresh; reason only feeds the logs.
func (c *Coordinator) Pull(ctx context.Context, userID string, reason string) error {
	u := c.user(userID)
	if u != nil {
		u.setState(StatePulling)
		defer u.setState(StateIdle)
	}

	remoteDoc, err := c.remote.PullDocument(ctx, userID)
	if err != nil {
		return err
	}
	local, err := c.docs.GetPreferenceDocument(ctx, userID)
	if err != nil {
		return err
	}

	if remoteDoc == nil {
		if local.SyncStatus != store.SyncStatusSynced {
			c.SchedulePush(userID)
		}
		return nil
	}

	decision := Resolve(local, remoteDoc)
	c.logger.Debug("pull resolved",
		slog.String(observability.LogFieldUserID, userID),
		slog.String("trigger", reason),
		slog.String("strategy", string(decision.Strategy)),
		slog.String("reason", decision.Reason))

	if decision.Strategy == StrategyManualRequired {
		if err := c.docs.MarkSyncStatus(ctx, userID, store.SyncStatusConflicted); err != nil {
			return err
		}
		c.emit(Event{Kind: EventConflict, UserID: userID, At: time.Now()})
		return apperrors.Conflict(decision.Reason)
	}

	if decision.PushNeeded {
		c.SchedulePush(userID)
		return nil
	}

	if _, err := c.docs.ApplyResolved(ctx, decision.Winner, store.SyncStatusSynced); err != nil {
		return err
	}
	c.emit(Event{Kind: EventPullApplied, UserID: userID, At: time.Now()})
	return nil
}

// emit publishes on the event stream, dropping the oldest entry when full.
// The send happens under c.mu so it can never race Close closing the
// channel; events arriving after Close are dropped.
func (c *Coordinator) emit(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- e:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- e:
		default:
		}
	}
}
