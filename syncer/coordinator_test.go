package syncer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
	"github.com/sestako/eunio-app-sub009/remote"
	"github.com/sestako/eunio-app-sub009/store"
)

// fakeDocs is an in-memory Documents implementation so coordinator tests
// run without a database.
type fakeDocs struct {
	mu   sync.Mutex
	docs map[string]*store.PreferenceDocument
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: make(map[string]*store.PreferenceDocument)}
}

func (f *fakeDocs) put(doc *store.PreferenceDocument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.UserID] = doc.Clone()
}

func (f *fakeDocs) GetPreferenceDocument(_ context.Context, userID string) (*store.PreferenceDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[userID]; ok {
		return doc.Clone(), nil
	}
	doc := store.DefaultPreferenceDocument(userID)
	f.docs[userID] = doc
	return doc.Clone(), nil
}

func (f *fakeDocs) ApplyResolved(_ context.Context, winner *store.PreferenceDocument, status store.SyncStatus) (*store.PreferenceDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := winner.Clone()
	next.SyncStatus = status
	f.docs[winner.UserID] = next
	return next.Clone(), nil
}

func (f *fakeDocs) MarkSyncStatus(_ context.Context, userID string, status store.SyncStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[userID]; ok {
		doc.SyncStatus = status
	}
	return nil
}

func (f *fakeDocs) status(userID string) store.SyncStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[userID]; ok {
		return doc.SyncStatus
	}
	return ""
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOptions() Options {
	return Options{
		Backoff:     Backoff{Base: 5 * time.Millisecond, Factor: 2, Cap: 50 * time.Millisecond},
		MaxAttempts: 5,
		PushRate:    rate.Inf,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSchedulePushReachesRemote(t *testing.T) {
	docs := newFakeDocs()
	rs := remote.NewMemoryStore()
	c := New(docs, rs, NewMonitor(true), testLogger(), fastOptions())
	defer c.Close()

	pending := store.DefaultPreferenceDocument("u1")
	pending.Display.Theme = "dark"
	docs.put(pending)

	c.SchedulePush("u1")

	waitFor(t, func() bool { return docs.status("u1") == store.SyncStatusSynced },
		"document never reached SYNCED")
	remoteDoc := rs.Document("u1")
	require.NotNil(t, remoteDoc)
	assert.Equal(t, "dark", remoteDoc.Display.Theme)
}

func TestOfflinePushWaitsForConnectivity(t *testing.T) {
	docs := newFakeDocs()
	rs := remote.NewMemoryStore()
	monitor := NewMonitor(false)
	c := New(docs, rs, monitor, testLogger(), fastOptions())
	defer c.Close()

	docs.put(store.DefaultPreferenceDocument("u1"))
	c.SchedulePush("u1")

	waitFor(t, func() bool { return c.State("u1") == StateWaitingForNetwork },
		"push never parked for network")
	assert.Equal(t, 0, rs.PushCount(), "no push may leave the device while offline")
	assert.Equal(t, store.SyncStatusPending, docs.status("u1"))

	monitor.Set(true)
	waitFor(t, func() bool { return docs.status("u1") == store.SyncStatusSynced },
		"reconnect did not trigger the pending push")
	assert.Equal(t, 1, rs.PushCount(), "exactly one push after reconnect")
}

func TestPushGivesUpAfterAttemptBudget(t *testing.T) {
	docs := newFakeDocs()
	rs := remote.NewMemoryStore()
	rs.SetError(apperrors.Sync("push_document", apperrors.ErrCodeSyncFailed, nil))
	c := New(docs, rs, NewMonitor(true), testLogger(), fastOptions())
	defer c.Close()

	docs.put(store.DefaultPreferenceDocument("u1"))

	var retries, failures int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range c.Events() {
			switch event.Kind {
			case EventPushRetrying:
				retries++
			case EventPushFailed:
				failures++
				return
			}
		}
	}()

	c.SchedulePush("u1")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("push never gave up")
	}

	assert.Equal(t, 4, retries, "five attempts mean four retry waits")
	assert.Equal(t, 1, failures)
	assert.Equal(t, 5, rs.PushCount())
	assert.Equal(t, store.SyncStatusFailed, docs.status("u1"))
}

func TestRejectedPushFailsWithoutRetry(t *testing.T) {
	docs := newFakeDocs()
	rs := remote.NewMemoryStore()
	rs.FailNext(1, apperrors.Sync("push_document", apperrors.ErrCodeSyncRejected, nil))
	c := New(docs, rs, NewMonitor(true), testLogger(), fastOptions())
	defer c.Close()

	docs.put(store.DefaultPreferenceDocument("u1"))
	c.SchedulePush("u1")

	waitFor(t, func() bool { return docs.status("u1") == store.SyncStatusFailed },
		"rejected push never marked FAILED")
	assert.Equal(t, 1, rs.PushCount(), "a rejection must not be retried")
}

func TestNewerWriteSupersedesQueuedPush(t *testing.T) {
	docs := newFakeDocs()
	rs := remote.NewMemoryStore()
	monitor := NewMonitor(false)
	c := New(docs, rs, monitor, testLogger(), fastOptions())
	defer c.Close()

	first := store.DefaultPreferenceDocument("u1")
	first.Display.Theme = "dark"
	docs.put(first)
	c.SchedulePush("u1")

	waitFor(t, func() bool { return c.State("u1") == StateWaitingForNetwork },
		"push never parked for network")

	second := first.Clone()
	second.Display.Theme = "light"
	second.LastModified++
	second.Revision++
	docs.put(second)
	c.SchedulePush("u1")

	monitor.Set(true)
	waitFor(t, func() bool { return docs.status("u1") == store.SyncStatusSynced },
		"superseding push never completed")
	remoteDoc := rs.Document("u1")
	require.NotNil(t, remoteDoc)
	assert.Equal(t, "light", remoteDoc.Display.Theme, "only the latest write may be pushed")
}

func TestRecoverFromSyncFailureWaitsForNetwork(t *testing.T) {
	docs := newFakeDocs()
	rs := remote.NewMemoryStore()
	monitor := NewMonitor(false)
	c := New(docs, rs, monitor, testLogger(), fastOptions())
	defer c.Close()

	doc := store.DefaultPreferenceDocument("u1")
	doc.SyncStatus = store.SyncStatusFailed
	docs.put(doc)

	result := make(chan error, 1)
	go func() { result <- c.RecoverFromSyncFailure(context.Background(), "u1") }()

	select {
	case err := <-result:
		t.Fatalf("recovery returned while offline: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	monitor.Set(true)
	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("recovery never completed after reconnect")
	}
	assert.Equal(t, store.SyncStatusSynced, docs.status("u1"))
}

func TestRecoverFromSyncFailureHonorsContext(t *testing.T) {
	docs := newFakeDocs()
	c := New(docs, remote.NewMemoryStore(), NewMonitor(false), testLogger(), fastOptions())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.RecoverFromSyncFailure(ctx, "u1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSyncNoConnectivity, apperrors.CodeOf(err))
}

func TestPullAdoptsNewerRemote(t *testing.T) {
	docs := newFakeDocs()
	rs := remote.NewMemoryStore()
	c := New(docs, rs, NewMonitor(true), testLogger(), fastOptions())
	defer c.Close()

	local := store.DefaultPreferenceDocument("u1")
	local.LastModified = 1000
	local.SyncStatus = store.SyncStatusSynced
	docs.put(local)

	remoteDoc := local.Clone()
	remoteDoc.Display.Theme = "dark"
	remoteDoc.LastModified = 2000
	remoteDoc.Revision++
	rs.SetDocument(remoteDoc)

	require.NoError(t, c.Pull(context.Background(), "u1", "test"))

	got, err := docs.GetPreferenceDocument(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "dark", got.Display.Theme)
	assert.Equal(t, store.SyncStatusSynced, got.SyncStatus)
}

func TestPullSchedulesPushWhenLocalNewer(t *testing.T) {
	docs := newFakeDocs()
	rs := remote.NewMemoryStore()
	c := New(docs, rs, NewMonitor(true), testLogger(), fastOptions())
	defer c.Close()

	local := store.DefaultPreferenceDocument("u1")
	local.LastModified = 3000
	local.Display.Theme = "light"
	docs.put(local)

	remoteDoc := store.DefaultPreferenceDocument("u1")
	remoteDoc.LastModified = 2000
	rs.SetDocument(remoteDoc)

	require.NoError(t, c.Pull(context.Background(), "u1", "test"))

	waitFor(t, func() bool {
		d := rs.Document("u1")
		return d != nil && d.Display.Theme == "light"
	}, "local winner never pushed to remote")
}

func TestPullPrivacyConflictNeedsManualResolution(t *testing.T) {
	docs := newFakeDocs()
	rs := remote.NewMemoryStore()
	c := New(docs, rs, NewMonitor(true), testLogger(), fastOptions())
	defer c.Close()

	local := store.DefaultPreferenceDocument("u1")
	local.LastModified = 1000
	local.Privacy.AppLockEnabled = true
	docs.put(local)

	remoteDoc := store.DefaultPreferenceDocument("u1")
	remoteDoc.LastModified = 1000
	remoteDoc.Privacy.AppLockEnabled = false
	remoteDoc.Privacy.AnalyticsOptIn = true
	rs.SetDocument(remoteDoc)

	err := c.Pull(context.Background(), "u1", "test")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflictManual, apperrors.CodeOf(err))
	assert.Equal(t, store.SyncStatusConflicted, docs.status("u1"))

	// The local document content stays untouched until the user decides.
	got, gerr := docs.GetPreferenceDocument(context.Background(), "u1")
	require.NoError(t, gerr)
	assert.True(t, got.Privacy.AppLockEnabled)
}

// A periodic pull firing during shutdown must not touch the closed event
// stream.
func TestPullAfterCloseDoesNotPanic(t *testing.T) {
	docs := newFakeDocs()
	rs := remote.NewMemoryStore()
	c := New(docs, rs, NewMonitor(true), testLogger(), fastOptions())

	local := store.DefaultPreferenceDocument("u1")
	local.LastModified = 1000
	docs.put(local)

	remoteDoc := local.Clone()
	remoteDoc.Display.Theme = "dark"
	remoteDoc.LastModified = 2000
	remoteDoc.Revision++
	rs.SetDocument(remoteDoc)

	c.Close()

	// Resolving adopts the remote winner, which emits; the event is dropped
	// instead of hitting the closed channel.
	require.NoError(t, c.Pull(context.Background(), "u1", "periodic"))

	got, err := docs.GetPreferenceDocument(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "dark", got.Display.Theme)
}

func TestCancelUserStopsWorker(t *testing.T) {
	docs := newFakeDocs()
	c := New(docs, remote.NewMemoryStore(), NewMonitor(false), testLogger(), fastOptions())
	defer c.Close()

	docs.put(store.DefaultPreferenceDocument("u1"))
	c.SchedulePush("u1")
	waitFor(t, func() bool { return c.State("u1") == StateWaitingForNetwork },
		"push never parked for network")

	c.CancelUser("u1")
	assert.Equal(t, StateIdle, c.State("u1"))
	assert.Equal(t, store.SyncStatusPending, docs.status("u1"),
		"a canceled push leaves the document pending for the next session")
}
