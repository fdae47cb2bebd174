package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
	"github.com/sestako/eunio-app-sub009/internal/observability"
	"github.com/sestako/eunio-app-sub009/internal/profile"
	"github.com/sestako/eunio-app-sub009/store/cache"
)

var errNoSnapshotter = errors.New("no snapshotter configured")

// MergeStrategy controls how an imported snapshot is combined with the
// document already on the device.
type MergeStrategy string

const (
	// MergeReplace discards the local document in favor of the import.
	MergeReplace MergeStrategy = "REPLACE"
	// MergeKeepNewer keeps whichever document was modified last.
	MergeKeepNewer MergeStrategy = "KEEP_NEWER"
)

// Snapshotter captures backup snapshots and serves export/import. Implemented
// by the backup manager; the store only ever calls through this interface.
type Snapshotter interface {
	// CreateAutomatic captures a fire-and-forget snapshot. Failures are
	// logged by the implementation and never propagate to the caller.
	CreateAutomatic(ctx context.Context, doc *PreferenceDocument)
	Export(ctx context.Context, userID string, includeMetadata bool) ([]byte, error)
	Import(ctx context.Context, userID string, data []byte, strategy MergeStrategy) (*PreferenceDocument, error)
}

// PushScheduler signals that a user's document needs to reach the remote
// store. Implemented by the sync coordinator.
type PushScheduler interface {
	SchedulePush(userID string)
}

// NotificationScheduler re-registers OS notifications after the notification
// section changes. Consumed, not implemented, by this engine.
type NotificationScheduler interface {
	Reschedule(ctx context.Context, userID string, prefs NotificationPreferences) error
}

// Store is the preference store facade: the single entry point for reading
// and mutating a user's PreferenceDocument. It composes the TTL cache, the
// local persistence driver, the backup snapshotter and the push scheduler.
//
// All mutation for one user is serialized through that user's mutex. Callers
// always receive copies and must go through the update methods to mutate.
type Store struct {
	profile *profile.Profile
	driver  Driver
	logger  *slog.Logger

	cacheConfig cache.Config
	docCache    *cache.Cache
	watcher     *watcher

	userLocks sync.Map // userID -> *sync.Mutex

	snapshotter   Snapshotter
	pushScheduler PushScheduler
	notifications NotificationScheduler
}

// New creates a new instance of Store.
func New(driver Driver, p *profile.Profile, logger *slog.Logger) *Store {
	s := &Store{
		profile: p,
		driver:  driver,
		logger:  logger,
		watcher: newWatcher(),
	}
	s.cacheConfig = cache.Config{
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
		MaxItems:        1000,
		OnSet: func(_ string, value any) {
			if doc, ok := value.(*PreferenceDocument); ok {
				s.watcher.publish(doc)
			}
		},
	}
	s.docCache = cache.New(s.cacheConfig)
	return s
}

// SetSnapshotter wires the backup manager. Optional; without it mutations
// simply skip the automatic snapshot.
func (s *Store) SetSnapshotter(snapshotter Snapshotter) {
	s.snapshotter = snapshotter
}

// SetPushScheduler wires the sync coordinator. Optional for offline use.
func (s *Store) SetPushScheduler(scheduler PushScheduler) {
	s.pushScheduler = scheduler
}

// SetNotificationScheduler wires the OS notification scheduler.
func (s *Store) SetNotificationScheduler(scheduler NotificationScheduler) {
	s.notifications = scheduler
}

// GetDriver returns the underlying persistence driver.
func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	s.docCache.Close()
	return s.driver.Close()
}

// lockUser serializes all mutation for one user's document.
func (s *Store) lockUser(userID string) func() {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GetPreferenceDocument resolves cache, then local store, then persisted
// defaults. Absence never surfaces to callers: a user without settings gets
// a defaulted, persisted document.
func (s *Store) GetPreferenceDocument(ctx context.Context, userID string) (*PreferenceDocument, error) {
	unlock := s.lockUser(userID)
	defer unlock()
	doc, err := s.getLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

func (s *Store) getLocked(ctx context.Context, userID string) (*PreferenceDocument, error) {
	if v, ok := s.docCache.Get(ctx, userID); ok {
		return v.(*PreferenceDocument), nil
	}

	doc, err := s.driver.GetPreferenceDocument(ctx, &FindPreferenceDocument{UserID: &userID})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeCorruptedState {
			return nil, err
		}
		return nil, apperrors.Persistence("get_preference_document", err)
	}
	if doc == nil {
		doc = DefaultPreferenceDocument(userID)
		if err := doc.Validate(); err != nil {
			return nil, err
		}
		if _, err := s.driver.UpsertPreferenceDocument(ctx, doc); err != nil {
			return nil, apperrors.Persistence("persist_default_document", err)
		}
		s.logger.Info("persisted default preferences",
			slog.String(observability.LogFieldUserID, userID))
	}

	s.watcher.seed(doc)
	s.docCache.Set(ctx, userID, doc)
	return doc, nil
}

// UpdateUnitPreferences replaces the unit section.
func (s *Store) UpdateUnitPreferences(ctx context.Context, userID string, update UnitPreferences) (*PreferenceDocument, error) {
	return s.updateSection(ctx, userID, SectionUnit, func(doc *PreferenceDocument) {
		doc.Unit = update
	})
}

// UpdateNotificationPreferences replaces the notification section and asks
// the OS scheduler to re-register reminders. A scheduler failure is logged
// and never fails the settings update.
func (s *Store) UpdateNotificationPreferences(ctx context.Context, userID string, update NotificationPreferences) (*PreferenceDocument, error) {
	doc, err := s.updateSection(ctx, userID, SectionNotification, func(doc *PreferenceDocument) {
		doc.Notification = update
	})
	if err != nil {
		return nil, err
	}
	if s.notifications != nil {
		if err := s.notifications.Reschedule(ctx, userID, doc.Notification); err != nil {
			s.logger.Warn("failed to reschedule notifications",
				slog.String(observability.LogFieldUserID, userID),
				slog.String("error", err.Error()))
		}
	}
	return doc, nil
}

// UpdateCyclePreferences replaces the cycle section.
func (s *Store) UpdateCyclePreferences(ctx context.Context, userID string, update CyclePreferences) (*PreferenceDocument, error) {
	return s.updateSection(ctx, userID, SectionCycle, func(doc *PreferenceDocument) {
		doc.Cycle = update
	})
}

// UpdatePrivacyPreferences replaces the privacy section.
func (s *Store) UpdatePrivacyPreferences(ctx context.Context, userID string, update PrivacyPreferences) (*PreferenceDocument, error) {
	return s.updateSection(ctx, userID, SectionPrivacy, func(doc *PreferenceDocument) {
		doc.Privacy = update
	})
}

// UpdateDisplayPreferences replaces the display section.
func (s *Store) UpdateDisplayPreferences(ctx context.Context, userID string, update DisplayPreferences) (*PreferenceDocument, error) {
	return s.updateSection(ctx, userID, SectionDisplay, func(doc *PreferenceDocument) {
		doc.Display = update
	})
}

// UpdateSyncPreferences replaces the sync policy section.
func (s *Store) UpdateSyncPreferences(ctx context.Context, userID string, update SyncPreferences) (*PreferenceDocument, error) {
	return s.updateSection(ctx, userID, SectionSync, func(doc *PreferenceDocument) {
		doc.Sync = update
	})
}

// updateSection is the single write path: validate, persist locally, update
// cache, emit on the change stream, snapshot asynchronously and schedule a
// push. It returns once local persistence succeeded; remote confirmation is
// never awaited.
func (s *Store) updateSection(ctx context.Context, userID string, section Section, apply func(*PreferenceDocument)) (*PreferenceDocument, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	current, err := s.getLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	apply(next)
	if err := next.Validate(); err != nil {
		return nil, err
	}

	s.bump(current, next)
	next.SyncStatus = SyncStatusPending

	if _, err := s.driver.UpsertPreferenceDocument(ctx, next); err != nil {
		return nil, apperrors.Persistence("upsert_preference_document", err)
	}
	s.docCache.Set(ctx, userID, next)

	s.logger.Debug("preference section updated",
		slog.String(observability.LogFieldUserID, userID),
		slog.String(observability.LogFieldSection, string(section)),
		slog.Int64("revision", next.Revision))

	if s.snapshotter != nil {
		s.snapshotter.CreateAutomatic(ctx, next.Clone())
	}
	if s.pushScheduler != nil && next.Sync.AutoSyncEnabled {
		s.pushScheduler.SchedulePush(userID)
	}
	return next.Clone(), nil
}

// bump advances the write metadata. LastModified strictly increases even
// when the wall clock stalls or runs backwards.
func (*Store) bump(current, next *PreferenceDocument) {
	next.LastModified = time.Now().UnixMilli()
	if next.LastModified <= current.LastModified {
		next.LastModified = current.LastModified + 1
	}
	next.Revision = current.Revision + 1
}

// ResetToDefaults replaces the document with defaults, optionally carrying
// the unit section forward. Always succeeds locally.
func (s *Store) ResetToDefaults(ctx context.Context, userID string, preserveUnitPreferences bool) (*PreferenceDocument, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	current, err := s.getLocked(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := DefaultPreferenceDocument(userID)
	if preserveUnitPreferences {
		next.Unit = current.Unit
	}
	s.bump(current, next)
	next.SyncStatus = SyncStatusPending

	if _, err := s.driver.UpsertPreferenceDocument(ctx, next); err != nil {
		return nil, apperrors.Persistence("reset_preference_document", err)
	}
	s.docCache.Set(ctx, userID, next)

	if s.snapshotter != nil {
		s.snapshotter.CreateAutomatic(ctx, next.Clone())
	}
	if s.pushScheduler != nil {
		s.pushScheduler.SchedulePush(userID)
	}
	return next.Clone(), nil
}

// ObserveChanges returns a hot stream with replay-latest semantics: the
// subscriber immediately receives the current document, then every change.
// The cancel func tears down only this subscription.
func (s *Store) ObserveChanges(ctx context.Context, userID string) (<-chan *PreferenceDocument, func(), error) {
	// Resolving first guarantees there is a current value to replay.
	if _, err := s.GetPreferenceDocument(ctx, userID); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.watcher.subscribe(userID)
	return ch, cancel, nil
}

// ExportSnapshot delegates to the backup manager.
func (s *Store) ExportSnapshot(ctx context.Context, userID string, includeMetadata bool) ([]byte, error) {
	if s.snapshotter == nil {
		return nil, apperrors.Persistence("export_snapshot", errNoSnapshotter)
	}
	return s.snapshotter.Export(ctx, userID, includeMetadata)
}

// ImportSnapshot delegates to the backup manager, which revalidates the data
// before anything is applied.
func (s *Store) ImportSnapshot(ctx context.Context, userID string, data []byte, strategy MergeStrategy) (*PreferenceDocument, error) {
	if s.snapshotter == nil {
		return nil, apperrors.Persistence("import_snapshot", errNoSnapshotter)
	}
	return s.snapshotter.Import(ctx, userID, data, strategy)
}

// ImportDocument applies an already-decoded document according to the merge
// strategy. Used by the backup manager's import and restore paths.
func (s *Store) ImportDocument(ctx context.Context, doc *PreferenceDocument, strategy MergeStrategy) (*PreferenceDocument, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	unlock := s.lockUser(doc.UserID)
	defer unlock()

	current, err := s.getLocked(ctx, doc.UserID)
	if err != nil {
		return nil, err
	}

	if strategy == MergeKeepNewer && current.LastModified >= doc.LastModified {
		return current.Clone(), nil
	}

	// Snapshot the pre-import state so a bad import can be undone.
	if s.snapshotter != nil {
		s.snapshotter.CreateAutomatic(ctx, current.Clone())
	}

	next := doc.Clone()
	s.bump(current, next)
	next.SyncStatus = SyncStatusPending

	if _, err := s.driver.UpsertPreferenceDocument(ctx, next); err != nil {
		return nil, apperrors.Persistence("import_preference_document", err)
	}
	s.docCache.Set(ctx, doc.UserID, next)

	if s.pushScheduler != nil {
		s.pushScheduler.SchedulePush(doc.UserID)
	}
	return next.Clone(), nil
}

// ApplyResolved persists a conflict resolver winner with the given sync
// status. Write metadata is taken from the winner as-is; resolution must not
// look like a new local edit.
func (s *Store) ApplyResolved(ctx context.Context, winner *PreferenceDocument, status SyncStatus) (*PreferenceDocument, error) {
	unlock := s.lockUser(winner.UserID)
	defer unlock()

	next := winner.Clone()
	next.SyncStatus = status
	if _, err := s.driver.UpsertPreferenceDocument(ctx, next); err != nil {
		return nil, apperrors.Persistence("apply_resolved_document", err)
	}
	s.docCache.Set(ctx, winner.UserID, next)
	return next.Clone(), nil
}

// MarkSyncStatus updates only the document's sync status.
func (s *Store) MarkSyncStatus(ctx context.Context, userID string, status SyncStatus) error {
	unlock := s.lockUser(userID)
	defer unlock()

	current, err := s.getLocked(ctx, userID)
	if err != nil {
		return err
	}
	if current.SyncStatus == status {
		return nil
	}

	next := current.Clone()
	next.SyncStatus = status
	if _, err := s.driver.UpsertPreferenceDocument(ctx, next); err != nil {
		return apperrors.Persistence("mark_sync_status", err)
	}
	s.docCache.Set(ctx, userID, next)
	return nil
}
