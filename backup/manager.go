// Package backup captures preference snapshots, enforces count-based
// retention and serves manual export/import plus the new-device restore
// path.
package backup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
	"github.com/sestako/eunio-app-sub009/internal/observability"
	"github.com/sestako/eunio-app-sub009/internal/profile"
	"github.com/sestako/eunio-app-sub009/remote"
	"github.com/sestako/eunio-app-sub009/store"
)

const defaultKeepCount = 10

// snapshotTimeout bounds the background write of an automatic snapshot.
const snapshotTimeout = 10 * time.Second

// Manager implements store.Snapshotter. Automatic snapshots run in the
// background and never fail the mutation that triggered them; manual
// export/import are synchronous.
type Manager struct {
	store      *store.Store
	driver     store.Driver
	remote     remote.Store
	logger     *slog.Logger
	appVersion string
	keepCount  int

	wg sync.WaitGroup
}

// NewManager creates a backup manager. remoteStore may be nil; then
// RestoreOnNewDevice only works with explicitly provided snapshot data.
func NewManager(s *store.Store, remoteStore remote.Store, p *profile.Profile, logger *slog.Logger) *Manager {
	keep := p.BackupKeepCount
	if keep <= 0 {
		keep = defaultKeepCount
	}
	return &Manager{
		store:      s,
		driver:     s.GetDriver(),
		remote:     remoteStore,
		logger:     logger,
		appVersion: p.Version,
		keepCount:  keep,
	}
}

// Close waits for in-flight background snapshots.
func (m *Manager) Close() {
	m.wg.Wait()
}

// CreateAutomatic implements store.Snapshotter. The snapshot is written in
// the background with its own deadline; a failure is logged and swallowed
// so the originating settings write always succeeds.
func (m *Manager) CreateAutomatic(_ context.Context, doc *store.PreferenceDocument) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()

		if _, err := m.create(ctx, doc, store.BackupKindAutomatic, false); err != nil {
			m.logger.Warn("automatic snapshot failed",
				slog.String(observability.LogFieldUserID, doc.UserID),
				slog.String("error", err.Error()))
			return
		}
		if _, err := m.Cleanup(ctx, doc.UserID); err != nil {
			m.logger.Warn("backup retention failed",
				slog.String(observability.LogFieldUserID, doc.UserID),
				slog.String("error", err.Error()))
		}
	}()
}

// CreateManual captures a snapshot of the user's current document on
// request and returns the stored record.
func (m *Manager) CreateManual(ctx context.Context, userID string) (*store.BackupRecord, error) {
	doc, err := m.store.GetPreferenceDocument(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.create(ctx, doc, store.BackupKindManual, false)
}

func (m *Manager) create(ctx context.Context, doc *store.PreferenceDocument, kind store.BackupKind, includeMetadata bool) (*store.BackupRecord, error) {
	payload, err := store.EncodeSnapshot(doc, includeMetadata, m.appVersion)
	if err != nil {
		return nil, apperrors.Persistence("encode_snapshot", err)
	}

	record, err := m.driver.CreateBackupRecord(ctx, &store.BackupRecord{
		ID:        shortuuid.New(),
		UserID:    doc.UserID,
		Kind:      kind,
		CreatedTs: time.Now().UnixMilli(),
		Payload:   payload,
		SizeBytes: int64(len(payload)),
	})
	if err != nil {
		return nil, apperrors.Persistence("create_backup_record", err)
	}

	m.logger.Debug("snapshot captured",
		slog.String(observability.LogFieldUserID, doc.UserID),
		slog.String("kind", string(kind)),
		slog.Int64("size_bytes", record.SizeBytes))
	return record, nil
}

// Export implements store.Snapshotter. It returns the portable snapshot
// encoding of the user's current document and records the export locally.
func (m *Manager) Export(ctx context.Context, userID string, includeMetadata bool) ([]byte, error) {
	doc, err := m.store.GetPreferenceDocument(ctx, userID)
	if err != nil {
		return nil, err
	}
	payload, err := store.EncodeSnapshot(doc, includeMetadata, m.appVersion)
	if err != nil {
		return nil, apperrors.Persistence("encode_snapshot", err)
	}

	// The export record is bookkeeping; a failure does not lose the export.
	if _, err := m.driver.CreateBackupRecord(ctx, &store.BackupRecord{
		ID:        shortuuid.New(),
		UserID:    userID,
		Kind:      store.BackupKindExport,
		CreatedTs: time.Now().UnixMilli(),
		Payload:   payload,
		SizeBytes: int64(len(payload)),
	}); err != nil {
		m.logger.Warn("failed to record export",
			slog.String(observability.LogFieldUserID, userID),
			slog.String("error", err.Error()))
	}
	return payload, nil
}

// Import implements store.Snapshotter. The snapshot is decoded and fully
// revalidated before anything touches the local document; an invalid
// snapshot leaves local state exactly as it was.
func (m *Manager) Import(ctx context.Context, userID string, data []byte, strategy store.MergeStrategy) (*store.PreferenceDocument, error) {
	doc, err := store.DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	// Snapshots move between devices of the same user; the import always
	// lands on the requesting user's document.
	doc.UserID = userID
	return m.store.ImportDocument(ctx, doc, strategy)
}

// RestoreOnNewDevice seeds a fresh install. With explicit snapshot data it
// behaves like Import with MergeKeepNewer; without, it pulls the user's
// latest remote backup. No remote backup means the user keeps defaults.
func (m *Manager) RestoreOnNewDevice(ctx context.Context, userID string, data []byte) (*store.PreferenceDocument, error) {
	if data == nil {
		if m.remote == nil {
			return m.store.GetPreferenceDocument(ctx, userID)
		}
		remoteData, err := m.remote.PullLatestBackup(ctx, userID)
		if err != nil {
			return nil, err
		}
		if remoteData == nil {
			m.logger.Info("no remote backup found, starting from defaults",
				slog.String(observability.LogFieldUserID, userID))
			return m.store.GetPreferenceDocument(ctx, userID)
		}
		data = remoteData
	}
	return m.Import(ctx, userID, data, store.MergeKeepNewer)
}

// ListBackups returns the user's backup records, newest first.
func (m *Manager) ListBackups(ctx context.Context, userID string, limit int) ([]*store.BackupRecord, error) {
	find := &store.FindBackupRecord{UserID: &userID}
	if limit > 0 {
		find.Limit = &limit
	}
	records, err := m.driver.ListBackupRecords(ctx, find)
	if err != nil {
		return nil, apperrors.Persistence("list_backup_records", err)
	}
	return records, nil
}

// Cleanup prunes the user's snapshots beyond the retention count, newest
// kept. Every kind counts against the budget; export and manual records
// would otherwise accumulate without bound. Idempotent: running it twice
// deletes nothing the second time.
func (m *Manager) Cleanup(ctx context.Context, userID string) (int64, error) {
	records, err := m.driver.ListBackupRecords(ctx, &store.FindBackupRecord{
		UserID: &userID,
	})
	if err != nil {
		return 0, apperrors.Persistence("list_backup_records", err)
	}
	if len(records) <= m.keepCount {
		return 0, nil
	}

	var deleted int64
	for _, record := range records[m.keepCount:] {
		id := record.ID
		n, err := m.driver.DeleteBackupRecords(ctx, &store.DeleteBackupRecord{ID: &id})
		if err != nil {
			return deleted, apperrors.Persistence("delete_backup_record", err)
		}
		deleted += n
	}
	if deleted > 0 {
		m.logger.Debug("pruned automatic snapshots",
			slog.String(observability.LogFieldUserID, userID),
			slog.Int64("deleted", deleted))
	}
	return deleted, nil
}
