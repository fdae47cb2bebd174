package backup

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
	"github.com/sestako/eunio-app-sub009/internal/profile"
	"github.com/sestako/eunio-app-sub009/remote"
	"github.com/sestako/eunio-app-sub009/store"
	"github.com/sestako/eunio-app-sub009/store/db/sqlite"
)

func newTestManager(t *testing.T, remoteStore remote.Store, keep int) (*Manager, *store.Store) {
	t.Helper()
	p := &profile.Profile{
		Mode:            "dev",
		Data:            t.TempDir(),
		Driver:          "sqlite",
		BackupKeepCount: keep,
		Version:         "test",
	}
	p.DSN = filepath.Join(p.Data, "test.db")

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	require.NoError(t, driver.Migrate(context.Background()))

	s := store.New(driver, p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m := NewManager(s, remoteStore, p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.SetSnapshotter(m)
	t.Cleanup(func() {
		m.Close()
		s.Close()
	})
	return m, s
}

func TestCreateManualCapturesCurrentDocument(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t, nil, 10)

	_, err := s.UpdateDisplayPreferences(ctx, "u1", store.DisplayPreferences{Theme: "dark", FirstDayOfWeek: 1})
	require.NoError(t, err)

	record, err := m.CreateManual(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, store.BackupKindManual, record.Kind)
	assert.Equal(t, int64(len(record.Payload)), record.SizeBytes)

	decoded, err := store.DecodeSnapshot(record.Payload)
	require.NoError(t, err)
	assert.Equal(t, "dark", decoded.Display.Theme)
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t, nil, 10)

	_, err := s.UpdateUnitPreferences(ctx, "u1", store.UnitPreferences{
		UnitSystem: "imperial", TemperatureUnit: "fahrenheit",
	})
	require.NoError(t, err)

	data, err := m.Export(ctx, "u1", true)
	require.NoError(t, err)

	// Import into a fresh store, as if on a second device.
	m2, s2 := newTestManager(t, nil, 10)
	doc, err := m2.Import(ctx, "u1", data, store.MergeReplace)
	require.NoError(t, err)
	assert.Equal(t, "imperial", doc.Unit.UnitSystem)

	got, err := s2.GetPreferenceDocument(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "fahrenheit", got.Unit.TemperatureUnit)
	assert.Equal(t, store.SyncStatusPending, got.SyncStatus)
}

func TestImportInvalidSnapshotLeavesLocalUntouched(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t, nil, 10)

	before, err := s.GetPreferenceDocument(ctx, "u1")
	require.NoError(t, err)

	_, err = m.Import(ctx, "u1", []byte(`{"schemaVersion":1,"userId":"u1","cycle":{"cycleLength":99}}`), store.MergeReplace)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.CodeOf(err))

	after, err := s.GetPreferenceDocument(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision)
}

func TestCleanupRetention(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t, nil, 3)
	driver := s.GetDriver()

	// Mixed kinds: every record counts against the retention budget, or
	// export records would accumulate forever.
	kinds := []store.BackupKind{
		store.BackupKindAutomatic, store.BackupKindExport,
		store.BackupKindManual, store.BackupKindExport,
		store.BackupKindAutomatic, store.BackupKindExport,
	}
	for i, kind := range kinds {
		doc := store.DefaultPreferenceDocument("u1")
		payload, err := store.EncodeSnapshot(doc, false, "")
		require.NoError(t, err)
		_, err = driver.CreateBackupRecord(ctx, &store.BackupRecord{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			Kind:      kind,
			CreatedTs: int64(1000 + i),
			Payload:   payload,
			SizeBytes: int64(len(payload)),
		})
		require.NoError(t, err)
	}

	deleted, err := m.Cleanup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	records, err := m.ListBackups(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1005), records[0].CreatedTs, "newest snapshots survive")
	assert.Equal(t, int64(1003), records[2].CreatedTs)

	// Records for other users are untouched.
	_, err = driver.CreateBackupRecord(ctx, &store.BackupRecord{
		ID: "other", UserID: "u2", Kind: store.BackupKindAutomatic,
		CreatedTs: 1, Payload: []byte(`{}`), SizeBytes: 2,
	})
	require.NoError(t, err)
	deleted, err = m.Cleanup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted, "cleanup is idempotent")

	others, err := m.ListBackups(ctx, "u2", 0)
	require.NoError(t, err)
	assert.Len(t, others, 1)
}

func TestAutomaticSnapshotOnUpdate(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t, nil, 10)

	_, err := s.UpdateDisplayPreferences(ctx, "u1", store.DisplayPreferences{Theme: "dark", FirstDayOfWeek: 1})
	require.NoError(t, err)
	m.Close() // wait for the background snapshot

	records, err := m.ListBackups(ctx, "u1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, store.BackupKindAutomatic, records[0].Kind)
}

func TestRestoreOnNewDevice(t *testing.T) {
	ctx := context.Background()

	t.Run("FromRemoteBackup", func(t *testing.T) {
		rs := remote.NewMemoryStore()
		source := store.DefaultPreferenceDocument("u1")
		source.Display.Theme = "dark"
		source.LastModified = 99999999999
		payload, err := store.EncodeSnapshot(source, false, "")
		require.NoError(t, err)
		rs.SetBackup("u1", payload)

		m, _ := newTestManager(t, rs, 10)
		doc, err := m.RestoreOnNewDevice(ctx, "u1", nil)
		require.NoError(t, err)
		assert.Equal(t, "dark", doc.Display.Theme)
	})

	t.Run("NoRemoteBackupKeepsDefaults", func(t *testing.T) {
		m, _ := newTestManager(t, remote.NewMemoryStore(), 10)
		doc, err := m.RestoreOnNewDevice(ctx, "u1", nil)
		require.NoError(t, err)
		assert.Equal(t, "system", doc.Display.Theme)
		assert.Equal(t, "metric", doc.Unit.UnitSystem)
	})

	t.Run("FromExplicitData", func(t *testing.T) {
		source := store.DefaultPreferenceDocument("other-device-user")
		source.Unit.UnitSystem = "imperial"
		source.LastModified = 99999999999
		payload, err := store.EncodeSnapshot(source, false, "")
		require.NoError(t, err)

		m, s := newTestManager(t, nil, 10)
		doc, err := m.RestoreOnNewDevice(ctx, "u1", payload)
		require.NoError(t, err)
		assert.Equal(t, "u1", doc.UserID, "restore lands on the requesting user")
		assert.Equal(t, "imperial", doc.Unit.UnitSystem)

		got, err := s.GetPreferenceDocument(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "imperial", got.Unit.UnitSystem)
	})
}
