package remote

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
	"github.com/sestako/eunio-app-sub009/internal/profile"
	"github.com/sestako/eunio-app-sub009/store"
	"github.com/sestako/eunio-app-sub009/store/db/sqlite"
)

func newTestServer(t *testing.T, token string) (*httptest.Server, store.Driver) {
	t.Helper()
	p := &profile.Profile{Mode: "dev", Data: t.TempDir(), Driver: "sqlite"}
	p.DSN = filepath.Join(p.Data, "server.db")

	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	require.NoError(t, driver.Migrate(context.Background()))
	t.Cleanup(func() { driver.Close() })

	server := NewServer(driver, token, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(server.Echo())
	t.Cleanup(ts.Close)
	return ts, driver
}

func TestPushPullThroughHTTP(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestServer(t, "secret")
	client := NewHTTPStore(ts.URL, "secret")

	got, err := client.PullDocument(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got, "absent remote document is nil, not an error")

	doc := store.DefaultPreferenceDocument("u1")
	doc.Display.Theme = "dark"
	doc.LastModified = 5000
	doc.Revision = 2
	require.NoError(t, client.PushDocument(ctx, doc))

	got, err = client.PullDocument(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "dark", got.Display.Theme)
	assert.Equal(t, store.SyncStatusSynced, got.SyncStatus, "the server owns the synced marker")
}

func TestPushRequiresToken(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestServer(t, "secret")
	client := NewHTTPStore(ts.URL, "wrong")

	err := client.PushDocument(ctx, store.DefaultPreferenceDocument("u1"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSyncRejected, apperrors.CodeOf(err))
}

func TestStalePushIsRejected(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestServer(t, "")
	client := NewHTTPStore(ts.URL, "")

	current := store.DefaultPreferenceDocument("u1")
	current.LastModified = 5000
	current.Revision = 5
	require.NoError(t, client.PushDocument(ctx, current))

	stale := store.DefaultPreferenceDocument("u1")
	stale.LastModified = 1000
	stale.Revision = 2
	err := client.PushDocument(ctx, stale)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSyncRejected, apperrors.CodeOf(err))
}

func TestPushRejectsInvalidDocument(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestServer(t, "")
	client := NewHTTPStore(ts.URL, "")

	doc := store.DefaultPreferenceDocument("u1")
	doc.Cycle.CycleLength = 99
	err := client.PushDocument(ctx, doc)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSyncRejected, apperrors.CodeOf(err))
}

func TestLatestBackupEndpoint(t *testing.T) {
	ctx := context.Background()
	ts, driver := newTestServer(t, "")
	client := NewHTTPStore(ts.URL, "")

	data, err := client.PullLatestBackup(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, data)

	for i, payload := range []string{`{"v":1}`, `{"v":2}`} {
		_, err := driver.CreateBackupRecord(ctx, &store.BackupRecord{
			ID:        string(rune('a' + i)),
			UserID:    "u1",
			Kind:      store.BackupKindAutomatic,
			CreatedTs: int64(1000 + i),
			Payload:   []byte(payload),
			SizeBytes: int64(len(payload)),
		})
		require.NoError(t, err)
	}

	data, err = client.PullLatestBackup(ctx, "u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))
}

func TestTransportFailureIsNoConnectivity(t *testing.T) {
	client := NewHTTPStore("http://127.0.0.1:1", "")
	err := client.PushDocument(context.Background(), store.DefaultPreferenceDocument("u1"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSyncNoConnectivity, apperrors.CodeOf(err))
}
