package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
)

func TestSnapshotRoundTrip(t *testing.T) {
	doc := DefaultPreferenceDocument("u1")
	doc.Display.Theme = "dark"
	doc.LastModified = 42000
	doc.Revision = 7

	data, err := EncodeSnapshot(doc, false, "")
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, "u1", decoded.UserID)
	assert.Equal(t, "dark", decoded.Display.Theme)
	assert.Equal(t, int64(42000), decoded.LastModified)
	assert.Equal(t, int64(7), decoded.Revision)
	assert.Equal(t, SyncStatusPending, decoded.SyncStatus,
		"an imported document has not been pushed yet")
}

func TestSnapshotMetadataOnlyOnExport(t *testing.T) {
	doc := DefaultPreferenceDocument("u1")

	plain, err := EncodeSnapshot(doc, false, "1.2.3")
	require.NoError(t, err)
	assert.NotContains(t, string(plain), "appVersion")

	exported, err := EncodeSnapshot(doc, true, "1.2.3")
	require.NoError(t, err)
	assert.Contains(t, string(exported), `"appVersion":"1.2.3"`)
	assert.Contains(t, string(exported), "exportedAt")
}

func TestDecodeSnapshotRejectsNewerSchema(t *testing.T) {
	doc := DefaultPreferenceDocument("u1")
	data, err := EncodeSnapshot(doc, false, "")
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["schemaVersion"] = SnapshotSchemaVersion + 1
	newer, err := json.Marshal(raw)
	require.NoError(t, err)

	_, err = DecodeSnapshot(newer)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.CodeOf(err))
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	_, err := DecodeSnapshot([]byte("{not json"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCorruptedState, apperrors.CodeOf(err))
}

func TestDecodeSnapshotRevalidates(t *testing.T) {
	doc := DefaultPreferenceDocument("u1")
	doc.Cycle.CycleLength = 99
	data, err := EncodeSnapshot(doc, false, "")
	require.NoError(t, err)

	_, err = DecodeSnapshot(data)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.CodeOf(err))
}
