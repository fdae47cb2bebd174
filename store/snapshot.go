package store

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
)

// SnapshotSchemaVersion is the current export/import wire format version.
// Imports with a greater version are rejected; older versions are migrated
// field-by-field on decode.
const SnapshotSchemaVersion = 1

// Snapshot is the versioned serialized form of a PreferenceDocument used by
// backups and by manual export/import.
type Snapshot struct {
	SchemaVersion int                     `json:"schemaVersion"`
	UserID        string                  `json:"userId"`
	LastModified  int64                   `json:"lastModified"`
	Revision      int64                   `json:"revision"`
	Unit          UnitPreferences         `json:"unit"`
	Notification  NotificationPreferences `json:"notification"`
	Cycle         CyclePreferences        `json:"cycle"`
	Privacy       PrivacyPreferences      `json:"privacy"`
	Display       DisplayPreferences      `json:"display"`
	Sync          SyncPreferences         `json:"sync"`

	// Optional metadata, included only on manual export.
	ExportedAt int64  `json:"exportedAt,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// EncodeSnapshot serializes a document into the versioned wire format.
func EncodeSnapshot(doc *PreferenceDocument, includeMetadata bool, appVersion string) ([]byte, error) {
	snapshot := Snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		UserID:        doc.UserID,
		LastModified:  doc.LastModified,
		Revision:      doc.Revision,
		Unit:          doc.Unit,
		Notification:  doc.Notification,
		Cycle:         doc.Cycle,
		Privacy:       doc.Privacy,
		Display:       doc.Display,
		Sync:          doc.Sync,
	}
	if includeMetadata {
		snapshot.ExportedAt = time.Now().UnixMilli()
		snapshot.AppVersion = appVersion
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode snapshot")
	}
	return data, nil
}

// DecodeSnapshot parses and validates the wire format. The returned document
// is fully validated; callers may persist it directly.
func DecodeSnapshot(data []byte) (*PreferenceDocument, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, apperrors.Corrupted("decode_snapshot", err)
	}
	if snapshot.SchemaVersion > SnapshotSchemaVersion {
		return nil, apperrors.Validation([]apperrors.FieldViolation{{
			Field:  "schemaVersion",
			Reason: "unsupported snapshot version",
		}})
	}

	doc := &PreferenceDocument{
		UserID:       snapshot.UserID,
		Unit:         snapshot.Unit,
		Notification: snapshot.Notification,
		Cycle:        snapshot.Cycle,
		Privacy:      snapshot.Privacy,
		Display:      snapshot.Display,
		Sync:         snapshot.Sync,
		LastModified: snapshot.LastModified,
		Revision:     snapshot.Revision,
		SyncStatus:   SyncStatusPending,
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}
