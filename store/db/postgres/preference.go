package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	apperrors "github.com/sestako/eunio-app-sub009/internal/errors"
	"github.com/sestako/eunio-app-sub009/store"
)

func (d *DB) UpsertPreferenceDocument(ctx context.Context, upsert *store.PreferenceDocument) (*store.PreferenceDocument, error) {
	payload, err := json.Marshal(upsert)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal preference document")
	}

	stmt := `
		INSERT INTO preference_document (user_id, payload, last_modified, revision, sync_status)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (user_id) DO UPDATE SET
			payload = excluded.payload,
			last_modified = excluded.last_modified,
			revision = excluded.revision,
			sync_status = excluded.sync_status`
	if _, err := d.db.ExecContext(ctx, stmt,
		upsert.UserID, string(payload), upsert.LastModified, upsert.Revision, string(upsert.SyncStatus),
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert preference document")
	}
	return upsert, nil
}

func (d *DB) GetPreferenceDocument(ctx context.Context, find *store.FindPreferenceDocument) (*store.PreferenceDocument, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *v)
	}

	stmt := `
		SELECT payload, last_modified, revision, sync_status
		FROM preference_document
		WHERE ` + strings.Join(where, " AND ")

	var payload string
	var lastModified, revision int64
	var syncStatus string
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&payload, &lastModified, &revision, &syncStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get preference document")
	}

	doc := &store.PreferenceDocument{}
	if err := json.Unmarshal([]byte(payload), doc); err != nil {
		return nil, apperrors.Corrupted("get_preference_document", err)
	}
	doc.LastModified = lastModified
	doc.Revision = revision
	doc.SyncStatus = store.SyncStatus(syncStatus)
	return doc, nil
}

func (d *DB) DeletePreferenceDocument(ctx context.Context, delete *store.DeletePreferenceDocument) error {
	if _, err := d.db.ExecContext(ctx,
		"DELETE FROM preference_document WHERE user_id = "+placeholder(1),
		delete.UserID,
	); err != nil {
		return errors.Wrap(err, "failed to delete preference document")
	}
	return nil
}
