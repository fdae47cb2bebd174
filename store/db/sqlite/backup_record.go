package sqlite

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sestako/eunio-app-sub009/store"
)

func (d *DB) CreateBackupRecord(ctx context.Context, create *store.BackupRecord) (*store.BackupRecord, error) {
	stmt := `
		INSERT INTO backup_record (id, user_id, kind, created_ts, payload, size_bytes)
		VALUES (` + placeholders(6) + `)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.UserID, string(create.Kind), create.CreatedTs, create.Payload, create.SizeBytes,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create backup record")
	}
	return create, nil
}

func (d *DB) ListBackupRecords(ctx context.Context, find *store.FindBackupRecord) ([]*store.BackupRecord, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Kind; v != nil {
		where, args = append(where, "kind = "+placeholder(len(args)+1)), append(args, string(*v))
	}

	stmt := `
		SELECT id, user_id, kind, created_ts, payload, size_bytes
		FROM backup_record
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`
	if v := find.Limit; v != nil {
		stmt += " LIMIT " + strconv.Itoa(*v)
	}

	rows, err := d.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list backup records")
	}
	defer rows.Close()

	list := []*store.BackupRecord{}
	for rows.Next() {
		record := &store.BackupRecord{}
		var kind string
		if err := rows.Scan(&record.ID, &record.UserID, &kind, &record.CreatedTs, &record.Payload, &record.SizeBytes); err != nil {
			return nil, errors.Wrap(err, "failed to scan backup record")
		}
		record.Kind = store.BackupKind(kind)
		list = append(list, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate backup records")
	}
	return list, nil
}

func (d *DB) DeleteBackupRecords(ctx context.Context, delete *store.DeleteBackupRecord) (int64, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := delete.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := delete.UserID; v != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := delete.CreatedTsBefore; v != nil {
		where, args = append(where, "created_ts < "+placeholder(len(args)+1)), append(args, *v)
	}

	result, err := d.db.ExecContext(ctx,
		"DELETE FROM backup_record WHERE "+strings.Join(where, " AND "), args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete backup records")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted backup records")
	}
	return affected, nil
}
