// Package sqlite implements the store driver on the on-device SQLite
// database using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/sestako/eunio-app-sub009/internal/profile"
	"github.com/sestako/eunio-app-sub009/store"

	// SQLite driver.
	_ "modernc.org/sqlite"
)

// DB is the SQLite implementation of store.Driver.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the database at profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// busy_timeout covers the mobile shell and the backup goroutine
	// writing concurrently; WAL keeps readers unblocked during a write.
	db, err := sql.Open("sqlite", profile.DSN+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	driver := DB{db: db, profile: profile}
	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// IsInitialized checks whether the schema has been created.
func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'preference_document'",
	).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "failed to check schema")
	}
	return count > 0, nil
}

const latestSchema = `
CREATE TABLE IF NOT EXISTS preference_document (
	user_id TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	last_modified INTEGER NOT NULL,
	revision INTEGER NOT NULL,
	sync_status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backup_record (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	created_ts INTEGER NOT NULL,
	payload BLOB NOT NULL,
	size_bytes INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backup_record_user_created
	ON backup_record (user_id, created_ts);
`

// Migrate creates the schema. Idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return errors.Wrap(err, "failed to migrate schema")
	}
	return nil
}
