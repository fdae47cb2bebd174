package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)
	Migrate(ctx context.Context) error

	// PreferenceDocument model related methods.
	UpsertPreferenceDocument(ctx context.Context, upsert *PreferenceDocument) (*PreferenceDocument, error)
	GetPreferenceDocument(ctx context.Context, find *FindPreferenceDocument) (*PreferenceDocument, error)
	DeletePreferenceDocument(ctx context.Context, delete *DeletePreferenceDocument) error

	// BackupRecord model related methods.
	CreateBackupRecord(ctx context.Context, create *BackupRecord) (*BackupRecord, error)
	ListBackupRecords(ctx context.Context, find *FindBackupRecord) ([]*BackupRecord, error)
	DeleteBackupRecords(ctx context.Context, delete *DeleteBackupRecord) (int64, error)
}
