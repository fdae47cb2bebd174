package store

// BackupKind distinguishes how a backup record was produced.
type BackupKind string

const (
	// BackupKindAutomatic is a snapshot captured after a successful mutation.
	BackupKindAutomatic BackupKind = "AUTOMATIC"
	// BackupKindManual is a snapshot explicitly requested by the user.
	BackupKindManual BackupKind = "MANUAL"
	// BackupKindExport is a snapshot produced for export to another device.
	BackupKindExport BackupKind = "EXPORT"
)

// BackupRecord is an immutable snapshot of a user's preference document.
// Records are never mutated after creation; they are only pruned by
// count-based retention.
type BackupRecord struct {
	ID        string
	UserID    string
	Kind      BackupKind
	CreatedTs int64
	Payload   []byte
	SizeBytes int64
}

// FindBackupRecord specifies the conditions for listing backup records.
type FindBackupRecord struct {
	ID     *string
	UserID *string
	Kind   *BackupKind
	// Limit caps the number of records, newest first.
	Limit *int
}

// DeleteBackupRecord specifies the records to delete.
type DeleteBackupRecord struct {
	ID     *string
	UserID *string
	// CreatedTsBefore deletes records strictly older than the timestamp.
	CreatedTsBefore *int64
}
