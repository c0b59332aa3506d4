package models

import (
	"fmt"
	"time"
)

const (
	latestBackupPrefix = "latest_"
	preRestorePrefix   = "pre_restore_"

	// SnapshotTypePreRestore marks the safety snapshot written before a restore.
	SnapshotTypePreRestore = "pre_restore"
)

// LatestBackupID returns the key of the single "latest" snapshot for a user.
func LatestBackupID(userID string) string {
	return latestBackupPrefix + userID
}

// ArchiveID returns the archive key for a snapshot archived at the given instant.
func ArchiveID(snapshotID string, archivedAt time.Time) string {
	return fmt.Sprintf("%s_%d", snapshotID, archivedAt.UnixNano())
}

// PreRestoreID returns the key of a pre-restore snapshot entry.
func PreRestoreID(userID string, at time.Time) string {
	return fmt.Sprintf("%s%s_%d", preRestorePrefix, userID, at.UnixNano())
}

// SnapshotRecord is one captured record inside a backup snapshot.
type SnapshotRecord struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

// BackupSnapshot is a point-in-time copy of a user's versioned collections.
type BackupSnapshot struct {
	UserID              string                      `json:"userId"`
	Data                map[string][]SnapshotRecord `json:"data"`
	Timestamp           time.Time                   `json:"timestamp"`
	Version             string                      `json:"version"`
	CollectionsBackedUp []string                    `json:"collectionsBackedUp"`
	ExportURL           string                      `json:"exportUrl,omitempty"`
}

// ToRecord maps the snapshot onto the user's "latest" backup document.
func (s BackupSnapshot) ToRecord() (Record, error) {
	fields, err := ToFields(s)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Collection: CollectionBackups,
		ID:         LatestBackupID(s.UserID),
		UserID:     s.UserID,
		Data:       fields,
		Timestamp:  s.Timestamp,
	}, nil
}

// SnapshotFromRecord decodes a stored backup document.
func SnapshotFromRecord(record Record) (BackupSnapshot, error) {
	var snapshot BackupSnapshot
	if err := FromFields(record.Data, &snapshot); err != nil {
		return BackupSnapshot{}, err
	}
	return snapshot, nil
}

// ArchivedSnapshot is a superseded snapshot preserved in the archive collection.
type ArchivedSnapshot struct {
	ID string `json:"id"`
	BackupSnapshot
	ArchivedAt time.Time `json:"archivedAt"`
}

// ArchivedSnapshotFromRecord decodes a stored archive document.
func ArchivedSnapshotFromRecord(record Record) (ArchivedSnapshot, error) {
	var archived ArchivedSnapshot
	if err := FromFields(record.Data, &archived); err != nil {
		return ArchivedSnapshot{}, err
	}
	archived.ID = record.ID
	return archived, nil
}

// PreRestoreSnapshot is written before a restore re-stamps calculation records.
type PreRestoreSnapshot struct {
	Type          string    `json:"type"`
	UserID        string    `json:"userId"`
	TargetVersion string    `json:"targetVersion"`
	FromVersion   string    `json:"fromVersion"`
	Reason        string    `json:"reason"`
	Timestamp     time.Time `json:"timestamp"`
}

// ToRecord maps the pre-restore entry onto a backups document.
func (p PreRestoreSnapshot) ToRecord() (Record, error) {
	fields, err := ToFields(p)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Collection: CollectionBackups,
		ID:         PreRestoreID(p.UserID, p.Timestamp),
		UserID:     p.UserID,
		Data:       fields,
		Timestamp:  p.Timestamp,
	}, nil
}
