package dto

import (
	"time"

	"github.com/noah-isme/portal-resilience-api/internal/models"
)

// BackupResult is returned after a successful backup.
type BackupResult struct {
	Success             bool      `json:"success"`
	CollectionsBackedUp []string  `json:"collectionsBackedUp"`
	Timestamp           time.Time `json:"timestamp"`
	Version             string    `json:"version"`
	ArchivedPrevious    bool      `json:"archivedPrevious"`
	ExportURL           string    `json:"exportUrl,omitempty"`
}

// BackupSnapshotResponse serialises the user's latest snapshot.
type BackupSnapshotResponse struct {
	ID       string                `json:"id"`
	Revision int64                 `json:"revision"`
	Snapshot models.BackupSnapshot `json:"snapshot"`
}

// ArchivedSnapshotResponse serialises an archived snapshot.
type ArchivedSnapshotResponse struct {
	ID                  string    `json:"id"`
	Version             string    `json:"version"`
	Timestamp           time.Time `json:"timestamp"`
	ArchivedAt          time.Time `json:"archivedAt"`
	CollectionsBackedUp []string  `json:"collectionsBackedUp"`
	RecordCount         int       `json:"recordCount"`
}

// NewArchivedSnapshotResponse summarises an archived snapshot.
func NewArchivedSnapshotResponse(archived models.ArchivedSnapshot) ArchivedSnapshotResponse {
	count := 0
	for _, records := range archived.Data {
		count += len(records)
	}
	return ArchivedSnapshotResponse{
		ID:                  archived.ID,
		Version:             archived.Version,
		Timestamp:           archived.Timestamp,
		ArchivedAt:          archived.ArchivedAt,
		CollectionsBackedUp: archived.CollectionsBackedUp,
		RecordCount:         count,
	}
}

// RestoreRequest asks for calculation records to be re-stamped with a version.
type RestoreRequest struct {
	Version string `json:"version" validate:"required"`
}

// RestoreResult is returned after a successful restore.
type RestoreResult struct {
	Success              bool   `json:"success"`
	Version              string `json:"version"`
	RestoredCalculations int    `json:"restoredCalculations"`
	BackupID             string `json:"backupId"`
}

// VersionResponse serialises a version table entry.
type VersionResponse struct {
	models.VersionTag
	Current bool `json:"current"`
}
