package service

import "errors"

var (
	// ErrMissingUser indicates an operation was attempted without an authenticated user.
	ErrMissingUser = errors.New("authenticated user is required")
	// ErrInvalidVersion indicates a restore target that is not in the version table.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrInvalidActivityType indicates an activity type outside the known set.
	ErrInvalidActivityType = errors.New("invalid activity type")
	// ErrInvalidMetadata indicates metadata values outside the supported scalar set.
	ErrInvalidMetadata = errors.New("invalid metadata")
	// ErrBackendUnavailable indicates the record store could not serve the request.
	ErrBackendUnavailable = errors.New("record store unavailable")
	// ErrBackupConflict indicates concurrent backups kept overwriting each other.
	ErrBackupConflict = errors.New("backup was modified concurrently")
	// ErrBackupNotFound indicates the user has no snapshot yet.
	ErrBackupNotFound = errors.New("backup not found")
)

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
