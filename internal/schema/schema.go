// Package schema holds the JSON schemas documents are checked against before
// they are persisted.
package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed backup_snapshot.schema.json
var backupSnapshotSchema string

var (
	compileOnce    sync.Once
	backupSnapshot *jsonschema.Schema
	compileErr     error
)

// BackupSnapshot returns the compiled schema for backup snapshot documents.
func BackupSnapshot() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		backupSnapshot, compileErr = jsonschema.CompileString("backup_snapshot.schema.json", backupSnapshotSchema)
	})
	return backupSnapshot, compileErr
}

// ValidateBackupSnapshot checks a decoded snapshot document.
func ValidateBackupSnapshot(document map[string]interface{}) error {
	compiled, err := BackupSnapshot()
	if err != nil {
		return fmt.Errorf("compile backup snapshot schema: %w", err)
	}
	if err := compiled.Validate(document); err != nil {
		return fmt.Errorf("backup snapshot invalid: %w", err)
	}
	return nil
}
